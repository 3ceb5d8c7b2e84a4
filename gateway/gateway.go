package gateway

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/example/storefront/pkg/analytics"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/orders"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	_ "github.com/example/storefront/docs"
)

type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

type OrderService interface {
	PlaceOrder(ctx context.Context, userID primitive.ObjectID, in orders.PlaceOrderInput) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, requesterID, targetUserID primitive.ObjectID) ([]orders.OrderView, error)
	CancelOrder(ctx context.Context, requesterID, targetUserID primitive.ObjectID, orderID string) error
	AdminListOrders(ctx context.Context, search string, page, limit int) (*orders.AdminOrderPage, error)
	AdminGetOrder(ctx context.Context, orderID string) (*orders.AdminOrderDetail, error)
	AdminUpdateOrderStatus(ctx context.Context, orderID, status string) error
	AdminDeleteOrder(ctx context.Context, orderID string) error
}

type StatsService interface {
	DashboardStats(ctx context.Context) (*analytics.Snapshot, error)
}

type Catalog interface {
	ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, int64, error)
	GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error)
	AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, id primitive.ObjectID, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id primitive.ObjectID) error
}

type CartStore interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	Replace(ctx context.Context, userID primitive.ObjectID, userName string, items []models.CartLine) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, scope, key string) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, scope, key string) error
}

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Services are the collaborators behind the routes. Idempotency and Readiness are optional.
type Services struct {
	Auth        TokenVerifier
	Orders      OrderService
	Stats       StatsService
	Catalog     Catalog
	Carts       CartStore
	Users       UserDirectory
	Idempotency IdempotencyStore
	Readiness   map[string]CheckFunc
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	services Services
}

func NewGateway(cfg *config.Config, logger *zap.Logger, services Services) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	return &Gateway{
		config:   cfg,
		logger:   logger,
		router:   router,
		services: services,
	}
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", g.health)
	g.router.GET("/ready", g.ready)

	api := g.router.Group("/api")
	{
		api.GET("/products", g.listProducts)

		authed := api.Group("", g.authMiddleware())
		{
			ordersGroup := authed.Group("/orders")
			{
				ordersGroup.POST("/place", g.placeOrder)
				ordersGroup.GET("/:userId", g.listUserOrders)
				ordersGroup.PATCH("/:userId/:orderId", g.cancelOrder)
			}

			cart := authed.Group("/cart")
			{
				cart.GET("/:userId", g.getCart)
				cart.PUT("/:userId", g.replaceCart)
			}

			authed.PATCH("/products/:productId/restore", adminOnly(), g.restoreStock)

			admin := authed.Group("/admin", adminOnly())
			{
				admin.GET("/stats", g.dashboardStats)
				admin.GET("/products", g.listProducts)
				admin.POST("/products", g.createProduct)
				admin.PUT("/products/:productId", g.updateProduct)
				admin.DELETE("/products/:productId", g.deleteProduct)
				admin.GET("/orders", g.adminListOrders)
				admin.GET("/orders/:id", g.adminGetOrder)
				admin.PATCH("/orders/status/:id", g.adminUpdateOrderStatus)
				admin.DELETE("/orders/:id", g.adminDeleteOrder)
			}
		}
	}

	// Swagger
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := g.config.Server.Addr()
	g.server = &http.Server{
		Addr:         addr,
		Handler:      g.router,
		ReadTimeout:  g.config.Server.ReadTimeout,
		WriteTimeout: g.config.Server.WriteTimeout,
	}

	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

// health godoc
// @Summary  Liveness check
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (g *Gateway) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ready godoc
// @Summary  Readiness check
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /ready [get]
func (g *Gateway) ready(c *gin.Context) {
	names := make([]string, 0, len(g.services.Readiness))
	for name := range g.services.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	body := gin.H{"status": "ok"}
	for _, name := range names {
		if err := g.services.Readiness[name](c.Request.Context()); err != nil {
			g.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", name: "unavailable"})
			return
		}
		body[name] = "connected"
	}
	c.JSON(http.StatusOK, body)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
