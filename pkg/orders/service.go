package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrInvalidRequest       = errors.New("invalid request data")
	ErrNoValidItems         = fmt.Errorf("%w: no valid items in order", ErrInvalidRequest)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unknown payment method", ErrInvalidRequest)
	ErrInvalidStatus        = fmt.Errorf("%w: invalid order status", ErrInvalidRequest)
	ErrInvalidTransition    = fmt.Errorf("%w: status transition not allowed", ErrInvalidRequest)

	ErrUserNotFound      = errors.New("user not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
)

const historyLimit = 50

type Ledger interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	FindForUser(ctx context.Context, userID primitive.ObjectID, orderID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (*models.Order, error)
	Delete(ctx context.Context, orderID string) (*models.Order, error)
	Search(ctx context.Context, q repository.OrderQuery) (*repository.OrderPage, error)
}

type CatalogStore interface {
	GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error)
	AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error
	DecrementStockIfAvailable(ctx context.Context, id primitive.ObjectID, qty int) error
}

type CartStore interface {
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type AuditRecorder interface {
	Record(action, entityID string, data bson.M)
}

type AuditReader interface {
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

// Deps are the stores the workflow writes through. History is optional.
type Deps struct {
	Ledger  Ledger
	Catalog CatalogStore
	Carts   CartStore
	Users   UserDirectory
	Audit   AuditRecorder
	History AuditReader
}

type Service struct {
	cfg     config.OrdersConfig
	ledger  Ledger
	catalog CatalogStore
	carts   CartStore
	users   UserDirectory
	audit   AuditRecorder
	history AuditReader
	logger  *zap.Logger
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, bson.M) {}

func NewService(cfg config.OrdersConfig, deps Deps, logger *zap.Logger) *Service {
	if cfg.StockPolicy == "" {
		cfg.StockPolicy = config.StockBestEffort
	}
	if cfg.DefaultPageLimit < 1 {
		cfg.DefaultPageLimit = 10
	}
	audit := deps.Audit
	if audit == nil {
		audit = nopRecorder{}
	}
	return &Service{
		cfg:     cfg,
		ledger:  deps.Ledger,
		catalog: deps.Catalog,
		carts:   deps.Carts,
		users:   deps.Users,
		audit:   audit,
		history: deps.History,
		logger:  logger.Named("orders"),
	}
}
