package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const defaultProductLimit = 6

type productPage struct {
	Products      []models.Product `json:"products"`
	TotalPages    int              `json:"totalPages"`
	CurrentPage   int              `json:"currentPage"`
	TotalProducts int64            `json:"totalProducts"`
}

type cartLineRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type replaceCartRequest struct {
	CartItems []cartLineRequest `json:"cartItems"`
}

type cartLineView struct {
	Product  *models.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

type restoreStockRequest struct {
	Quantity int `json:"quantity"`
}

type createProductRequest struct {
	Name     string   `json:"name" binding:"required"`
	Price    *float64 `json:"price" binding:"required,gte=0"`
	Stock    *int     `json:"stock" binding:"required,gte=0"`
	Category string   `json:"category" binding:"required"`
	Image    string   `json:"image" binding:"required"`
}

// updateProductRequest leaves absent fields unchanged.
type updateProductRequest struct {
	Name     *string  `json:"name" binding:"omitempty,min=1"`
	Price    *float64 `json:"price" binding:"omitempty,gte=0"`
	Stock    *int     `json:"stock" binding:"omitempty,gte=0"`
	Category *string  `json:"category" binding:"omitempty,min=1"`
	Image    *string  `json:"image" binding:"omitempty,min=1"`
}

// listProducts godoc
// @Summary  Browse the catalog
// @Tags     products
// @Produce  json
// @Param    category    query  string  false  "Category, or all"
// @Param    priceRange  query  string  false  "all, under-500, 500-1000 or above-1000"
// @Param    search      query  string  false  "Name fragment"
// @Param    page        query  int     false  "Page, 1-indexed"
// @Param    limit       query  int     false  "Page size"
// @Success  200  {object}  productPage
// @Router   /api/products [get]
func (g *Gateway) listProducts(c *gin.Context) {
	page, limit := queryInt(c, "page"), queryInt(c, "limit")
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultProductLimit
	}

	products, total, err := g.services.Catalog.ListProducts(c.Request.Context(), models.ProductFilter{
		Category:   c.Query("category"),
		PriceRange: models.PriceRange(c.Query("priceRange")),
		Search:     c.Query("search"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		g.logger.Error("Fetch products failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, productPage{
		Products:      products,
		TotalPages:    int((total + int64(limit) - 1) / int64(limit)),
		CurrentPage:   page,
		TotalProducts: total,
	})
}

// restoreStock godoc
// @Summary   Return units to a product's stock
// @Tags      products
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Param     productId  path  string               true  "Product ID"
// @Param     body       body  restoreStockRequest  true  "Units to add back"
// @Success   200  {object}  map[string]string
// @Failure   400  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Router    /api/products/{productId}/restore [patch]
func (g *Gateway) restoreStock(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid product id"})
		return
	}
	var req restoreStockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}

	if err := g.services.Catalog.AdjustStock(c.Request.Context(), id, req.Quantity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
			return
		}
		g.logger.Error("Restore stock failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to restore stock"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock restored"})
}

// getCart godoc
// @Summary   Get the caller's cart with current product data
// @Tags      cart
// @Produce   json
// @Security  BearerAuth
// @Param     userId  path  string  true  "User ID"
// @Success   200  {array}   cartLineView
// @Failure   403  {object}  map[string]string
// @Router    /api/cart/{userId} [get]
func (g *Gateway) getCart(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok || target != getPrincipal(c).ID {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden Access"})
		return
	}
	ctx := c.Request.Context()

	cart, err := g.services.Carts.Get(ctx, target)
	if err != nil {
		g.logger.Error("Fetch cart failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch cart"})
		return
	}

	ids := make([]primitive.ObjectID, 0, len(cart.Items))
	for _, l := range cart.Items {
		ids = append(ids, l.Product)
	}
	products, err := g.services.Catalog.GetProducts(ctx, ids)
	if err != nil {
		g.logger.Error("Resolve cart products failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch cart"})
		return
	}

	view := make([]cartLineView, 0, len(cart.Items))
	for _, l := range cart.Items {
		view = append(view, cartLineView{Product: products[l.Product], Quantity: l.Quantity})
	}
	c.JSON(http.StatusOK, view)
}

// replaceCart godoc
// @Summary   Replace the caller's cart
// @Tags      cart
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Param     userId  path  string              true  "User ID"
// @Param     cart    body  replaceCartRequest  true  "Cart lines"
// @Success   200  {array}   models.CartLine
// @Failure   400  {object}  map[string]string
// @Failure   403  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Router    /api/cart/{userId} [put]
func (g *Gateway) replaceCart(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok || target != getPrincipal(c).ID {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden Access"})
		return
	}

	var req replaceCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}
	lines := make([]models.CartLine, 0, len(req.CartItems))
	for _, l := range req.CartItems {
		id, err := primitive.ObjectIDFromHex(l.Product)
		if err != nil || l.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
			return
		}
		lines = append(lines, models.CartLine{Product: id, Quantity: l.Quantity})
	}

	ctx := c.Request.Context()
	user, err := g.services.Users.GetUser(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		g.logger.Error("Fetch user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update cart"})
		return
	}

	if err := g.services.Carts.Replace(ctx, target, user.Name, lines); err != nil {
		g.logger.Error("Update cart failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update cart"})
		return
	}
	c.JSON(http.StatusOK, lines)
}

// createProduct godoc
// @Summary   Add a product to the catalog
// @Tags      admin
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Param     product  body  createProductRequest  true  "Product"
// @Success   201  {object}  models.Product
// @Failure   400  {object}  map[string]string
// @Router    /api/admin/products [post]
func (g *Gateway) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid product data"})
		return
	}

	product := &models.Product{
		Name:     strings.TrimSpace(req.Name),
		Price:    *req.Price,
		Stock:    *req.Stock,
		Category: strings.TrimSpace(req.Category),
		Image:    req.Image,
	}
	if err := g.services.Catalog.CreateProduct(c.Request.Context(), product); err != nil {
		g.logger.Error("Add product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to add product"})
		return
	}
	c.JSON(http.StatusCreated, product)
}

// updateProduct godoc
// @Summary   Update a product's fields
// @Tags      admin
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Param     productId  path  string                true  "Product ID"
// @Param     product    body  updateProductRequest  true  "Fields to change"
// @Success   200  {object}  models.Product
// @Failure   400  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Router    /api/admin/products/{productId} [put]
func (g *Gateway) updateProduct(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid product id"})
		return
	}
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid product data"})
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid product data"})
			return
		}
		req.Name = &name
	}

	product, err := g.services.Catalog.UpdateProduct(c.Request.Context(), id, models.ProductPatch{
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		Category: req.Category,
		Image:    req.Image,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
			return
		}
		g.logger.Error("Update product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// deleteProduct godoc
// @Summary   Remove a product from the catalog
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Param     productId  path  string  true  "Product ID"
// @Success   200  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Router    /api/admin/products/{productId} [delete]
func (g *Gateway) deleteProduct(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid product id"})
		return
	}

	if err := g.services.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
			return
		}
		g.logger.Error("Delete product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete product"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}
