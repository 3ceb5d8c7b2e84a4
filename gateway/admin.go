package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/example/storefront/pkg/orders"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

// queryInt returns the integer query parameter, or 0 when it is absent or malformed.
func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}

// dashboardStats godoc
// @Summary   Admin dashboard statistics
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Success   200  {object}  analytics.Snapshot
// @Failure   500  {object}  map[string]string
// @Router    /api/admin/stats [get]
func (g *Gateway) dashboardStats(c *gin.Context) {
	snap, err := g.services.Stats.DashboardStats(c.Request.Context())
	if err != nil {
		g.logger.Error("Get stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch dashboard statistics"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// adminListOrders godoc
// @Summary   Search and page through all orders
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Param     search  query  string  false  "Order id, email or name fragment"
// @Param     page    query  int     false  "Page, 1-indexed"
// @Param     limit   query  int     false  "Page size"
// @Success   200  {object}  orders.AdminOrderPage
// @Failure   500  {object}  map[string]string
// @Router    /api/admin/orders [get]
func (g *Gateway) adminListOrders(c *gin.Context) {
	page, err := g.services.Orders.AdminListOrders(c.Request.Context(),
		c.Query("search"), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		g.logger.Error("Fetch orders failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders"})
		return
	}
	c.JSON(http.StatusOK, page)
}

// adminGetOrder godoc
// @Summary   Get one order with its owner's email and audit history
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Param     id  path  string  true  "Order ID"
// @Success   200  {object}  orders.AdminOrderDetail
// @Failure   404  {object}  map[string]string
// @Router    /api/admin/orders/{id} [get]
func (g *Gateway) adminGetOrder(c *gin.Context) {
	detail, err := g.services.Orders.AdminGetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		g.logger.Error("Fetch order failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// adminUpdateOrderStatus godoc
// @Summary   Set an order's status
// @Tags      admin
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Param     id      path  string               true  "Order ID"
// @Param     status  body  updateStatusRequest  true  "New status"
// @Success   200  {object}  map[string]string
// @Failure   400  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Failure   409  {object}  map[string]string
// @Router    /api/admin/orders/status/{id} [patch]
func (g *Gateway) adminUpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}

	err := g.services.Orders.AdminUpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Status transition not allowed"})
		case errors.Is(err, orders.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid order status"})
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
		case errors.Is(err, orders.ErrInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"message": "Insufficient stock"})
		case errors.Is(err, orders.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		default:
			g.logger.Error("Update order status failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update order status"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated"})
}

// adminDeleteOrder godoc
// @Summary   Delete an order, restoring stock unless it was cancelled
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Param     id  path  string  true  "Order ID"
// @Success   200  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Router    /api/admin/orders/{id} [delete]
func (g *Gateway) adminDeleteOrder(c *gin.Context) {
	err := g.services.Orders.AdminDeleteOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		g.logger.Error("Delete order failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted and stock restored"})
}
