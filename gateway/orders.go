package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/orders"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

type orderLineRequest struct {
	Product  string  `json:"product"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Items are decoded one line at a time so a malformed line is dropped instead of
// failing the whole request.
type placeOrderRequest struct {
	Items         []json.RawMessage `json:"items" swaggertype:"array,object"`
	Address       string            `json:"address"`
	Phone         string            `json:"phone"`
	PaymentMethod string            `json:"paymentMethod"`
}

// toInput keeps a missing items field nil. Lines that do not decode, or carry an
// unparseable product id, get a zero id and are dropped by validation.
func (r placeOrderRequest) toInput() orders.PlaceOrderInput {
	in := orders.PlaceOrderInput{
		Address:       r.Address,
		Phone:         r.Phone,
		PaymentMethod: r.PaymentMethod,
	}
	if r.Items == nil {
		return in
	}
	in.Items = make([]models.OrderLine, 0, len(r.Items))
	for _, raw := range r.Items {
		var l orderLineRequest
		if err := json.Unmarshal(raw, &l); err != nil {
			in.Items = append(in.Items, models.OrderLine{})
			continue
		}
		id, _ := primitive.ObjectIDFromHex(l.Product)
		in.Items = append(in.Items, models.OrderLine{Product: id, Price: l.Price, Quantity: l.Quantity})
	}
	return in
}

// targetUser parses a :userId path segment. An id that is not an ObjectID can
// never match the caller, so it is reported as not ok.
func targetUser(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("userId"))
	return id, err == nil
}

// placeOrder godoc
// @Summary   Place an order for the authenticated user
// @Tags      orders
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Param     Idempotency-Key  header  string             false  "Replay protection key"
// @Param     order            body    placeOrderRequest  true   "Order"
// @Success   200  {object}  map[string]string
// @Failure   400  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Failure   409  {object}  map[string]string
// @Router    /api/orders/place [post]
func (g *Gateway) placeOrder(c *gin.Context) {
	principal := getPrincipal(c)
	ctx := c.Request.Context()

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	scope := principal.ID.Hex()
	claimed := false
	if key != "" && g.services.Idempotency != nil {
		ok, err := g.services.Idempotency.ClaimIdempotencyKey(ctx, scope, key)
		switch {
		case err != nil:
			g.logger.Warn("Idempotency check unavailable", zap.Error(err))
		case !ok:
			c.JSON(http.StatusConflict, gin.H{"message": "Duplicate order request"})
			return
		default:
			claimed = true
		}
	}

	_, err := g.services.Orders.PlaceOrder(ctx, principal.ID, req.toInput())
	if err != nil {
		if claimed {
			if rerr := g.services.Idempotency.ReleaseIdempotencyKey(ctx, scope, key); rerr != nil {
				g.logger.Warn("Failed to release idempotency key", zap.Error(rerr))
			}
		}
		switch {
		case errors.Is(err, orders.ErrNoValidItems):
			c.JSON(http.StatusBadRequest, gin.H{"message": "No valid items in order"})
		case errors.Is(err, orders.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		case errors.Is(err, orders.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		case errors.Is(err, orders.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		case errors.Is(err, orders.ErrInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"message": "Insufficient stock"})
		default:
			g.logger.Error("Order placement failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error while placing order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order placed successfully"})
}

// listUserOrders godoc
// @Summary   List the caller's orders, newest first
// @Tags      orders
// @Produce   json
// @Security  BearerAuth
// @Param     userId  path  string  true  "User ID"
// @Success   200  {array}   orders.OrderView
// @Failure   403  {object}  map[string]string
// @Router    /api/orders/{userId} [get]
func (g *Gateway) listUserOrders(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	list, err := g.services.Orders.ListOrdersForUser(c.Request.Context(), getPrincipal(c).ID, target)
	if err != nil {
		if errors.Is(err, orders.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		g.logger.Error("Fetch orders failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// cancelOrder godoc
// @Summary   Cancel one of the caller's orders
// @Tags      orders
// @Produce   json
// @Security  BearerAuth
// @Param     userId   path  string  true  "User ID"
// @Param     orderId  path  string  true  "Order ID"
// @Success   200  {object}  map[string]string
// @Failure   403  {object}  map[string]string
// @Failure   404  {object}  map[string]string
// @Router    /api/orders/{userId}/{orderId} [patch]
func (g *Gateway) cancelOrder(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	err := g.services.Orders.CancelOrder(c.Request.Context(), getPrincipal(c).ID, target, c.Param("orderId"))
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
		default:
			g.logger.Error("Cancel order failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to cancel order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled"})
}
