package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// PlaceOrderInput is the caller's requested order. A nil Items slice means the
// request was not line-shaped at all.
type PlaceOrderInput struct {
	Items         []models.OrderLine
	Address       string
	Phone         string
	PaymentMethod string
}

// validLines keeps lines that reference a product with a positive price and quantity.
// Invalid lines are dropped, not rejected.
func validLines(lines []models.OrderLine) []models.OrderLine {
	kept := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		if l.Product.IsZero() || l.Price <= 0 || l.Quantity <= 0 {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// orderTotal sums price*quantity in decimal and rounds to cents.
func orderTotal(lines []models.OrderLine) float64 {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2).InexactFloat64()
}

// PlaceOrder records a Pending order for userID, adjusts stock according to the
// configured policy and clears the user's cart.
func (s *Service) PlaceOrder(ctx context.Context, userID primitive.ObjectID, in PlaceOrderInput) (*models.Order, error) {
	if in.Items == nil {
		return nil, ErrInvalidRequest
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	lines := validLines(in.Items)
	if len(lines) == 0 {
		return nil, ErrNoValidItems
	}

	payment, err := models.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return nil, ErrInvalidPaymentMethod
	}

	order := &models.Order{
		OrderID:       uuid.NewString(),
		UserID:        userID,
		UserName:      user.Name,
		Items:         lines,
		TotalAmount:   orderTotal(lines),
		PaymentMethod: payment,
		Status:        models.OrderStatusPending,
		Address:       in.Address,
		Phone:         in.Phone,
	}

	guarded := s.cfg.StockPolicy == config.StockGuarded
	if guarded {
		if err := s.reserveStock(ctx, order.OrderID, lines); err != nil {
			return nil, err
		}
	} else {
		s.adjustStock(ctx, order.OrderID, lines, -1)
	}

	if err := s.ledger.Insert(ctx, order); err != nil {
		if guarded {
			s.adjustStock(ctx, order.OrderID, lines, 1)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.Warn("Failed to clear cart after order",
			zap.String("order_id", order.OrderID),
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
	}

	s.audit.Record(audit.ActionOrderPlaced, order.OrderID, bson.M{
		"user_id":      userID.Hex(),
		"total_amount": order.TotalAmount,
		"items":        len(lines),
		"stock_policy": string(s.cfg.StockPolicy),
	})
	s.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", userID.Hex()),
		zap.Float64("total_amount", order.TotalAmount))

	return order, nil
}

// reserveStock decrements each line only when stock covers it. On the first
// failure the lines already decremented are given back.
func (s *Service) reserveStock(ctx context.Context, orderID string, lines []models.OrderLine) error {
	for i, l := range lines {
		err := s.catalog.DecrementStockIfAvailable(ctx, l.Product, l.Quantity)
		if err == nil {
			continue
		}

		s.adjustStock(ctx, orderID, lines[:i], 1)

		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, l.Product.Hex())
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrProductNotFound, l.Product.Hex())
		default:
			return fmt.Errorf("reserve stock: %w", err)
		}
	}
	return nil
}

// adjustStock applies sign*quantity to every line's product. Failures are logged
// and recorded for reconciliation, never returned.
func (s *Service) adjustStock(ctx context.Context, orderID string, lines []models.OrderLine, sign int) {
	for _, l := range lines {
		if l.Product.IsZero() {
			continue
		}
		delta := sign * l.Quantity
		if err := s.catalog.AdjustStock(ctx, l.Product, delta); err != nil {
			s.logger.Warn("Stock update failed",
				zap.String("order_id", orderID),
				zap.String("product_id", l.Product.Hex()),
				zap.Int("delta", delta),
				zap.Error(err))
			s.audit.Record(audit.ActionStockAdjustFailed, orderID, bson.M{
				"product_id": l.Product.Hex(),
				"delta":      delta,
				"error":      err.Error(),
			})
		}
	}
}
