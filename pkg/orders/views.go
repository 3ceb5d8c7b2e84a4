package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ResolvedLine is an order line whose product reference has been replaced by the
// current catalog entry. Product is nil when the product no longer exists.
type ResolvedLine struct {
	Product  *models.Product `json:"product"`
	Quantity int             `json:"quantity"`
	Price    float64         `json:"price"`
}

type OrderView struct {
	models.Order
	Items []ResolvedLine `json:"items"`
}

type AdminOrderView struct {
	ID string `json:"_id"`
	models.OrderSummary
	Items []ResolvedLine `json:"items"`
}

type AdminOrderPage struct {
	Orders      []AdminOrderView `json:"orders"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	TotalOrders int64            `json:"totalOrders"`
}

type AdminOrderDetail struct {
	ID          string                 `json:"id"`
	OrderID     string                 `json:"orderId"`
	Email       string                 `json:"email"`
	Items       []ResolvedLine         `json:"items"`
	TotalAmount float64                `json:"totalAmount"`
	Status      models.OrderStatus     `json:"status"`
	Address     string                 `json:"address"`
	Phone       string                 `json:"phone"`
	CreatedAt   time.Time              `json:"createdAt"`
	History     []*repository.AuditLog `json:"history,omitempty"`
}

// ListOrdersForUser returns the target user's orders newest first. Users may only
// list their own orders.
func (s *Service) ListOrdersForUser(ctx context.Context, requesterID, targetUserID primitive.ObjectID) ([]OrderView, error) {
	if requesterID != targetUserID {
		return nil, ErrForbidden
	}

	orders, err := s.ledger.ListByUser(ctx, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	lineSets := make([][]models.OrderLine, len(orders))
	for i := range orders {
		lineSets[i] = orders[i].Items
	}
	resolved, err := s.resolveLines(ctx, lineSets...)
	if err != nil {
		return nil, err
	}

	views := make([]OrderView, len(orders))
	for i := range orders {
		views[i] = OrderView{Order: orders[i], Items: resolved[i]}
	}
	return views, nil
}

// AdminListOrders pages through all orders joined with their owners. page below 1
// is treated as 1 and a limit below 1 falls back to the configured default.
func (s *Service) AdminListOrders(ctx context.Context, search string, page, limit int) (*AdminOrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.cfg.DefaultPageLimit
	}

	res, err := s.ledger.Search(ctx, repository.OrderQuery{Search: search, Page: page, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}

	lineSets := make([][]models.OrderLine, len(res.Orders))
	for i := range res.Orders {
		lineSets[i] = res.Orders[i].Items
	}
	resolved, err := s.resolveLines(ctx, lineSets...)
	if err != nil {
		return nil, err
	}

	views := make([]AdminOrderView, len(res.Orders))
	for i, o := range res.Orders {
		views[i] = AdminOrderView{ID: o.OrderID, OrderSummary: o, Items: resolved[i]}
	}

	return &AdminOrderPage{
		Orders:      views,
		TotalPages:  int((res.Total + int64(limit) - 1) / int64(limit)),
		CurrentPage: page,
		TotalOrders: res.Total,
	}, nil
}

// AdminGetOrder returns one order with its owner's email, or "Unknown" when the
// owner no longer exists.
func (s *Service) AdminGetOrder(ctx context.Context, orderID string) (*AdminOrderDetail, error) {
	order, err := s.ledger.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}

	email := "Unknown"
	owner, err := s.users.GetUser(ctx, order.UserID)
	switch {
	case err == nil:
		email = owner.Email
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get order owner: %w", err)
	}

	resolved, err := s.resolveLines(ctx, order.Items)
	if err != nil {
		return nil, err
	}

	detail := &AdminOrderDetail{
		ID:          order.OrderID,
		OrderID:     order.OrderID,
		Email:       email,
		Items:       resolved[0],
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		Address:     order.Address,
		Phone:       order.Phone,
		CreatedAt:   order.CreatedAt,
	}

	if s.history != nil {
		logs, err := s.history.GetAuditLogs(ctx, orderID, historyLimit)
		if err != nil {
			s.logger.Warn("Failed to load order history", zap.String("order_id", orderID), zap.Error(err))
		} else {
			detail.History = logs
		}
	}
	return detail, nil
}

// resolveLines swaps product references for current catalog snapshots using a
// single lookup across every line set.
func (s *Service) resolveLines(ctx context.Context, sets ...[]models.OrderLine) ([][]ResolvedLine, error) {
	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	for _, lines := range sets {
		for _, l := range lines {
			if _, ok := seen[l.Product]; ok || l.Product.IsZero() {
				continue
			}
			seen[l.Product] = struct{}{}
			ids = append(ids, l.Product)
		}
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	out := make([][]ResolvedLine, len(sets))
	for i, lines := range sets {
		out[i] = make([]ResolvedLine, len(lines))
		for j, l := range lines {
			out[i][j] = ResolvedLine{Product: products[l.Product], Quantity: l.Quantity, Price: l.Price}
		}
	}
	return out, nil
}
