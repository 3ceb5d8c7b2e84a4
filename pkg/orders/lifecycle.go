package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CancelOrder marks one of the requester's own orders Cancelled. Cancelling an
// already cancelled order succeeds and changes nothing.
func (s *Service) CancelOrder(ctx context.Context, requesterID, targetUserID primitive.ObjectID, orderID string) error {
	if requesterID != targetUserID {
		return ErrForbidden
	}

	if _, err := s.ledger.FindForUser(ctx, targetUserID, orderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("find order: %w", err)
	}

	prev, err := s.ledger.UpdateStatus(ctx, orderID, "", models.OrderStatusCancelled)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("cancel order: %w", err)
	}

	// Moving into Cancelled only gives stock back and cannot fail.
	_ = s.reconcileStock(ctx, prev, models.OrderStatusCancelled)
	s.audit.Record(audit.ActionOrderCancelled, orderID, bson.M{
		"user_id":     requesterID.Hex(),
		"from_status": string(prev.Status),
	})
	return nil
}

// AdminUpdateOrderStatus sets any known status. Transitions are checked against
// the lifecycle table only when strict transitions are enabled, and the write is
// then conditional on the status that was checked.
//
// Reopening a Cancelled order takes its stock again. Under the guarded policy a
// reopen that stock cannot cover is refused and the order stays Cancelled.
func (s *Service) AdminUpdateOrderStatus(ctx context.Context, orderID, rawStatus string) error {
	next, err := models.ParseOrderStatus(rawStatus)
	if err != nil {
		return ErrInvalidStatus
	}

	var from models.OrderStatus
	if s.cfg.StrictTransitions {
		current, err := s.ledger.FindByOrderID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("find order: %w", err)
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
		}
		from = current.Status
	}

	prev, err := s.ledger.UpdateStatus(ctx, orderID, from, next)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrOrderNotFound
		case errors.Is(err, repository.ErrStatusConflict):
			return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, orderID)
		}
		return fmt.Errorf("update order status: %w", err)
	}

	if err := s.reconcileStock(ctx, prev, next); err != nil {
		if _, rerr := s.ledger.UpdateStatus(ctx, orderID, next, prev.Status); rerr != nil {
			s.logger.Error("Failed to restore status after refused reopen",
				zap.String("order_id", orderID),
				zap.String("status", string(prev.Status)),
				zap.Error(rerr))
		}
		s.logger.Warn("Reopen refused",
			zap.String("order_id", orderID),
			zap.String("to_status", string(next)),
			zap.Error(err))
		return err
	}
	s.audit.Record(audit.ActionOrderStatusChanged, orderID, bson.M{
		"from_status": string(prev.Status),
		"to_status":   string(next),
	})
	return nil
}

// AdminDeleteOrder removes an order. Stock is given back for every line unless the
// order was already Cancelled at the moment it was deleted.
func (s *Service) AdminDeleteOrder(ctx context.Context, orderID string) error {
	deleted, err := s.ledger.Delete(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}

	restored := deleted.Status != models.OrderStatusCancelled
	if restored {
		s.adjustStock(ctx, orderID, deleted.Items, 1)
	}

	s.audit.Record(audit.ActionOrderDeleted, orderID, bson.M{
		"status":         string(deleted.Status),
		"stock_restored": restored,
	})
	s.logger.Info("Order deleted",
		zap.String("order_id", orderID),
		zap.String("status", string(deleted.Status)),
		zap.Bool("stock_restored", restored))
	return nil
}

// reconcileStock keeps stock held exactly while an order is not Cancelled, when
// restoring on cancel is enabled. With it disabled cancelling never touches stock.
// Only a guarded reopen can fail, leaving stock as it was.
func (s *Service) reconcileStock(ctx context.Context, prev *models.Order, next models.OrderStatus) error {
	if !s.cfg.RestoreStockOnCancel {
		return nil
	}
	wasCancelled := prev.Status == models.OrderStatusCancelled
	nowCancelled := next == models.OrderStatusCancelled

	switch {
	case !wasCancelled && nowCancelled:
		s.adjustStock(ctx, prev.OrderID, prev.Items, 1)
	case wasCancelled && !nowCancelled:
		if s.cfg.StockPolicy == config.StockGuarded {
			return s.reserveStock(ctx, prev.OrderID, prev.Items)
		}
		s.adjustStock(ctx, prev.OrderID, prev.Items, -1)
	}
	return nil
}
