package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ParseOrderStatus accepts any casing of a known status name.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the forward-only lifecycle allows moving to next.
// Writing the current status again is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "cod"
	PaymentCard     PaymentMethod = "card"
	PaymentUPI      PaymentMethod = "upi"
	PaymentRazorpay PaymentMethod = "razorpay"
)

// ParsePaymentMethod defaults an empty value to cash on delivery.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PaymentCOD, nil
	case PaymentCOD, PaymentCard, PaymentUPI, PaymentRazorpay:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

type OrderLine struct {
	Product  primitive.ObjectID `bson:"product" json:"product"`
	Quantity int                `bson:"quantity" json:"quantity"`
	Price    float64            `bson:"price" json:"price"`
}

// Order is immutable once placed except for Status. UserName is a snapshot taken at
// placement and is never refreshed.
type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	OrderID       string             `bson:"orderId" json:"orderId"`
	UserID        primitive.ObjectID `bson:"userId" json:"userId"`
	UserName      string             `bson:"userName" json:"userName"`
	Items         []OrderLine        `bson:"items" json:"items"`
	TotalAmount   float64            `bson:"totalAmount" json:"totalAmount"`
	PaymentMethod PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	Status        OrderStatus        `bson:"status" json:"status"`
	Address       string             `bson:"address" json:"address"`
	Phone         string             `bson:"phone" json:"phone"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OrderSummary is the admin view of an order joined with its owner.
type OrderSummary struct {
	OrderID     string      `bson:"orderId" json:"orderId"`
	Email       string      `bson:"email" json:"email"`
	Name        string      `bson:"name" json:"name"`
	Items       []OrderLine `bson:"items" json:"items"`
	TotalAmount float64     `bson:"totalAmount" json:"totalAmount"`
	Status      OrderStatus `bson:"status" json:"status"`
	Address     string      `bson:"address" json:"address"`
	Phone       string      `bson:"phone" json:"phone"`
	CreatedAt   time.Time   `bson:"createdAt" json:"createdAt"`
}

// OrderStatsRow carries only the fields the dashboard needs.
type OrderStatsRow struct {
	Status      OrderStatus `bson:"status"`
	TotalAmount float64     `bson:"totalAmount"`
	CreatedAt   time.Time   `bson:"createdAt"`
}
