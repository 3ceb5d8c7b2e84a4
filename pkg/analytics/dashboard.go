package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	salesDays      = 30
	activityMonths = 12
	dayLayout      = "2006-01-02"
	monthLayout    = "Jan 2006"
)

type OrderSource interface {
	StatsRows(ctx context.Context) ([]models.OrderStatsRow, error)
}

type UserCounter interface {
	CountUsers(ctx context.Context) (int64, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error)
}

type ProductCounter interface {
	CountProducts(ctx context.Context) (int64, error)
}

type DailySales struct {
	Date  string  `json:"date"`
	Sales float64 `json:"sales"`
}

type MonthlyActivity struct {
	Month  string `json:"month"`
	Orders int    `json:"orders"`
	Users  int64  `json:"users"`
}

// Snapshot is the admin dashboard payload.
type Snapshot struct {
	TotalUsers        int64             `json:"totalUsers"`
	TotalProducts     int64             `json:"totalProducts"`
	TotalOrders       int               `json:"totalOrders"`
	TotalRevenue      float64           `json:"totalRevenue"`
	StatusCounts      map[string]int    `json:"statusCounts"`
	SalesData         []DailySales      `json:"salesData"`
	UsersVsOrdersData []MonthlyActivity `json:"usersVsOrdersData"`
}

type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the zone calendar days and months are cut in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// Aggregator rescans the order ledger on every call. Nothing is cached.
type Aggregator struct {
	orders   OrderSource
	users    UserCounter
	products ProductCounter
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func NewAggregator(orders OrderSource, users UserCounter, products ProductCounter, logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		orders:   orders,
		users:    users,
		products: products,
		loc:      time.UTC,
		now:      time.Now,
		logger:   logger.Named("analytics"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) DashboardStats(ctx context.Context) (*Snapshot, error) {
	totalUsers, err := a.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	totalProducts, err := a.products.CountProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	rows, err := a.orders.StatsRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}

	now := a.now().In(a.loc)

	snap := &Snapshot{
		TotalUsers:    totalUsers,
		TotalProducts: totalProducts,
		TotalOrders:   len(rows),
		StatusCounts:  make(map[string]int),
	}

	revenue := decimal.Zero
	daily := make(map[string]decimal.Decimal)
	monthly := make(map[string]int)

	for _, r := range rows {
		status := r.Status
		if status == "" {
			status = models.OrderStatusPending
		}
		snap.StatusCounts[string(status)]++

		counted := status != models.OrderStatusCancelled
		amount := decimal.NewFromFloat(r.TotalAmount)
		if counted {
			revenue = revenue.Add(amount)
		}

		if r.CreatedAt.IsZero() {
			continue
		}
		created := r.CreatedAt.In(a.loc)
		if counted {
			day := created.Format(dayLayout)
			daily[day] = daily[day].Add(amount)
		}
		monthly[created.Format(monthLayout)]++
	}
	snap.TotalRevenue = revenue.InexactFloat64()

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	snap.SalesData = make([]DailySales, 0, salesDays)
	for i := salesDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(dayLayout)
		snap.SalesData = append(snap.SalesData, DailySales{Date: day, Sales: daily[day].InexactFloat64()})
	}

	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.loc)
	snap.UsersVsOrdersData = make([]MonthlyActivity, 0, activityMonths)
	for i := activityMonths - 1; i >= 0; i-- {
		start := thisMonth.AddDate(0, -i, 0)
		label := start.Format(monthLayout)

		users, err := a.users.CountCreatedBetween(ctx, start, start.AddDate(0, 1, 0))
		if err != nil {
			return nil, fmt.Errorf("count users for %s: %w", label, err)
		}
		snap.UsersVsOrdersData = append(snap.UsersVsOrdersData, MonthlyActivity{
			Month:  label,
			Orders: monthly[label],
			Users:  users,
		})
	}

	a.logger.Debug("Dashboard stats computed",
		zap.Int("orders", len(rows)),
		zap.Int64("users", totalUsers))
	return snap, nil
}
