package analytics

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/example/storefront/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockOrders struct {
	rows []models.OrderStatsRow
	err  error
}

func (m *mockOrders) StatsRows(context.Context) ([]models.OrderStatsRow, error) {
	return m.rows, m.err
}

type mockUsers struct {
	created []time.Time
	total   int64
}

func (m *mockUsers) CountUsers(context.Context) (int64, error) {
	return m.total, nil
}

func (m *mockUsers) CountCreatedBetween(_ context.Context, start, end time.Time) (int64, error) {
	var n int64
	for _, c := range m.created {
		if !c.Before(start) && c.Before(end) {
			n++
		}
	}
	return n, nil
}

type mockProducts struct{ total int64 }

func (m mockProducts) CountProducts(context.Context) (int64, error) {
	return m.total, nil
}

var fixedNow = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

func newTestAggregator(rows []models.OrderStatsRow, users *mockUsers, opts ...Option) *Aggregator {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewAggregator(&mockOrders{rows: rows}, users, mockProducts{total: 7}, zap.NewNop(), opts...)
}

func TestDashboardStats(t *testing.T) {
	rows := []models.OrderStatsRow{
		{Status: models.OrderStatusPending, TotalAmount: 100.10, CreatedAt: fixedNow.Add(-time.Hour)},
		{Status: models.OrderStatusCancelled, TotalAmount: 50, CreatedAt: fixedNow.Add(-2 * time.Hour)},
		{Status: "", TotalAmount: 0.20, CreatedAt: fixedNow.AddDate(0, 0, -29)},
		{Status: models.OrderStatusDelivered, TotalAmount: 999, CreatedAt: fixedNow.AddDate(0, 0, -30)},
		{Status: models.OrderStatusShipped, TotalAmount: 40, CreatedAt: fixedNow.AddDate(-1, 0, 0)},
		{Status: models.OrderStatusShipped, TotalAmount: 5},
	}
	users := &mockUsers{
		total: 3,
		created: []time.Time{
			time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, time.February, 28, 23, 59, 0, 0, time.UTC),
			time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	snap, err := newTestAggregator(rows, users).DashboardStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.TotalUsers)
	assert.Equal(t, int64(7), snap.TotalProducts)
	assert.Equal(t, 6, snap.TotalOrders)
	assert.Equal(t, 1144.30, snap.TotalRevenue)
	assert.Equal(t, map[string]int{"Pending": 2, "Cancelled": 1, "Delivered": 1, "Shipped": 2}, snap.StatusCounts)

	total := 0
	for _, n := range snap.StatusCounts {
		total += n
	}
	assert.Equal(t, snap.TotalOrders, total)

	require.Len(t, snap.SalesData, 30)
	assert.Equal(t, "2026-02-14", snap.SalesData[0].Date)
	assert.Equal(t, 0.20, snap.SalesData[0].Sales)
	assert.Equal(t, "2026-03-15", snap.SalesData[29].Date)
	assert.Equal(t, 100.10, snap.SalesData[29].Sales)
	for i := 1; i < len(snap.SalesData); i++ {
		assert.Less(t, snap.SalesData[i-1].Date, snap.SalesData[i].Date)
	}

	require.Len(t, snap.UsersVsOrdersData, 12)
	assert.Equal(t, "Apr 2025", snap.UsersVsOrdersData[0].Month)
	assert.Equal(t, "Mar 2026", snap.UsersVsOrdersData[11].Month)
	assert.Equal(t, 2, snap.UsersVsOrdersData[11].Orders)
	assert.Equal(t, int64(1), snap.UsersVsOrdersData[11].Users)
	assert.Equal(t, "Feb 2026", snap.UsersVsOrdersData[10].Month)
	assert.Equal(t, 2, snap.UsersVsOrdersData[10].Orders)
	assert.Equal(t, int64(1), snap.UsersVsOrdersData[10].Users)
	// a year ago falls just outside the window
	assert.Equal(t, 0, snap.UsersVsOrdersData[0].Orders)
	assert.Equal(t, int64(0), snap.UsersVsOrdersData[0].Users)
}

func TestDashboardStats_Empty(t *testing.T) {
	snap, err := newTestAggregator(nil, &mockUsers{}).DashboardStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, snap.TotalOrders)
	assert.Equal(t, 0.0, snap.TotalRevenue)
	assert.Empty(t, snap.StatusCounts)
	assert.Len(t, snap.SalesData, 30)
	assert.Len(t, snap.UsersVsOrdersData, 12)
}

func TestDashboardStats_Location(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC on the 14th is already the 15th in Kolkata
	rows := []models.OrderStatsRow{
		{Status: models.OrderStatusPending, TotalAmount: 10, CreatedAt: time.Date(2026, time.March, 14, 20, 0, 0, 0, time.UTC)},
	}

	utc, err := newTestAggregator(rows, &mockUsers{}).DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, utc.SalesData[28].Sales)

	local, err := newTestAggregator(rows, &mockUsers{}, WithLocation(kolkata)).DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", local.SalesData[29].Date)
	assert.Equal(t, 10.0, local.SalesData[29].Sales)
}

func TestDashboardStats_StorageError(t *testing.T) {
	agg := NewAggregator(&mockOrders{err: errors.New("cursor died")}, &mockUsers{}, mockProducts{}, zap.NewNop())
	_, err := agg.DashboardStats(context.Background())
	assert.Error(t, err)
}
