package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type mockLedger struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	insertErr error

	// beforeUpdate runs ahead of every status write, outside the lock.
	beforeUpdate func(orderID string)
}

func newMockLedger() *mockLedger {
	return &mockLedger{orders: make(map[string]*models.Order)}
}

func (m *mockLedger) Insert(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	order.ID = primitive.NewObjectID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *mockLedger) get(orderID string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		cp := *o
		return &cp
	}
	return nil
}

func (m *mockLedger) FindByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	if o := m.get(orderID); o != nil {
		return o, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockLedger) FindForUser(_ context.Context, userID primitive.ObjectID, orderID string) (*models.Order, error) {
	if o := m.get(orderID); o != nil && o.UserID == userID {
		return o, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockLedger) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []models.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (m *mockLedger) UpdateStatus(_ context.Context, orderID string, from, to models.OrderStatus) (*models.Order, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if from != "" && o.Status != from {
		return nil, repository.ErrStatusConflict
	}
	prev := *o
	o.Status = to
	return &prev, nil
}

// setStatus changes an order directly, as another writer would.
func (m *mockLedger) setStatus(orderID string, status models.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].Status = status
}

func (m *mockLedger) Delete(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.orders, orderID)
	return o, nil
}

// Search joins against users the same way the aggregation does: orders without an owner drop out.
type searchableLedger struct {
	*mockLedger
	users *mockUsers
}

func (m *searchableLedger) Search(_ context.Context, q repository.OrderQuery) (*repository.OrderPage, error) {
	return m.search(q, m.users), nil
}

func (m *mockLedger) Search(_ context.Context, q repository.OrderQuery) (*repository.OrderPage, error) {
	return m.search(q, nil), nil
}

func (m *mockLedger) search(q repository.OrderQuery, users *mockUsers) *repository.OrderPage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []models.OrderSummary
	for _, o := range m.orders {
		s := models.OrderSummary{OrderID: o.OrderID, Items: o.Items, TotalAmount: o.TotalAmount,
			Status: o.Status, CreatedAt: o.CreatedAt}
		if users != nil {
			u, ok := users.users[o.UserID]
			if !ok {
				continue
			}
			s.Email, s.Name = u.Email, u.Name
		}
		needle := strings.ToLower(q.Search)
		if needle != "" && !strings.Contains(strings.ToLower(s.OrderID+" "+s.Email+" "+s.Name), needle) {
			continue
		}
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })

	page := &repository.OrderPage{Orders: []models.OrderSummary{}, Total: int64(len(rows))}
	start := (q.Page - 1) * q.Limit
	if start < len(rows) {
		end := start + q.Limit
		if end > len(rows) {
			end = len(rows)
		}
		page.Orders = rows[start:end]
	}
	return page
}

type mockCatalog struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
	failing  map[primitive.ObjectID]bool
	calls    int
}

func newMockCatalog(products ...*models.Product) *mockCatalog {
	m := &mockCatalog{
		products: make(map[primitive.ObjectID]*models.Product),
		failing:  make(map[primitive.ObjectID]bool),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) stock(id primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *mockCatalog) GetProducts(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	out := make(map[primitive.ObjectID]*models.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockCatalog) AdjustStock(_ context.Context, id primitive.ObjectID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[id] {
		return errors.New("write conflict")
	}
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Stock += delta
	return nil
}

func (m *mockCatalog) DecrementStockIfAvailable(_ context.Context, id primitive.ObjectID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Stock < qty {
		return repository.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

type mockCarts struct {
	mu      sync.Mutex
	cleared map[primitive.ObjectID]int
	err     error
}

func newMockCarts() *mockCarts {
	return &mockCarts{cleared: make(map[primitive.ObjectID]int)}
}

func (m *mockCarts) Clear(_ context.Context, userID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared[userID]++
	return m.err
}

type mockUsers struct {
	users map[primitive.ObjectID]*models.User
}

func newMockUsers(users ...*models.User) *mockUsers {
	m := &mockUsers{users: make(map[primitive.ObjectID]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUsers) GetUser(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type recordedEvent struct {
	Action   string
	EntityID string
	Data     bson.M
}

type mockAudit struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *mockAudit) Record(action, entityID string, data bson.M) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{action, entityID, data})
}

func (m *mockAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

func (m *mockAudit) GetAuditLogs(_ context.Context, entityID string, _ int64) ([]*repository.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var logs []*repository.AuditLog
	for _, e := range m.events {
		if e.EntityID == entityID {
			logs = append(logs, &repository.AuditLog{Action: e.Action, EntityID: e.EntityID, Data: e.Data})
		}
	}
	return logs, nil
}

type fixture struct {
	svc     *Service
	ledger  *mockLedger
	catalog *mockCatalog
	carts   *mockCarts
	users   *mockUsers
	audit   *mockAudit

	user *models.User
	p1   *models.Product
	p2   *models.Product
}

func defaultOrdersConfig() config.OrdersConfig {
	return config.OrdersConfig{
		StockPolicy:          config.StockBestEffort,
		RestoreStockOnCancel: true,
		DefaultPageLimit:     10,
	}
}

func newFixture(cfg config.OrdersConfig) *fixture {
	f := &fixture{
		user: &models.User{ID: primitive.NewObjectID(), Name: "Ana", Email: "ana@example.com"},
		p1:   &models.Product{ID: primitive.NewObjectID(), Name: "Twin Mill", Price: 100, Stock: 10},
		p2:   &models.Product{ID: primitive.NewObjectID(), Name: "Bone Shaker", Price: 50, Stock: 10},
	}
	f.ledger = newMockLedger()
	f.catalog = newMockCatalog(f.p1, f.p2)
	f.carts = newMockCarts()
	f.users = newMockUsers(f.user)
	f.audit = &mockAudit{}
	f.svc = NewService(cfg, Deps{
		Ledger:  &searchableLedger{mockLedger: f.ledger, users: f.users},
		Catalog: f.catalog,
		Carts:   f.carts,
		Users:   f.users,
		Audit:   f.audit,
		History: f.audit,
	}, zap.NewNop())
	return f
}

func (f *fixture) place(lines ...models.OrderLine) (*models.Order, error) {
	return f.svc.PlaceOrder(context.Background(), f.user.ID, PlaceOrderInput{
		Items: lines, Address: "1 Main St", Phone: "555-0100",
	})
}
