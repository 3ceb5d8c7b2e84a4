package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// setupMongo connects to TEST_MONGO_URI with a throwaway database, or skips.
func setupMongo(t *testing.T) *MongoRepository {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping integration tests")
	}

	cfg := &config.MongoDBConfig{
		URI:             uri,
		Database:        fmt.Sprintf("storefront_test_%d", time.Now().UnixNano()),
		AuditCollection: "audit_logs",
	}
	repo, err := NewMongoRepository(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.EnsureIndexes(ctx))

	t.Cleanup(func() {
		_ = repo.database.Drop(context.Background())
		_ = repo.Close(context.Background())
	})
	return repo
}

func seedProduct(t *testing.T, m *MongoRepository, price float64, stock int) primitive.ObjectID {
	t.Helper()
	res, err := m.collection(productsCollection).InsertOne(context.Background(), models.Product{
		Name: "Twin Mill", Price: price, Stock: stock, Category: "fantasy", Image: "twin-mill.png",
	})
	require.NoError(t, err)
	return res.InsertedID.(primitive.ObjectID)
}

func seedUser(t *testing.T, m *MongoRepository, name, email string, createdAt time.Time) primitive.ObjectID {
	t.Helper()
	res, err := m.collection(usersCollection).InsertOne(context.Background(), models.User{
		Name: name, Email: email, Role: models.RoleUser, CreatedAt: createdAt,
	})
	require.NoError(t, err)
	return res.InsertedID.(primitive.ObjectID)
}

func TestProductRepo_StockAdjustments(t *testing.T) {
	m := setupMongo(t)
	repo := NewProductRepository(m)
	ctx := context.Background()

	id := seedProduct(t, m, 100, 1)

	require.NoError(t, repo.AdjustStock(ctx, id, -3))
	p, err := repo.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, -2, p.Stock)

	assert.ErrorIs(t, repo.DecrementStockIfAvailable(ctx, id, 1), ErrInsufficientStock)
	require.NoError(t, repo.AdjustStock(ctx, id, 5))
	require.NoError(t, repo.DecrementStockIfAvailable(ctx, id, 3))

	p, err = repo.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	missing := primitive.NewObjectID()
	assert.ErrorIs(t, repo.AdjustStock(ctx, missing, 1), ErrNotFound)
	assert.ErrorIs(t, repo.DecrementStockIfAvailable(ctx, missing, 1), ErrNotFound)
	_, err = repo.GetProduct(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := repo.GetProducts(ctx, []primitive.ObjectID{id, missing})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, id)
}

func TestCartRepo_ReplaceAndClear(t *testing.T) {
	m := setupMongo(t)
	repo := NewCartRepository(m)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	cart, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// clearing a cart that was never saved is a no-op
	require.NoError(t, repo.Clear(ctx, userID))

	line := models.CartLine{Product: primitive.NewObjectID(), Quantity: 2}
	require.NoError(t, repo.Replace(ctx, userID, "Ana", []models.CartLine{line}))

	cart, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, line, cart.Items[0])
	assert.Equal(t, "Ana", cart.UserName)

	require.NoError(t, repo.Clear(ctx, userID))
	cart, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestOrderRepo_Lifecycle(t *testing.T) {
	m := setupMongo(t)
	repo := NewOrderRepository(m)
	ctx := context.Background()

	ownerID := seedUser(t, m, "Ana", "ana@example.com", time.Now())
	older := &models.Order{OrderID: "ord-1", UserID: ownerID, Status: models.OrderStatusPending,
		TotalAmount: 10, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.Order{OrderID: "ord-2", UserID: ownerID, Status: models.OrderStatusPending,
		TotalAmount: 20}
	require.NoError(t, repo.Insert(ctx, older))
	require.NoError(t, repo.Insert(ctx, newer))
	assert.False(t, newer.ID.IsZero())

	// orderId is unique
	assert.Error(t, repo.Insert(ctx, &models.Order{OrderID: "ord-1", UserID: ownerID}))

	list, err := repo.ListByUser(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ord-2", list[0].OrderID)

	_, err = repo.FindForUser(ctx, primitive.NewObjectID(), "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)

	prev, err := repo.UpdateStatus(ctx, "ord-1", models.OrderStatusPending, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, prev.Status)

	// conditional write against a stale status leaves the order alone
	_, err = repo.UpdateStatus(ctx, "ord-1", models.OrderStatusPending, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrStatusConflict)
	_, err = repo.UpdateStatus(ctx, "missing", models.OrderStatusPending, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.FindByOrderID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status)

	_, err = repo.UpdateStatus(ctx, "missing", "", models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := repo.Search(ctx, OrderQuery{Search: "ANA@", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "ord-2", page.Orders[0].OrderID)
	assert.Equal(t, "ana@example.com", page.Orders[0].Email)

	rows, err := repo.StatsRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	deleted, err := repo.Delete(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, deleted.Status)
	_, err = repo.Delete(ctx, "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_CountCreatedBetween(t *testing.T) {
	m := setupMongo(t)
	repo := NewUserRepository(m)
	ctx := context.Background()

	jan := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	seedUser(t, m, "A", "a@example.com", jan)
	seedUser(t, m, "B", "b@example.com", jan.AddDate(0, 1, 0))

	n, err := repo.CountCreatedBetween(ctx,
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestMongoRepo_AuditLogs(t *testing.T) {
	m := setupMongo(t)
	ctx := context.Background()

	require.NoError(t, m.CreateAuditLog(ctx, &AuditLog{
		Service: "storefront-api", Action: "order_placed", EntityID: "ord-1",
		Data: bson.M{"total_amount": 10.0},
	}))
	require.NoError(t, m.CreateAuditLog(ctx, &AuditLog{
		Service: "storefront-api", Action: "order_cancelled", EntityID: "ord-1",
		CreatedAt: time.Now().Add(time.Second),
	}))

	logs, err := m.GetAuditLogs(ctx, "ord-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "order_cancelled", logs[0].Action)
}

func TestProductRepo_CRUD(t *testing.T) {
	m := setupMongo(t)
	repo := NewProductRepository(m)
	ctx := context.Background()

	p := &models.Product{Name: "Bone Shaker", Price: 450, Stock: 3, Category: "Classics", Image: "bone.png"}
	require.NoError(t, repo.CreateProduct(ctx, p))
	require.False(t, p.ID.IsZero())
	assert.Equal(t, "classics", p.Category)

	price, category := 520.5, "Muscle"
	updated, err := repo.UpdateProduct(ctx, p.ID, models.ProductPatch{Price: &price, Category: &category})
	require.NoError(t, err)
	assert.Equal(t, 520.5, updated.Price)
	assert.Equal(t, "muscle", updated.Category)
	assert.Equal(t, "Bone Shaker", updated.Name)
	assert.Equal(t, 3, updated.Stock)

	_, err = repo.UpdateProduct(ctx, primitive.NewObjectID(), models.ProductPatch{Price: &price})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.DeleteProduct(ctx, p.ID))
	assert.ErrorIs(t, repo.DeleteProduct(ctx, p.ID), ErrNotFound)
	_, err = repo.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductRepo_ListIsStableAcrossPages(t *testing.T) {
	m := setupMongo(t)
	repo := NewProductRepository(m)
	ctx := context.Background()

	var ids []primitive.ObjectID
	for i := 0; i < 5; i++ {
		ids = append(ids, seedProduct(t, m, float64(100+i), 1))
	}

	var seen []primitive.ObjectID
	for page := 1; page <= 3; page++ {
		products, total, err := repo.ListProducts(ctx, models.ProductFilter{Page: page, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		for _, p := range products {
			seen = append(seen, p.ID)
		}
	}
	assert.Equal(t, ids, seen)
}
