package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultOrderPageSize = 10

// OrderRepository is the canonical order ledger.
type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(m *MongoRepository) *OrderRepository {
	return &OrderRepository{coll: m.collection(ordersCollection)}
}

type OrderQuery struct {
	Search string
	Page   int
	Limit  int
}

type OrderPage struct {
	Orders []models.OrderSummary
	Total  int64
}

func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	res, err := r.coll.InsertOne(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id
	}
	return nil
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var o models.Order
	if err := r.coll.FindOne(ctx, filter).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID})
}

func (r *OrderRepository) FindForUser(ctx context.Context, userID primitive.ObjectID, orderID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID, "userId": userID})
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus writes the status and returns the order as it was before the write.
// A non-empty from makes the write conditional on the current status; when the
// order exists with another status it reports ErrStatusConflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (*models.Order, error) {
	filter := bson.M{"orderId": orderID}
	if from != "" {
		filter["status"] = from
	}

	var prev models.Order
	err := r.coll.FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&prev)
	if err == nil {
		return &prev, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if from == "" {
		return nil, ErrNotFound
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"orderId": orderID})
	if err != nil {
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStatusConflict
}

// Delete removes the order and returns it as it was at the moment of deletion.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) (*models.Order, error) {
	var deleted models.Order
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"orderId": orderID}).Decode(&deleted); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete order: %w", err)
	}
	return &deleted, nil
}

// Search joins orders with their owners and pages through the result newest first.
// Orders whose owner no longer exists are dropped by the join.
func (r *OrderRepository) Search(ctx context.Context, q OrderQuery) (*OrderPage, error) {
	cursor, err := r.coll.Aggregate(ctx, searchPipeline(q))
	if err != nil {
		return nil, fmt.Errorf("failed to search orders: %w", err)
	}
	defer cursor.Close(ctx)

	var facets []struct {
		Metadata []struct {
			Total int64 `bson:"total"`
		} `bson:"metadata"`
		Data []models.OrderSummary `bson:"data"`
	}
	if err := cursor.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	page := &OrderPage{Orders: []models.OrderSummary{}}
	if len(facets) == 0 {
		return page, nil
	}
	if facets[0].Data != nil {
		page.Orders = facets[0].Data
	}
	if len(facets[0].Metadata) > 0 {
		page.Total = facets[0].Metadata[0].Total
	}
	return page, nil
}

func searchPipeline(q OrderQuery) mongo.Pipeline {
	page, limit := normalizePage(q.Page, q.Limit, defaultOrderPageSize)

	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "userId",
			"foreignField": "_id",
			"as":           "owner",
		}}},
		{{Key: "$unwind", Value: "$owner"}},
		{{Key: "$project", Value: bson.M{
			"orderId":     1,
			"email":       "$owner.email",
			"name":        "$owner.name",
			"items":       1,
			"totalAmount": 1,
			"status":      1,
			"address":     1,
			"phone":       1,
			"createdAt":   1,
		}}},
	}

	if s := strings.TrimSpace(q.Search); s != "" {
		re := containsInsensitive(s)
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"orderId": re},
				bson.M{"email": re},
				bson.M{"name": re},
			},
		}}})
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"metadata": bson.A{bson.M{"$count": "total"}},
			"data": bson.A{
				bson.M{"$skip": (page - 1) * limit},
				bson.M{"$limit": limit},
			},
		}}},
	)
	return pipeline
}

// StatsRows streams the dashboard projection of every order in the ledger.
func (r *OrderRepository) StatsRows(ctx context.Context) ([]models.OrderStatsRow, error) {
	opts := options.Find().SetProjection(bson.M{"status": 1, "totalAmount": 1, "createdAt": 1})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	defer cursor.Close(ctx)

	rows := []models.OrderStatsRow{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return rows, nil
}
