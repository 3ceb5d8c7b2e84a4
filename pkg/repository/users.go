package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository is a read-only view of the user directory.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(m *MongoRepository) *UserRepository {
	return &UserRepository{coll: m.collection(usersCollection)}
}

func (r *UserRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	opts := options.FindOne().SetProjection(bson.M{"password": 0, "refreshTokens": 0, "orders": 0})
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) CountUsers(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

// CountCreatedBetween counts accounts created in [start, end).
func (r *UserRepository) CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"createdAt": bson.M{"$gte": start, "$lt": end},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
