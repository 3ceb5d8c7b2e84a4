package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Product struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Stock     int                `bson:"stock" json:"stock"`
	Category  string             `bson:"category" json:"category"`
	Image     string             `bson:"image" json:"image"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type PriceRange string

const (
	PriceRangeAll       PriceRange = "all"
	PriceRangeUnder500  PriceRange = "under-500"
	PriceRange500To1000 PriceRange = "500-1000"
	PriceRangeAbove1000 PriceRange = "above-1000"
)

type ProductFilter struct {
	Category   string
	PriceRange PriceRange
	Search     string
	Page       int
	Limit      int
}

// ProductPatch carries the fields an admin update sets. Nil fields are left alone.
type ProductPatch struct {
	Name     *string
	Price    *float64
	Stock    *int
	Category *string
	Image    *string
}
