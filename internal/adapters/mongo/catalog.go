package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

// CatalogRepository reads the per-category service catalog. The catalog is
// maintained by the CRUD layer; this core only verifies services exist and
// looks up prices at intent-encoding time.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("services"),
		logger: logger,
	}
}

type ServiceDoc struct {
	ID         uuid.UUID   `bson:"_id"`
	Category   string      `bson:"category"`
	Name       string      `bson:"name"`
	Island     string      `bson:"island"`
	PriceCents int64       `bson:"price_cents"`
	Options    []OptionDoc `bson:"options"`
	Active     bool        `bson:"active"`
	CreatedAt  time.Time   `bson:"created_at"`
	UpdatedAt  time.Time   `bson:"updated_at"`
}

type OptionDoc struct {
	ID         uuid.UUID `bson:"id"`
	Title      string    `bson:"title"`
	PriceCents int64     `bson:"price_cents"`
}

func (c *CatalogRepository) GetService(ctx context.Context, category domain.Category, id uuid.UUID) (*ServiceDoc, error) {
	var doc ServiceDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id, "category": string(category)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get service", err)
		return nil, err
	}
	return &doc, nil
}

func (c *CatalogRepository) CreateService(ctx context.Context, doc ServiceDoc) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		c.logger.Error("failed to create service", err)
		return err
	}
	return nil
}
