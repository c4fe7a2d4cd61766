package db

import (
	"context"
	"fmt"
	"time"

	"github.com/nearlist/nearlist/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RegistrationCollection defines the interface for device registration
// operations. ListAll returns an iterator so the dispatcher can fan out over
// an arbitrarily large registration set without loading it all at once;
// iteration is safe while other callers upsert or delete.
type RegistrationCollection interface {
	Upsert(ctx context.Context, reg models.Registration) error
	ListAll(ctx context.Context) (RegistrationCursor, error)
	FindByToken(ctx context.Context, token string) (*models.Registration, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	UpdateLocation(ctx context.Context, token string, loc models.Location) error
}

// RegistrationCursor defines the interface for iterating registrations.
type RegistrationCursor interface {
	Next(ctx context.Context) bool
	Decode(out interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// MongoRegistrationCollection implements RegistrationCollection for MongoDB.
type MongoRegistrationCollection struct {
	Collection *mongo.Collection
}

// Upsert inserts or replaces a registration keyed by its token value.
func (c *MongoRegistrationCollection) Upsert(ctx context.Context, reg models.Registration) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if reg.Radius <= 0 {
		reg.Radius = models.DefaultRadiusMiles
	}
	now := time.Now()
	reg.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"owner_id":   reg.OwnerID,
			"location":   reg.Location,
			"radius":     reg.Radius,
			"updated_at": reg.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)
	_, err := c.Collection.UpdateOne(ctx, bson.M{"token": reg.Token}, update, opts)
	return err
}

// ListAll returns a cursor over every registration.
func (c *MongoRegistrationCollection) ListAll(ctx context.Context) (RegistrationCursor, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	return &mongoRegistrationCursor{cursor: cursor}, nil
}

// FindByToken finds a registration by its token value.
func (c *MongoRegistrationCollection) FindByToken(ctx context.Context, token string) (*models.Registration, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var reg models.Registration
	err := c.Collection.FindOne(ctx, bson.M{"token": token}).Decode(&reg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("registration not found")
		}
		return nil, err
	}
	return &reg, nil
}

// DeleteByToken removes every registration record holding the token value.
// A token may appear under more than one owner, so this is a DeleteMany on
// the token field rather than a single-document delete.
func (c *MongoRegistrationCollection) DeleteByToken(ctx context.Context, token string) (int64, error) {
	if c.Collection == nil {
		return 0, fmt.Errorf("mongo collection is nil")
	}
	result, err := c.Collection.DeleteMany(ctx, bson.M{"token": token})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// UpdateLocation refreshes the last-known location for a token.
func (c *MongoRegistrationCollection) UpdateLocation(ctx context.Context, token string, loc models.Location) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	result, err := c.Collection.UpdateMany(
		ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"location": loc, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("registration not found")
	}
	return nil
}

// mongoRegistrationCursor wraps a MongoDB cursor for registration queries.
type mongoRegistrationCursor struct {
	cursor *mongo.Cursor
}

func (m *mongoRegistrationCursor) Next(ctx context.Context) bool {
	return m.cursor.Next(ctx)
}

func (m *mongoRegistrationCursor) Decode(out interface{}) error {
	return m.cursor.Decode(out)
}

func (m *mongoRegistrationCursor) Err() error {
	return m.cursor.Err()
}

func (m *mongoRegistrationCursor) Close(ctx context.Context) error {
	return m.cursor.Close(ctx)
}
