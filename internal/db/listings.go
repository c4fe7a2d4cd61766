package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nearlist/nearlist/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrListingNotLive  = errors.New("listing is not live")
)

// ListingCollection defines the interface for listing persistence. The core
// only references listings; creation and ending go through here, and the feed
// reads the status=live set. No geospatial filtering happens in the store —
// the backing store cannot combine geo and equality predicates, so distance
// filtering is always done by the caller.
type ListingCollection interface {
	InsertListing(ctx context.Context, listing models.Listing) (primitive.ObjectID, error)
	FindListingByID(ctx context.Context, id string) (*models.Listing, error)
	FindLiveListings(ctx context.Context) ([]models.Listing, error)
	EndListing(ctx context.Context, id string) error
}

// MongoListingCollection implements ListingCollection for MongoDB.
type MongoListingCollection struct {
	Collection *mongo.Collection
}

// InsertListing inserts a listing record and returns its generated id.
func (c *MongoListingCollection) InsertListing(ctx context.Context, listing models.Listing) (primitive.ObjectID, error) {
	if c.Collection == nil {
		return primitive.NilObjectID, fmt.Errorf("mongo collection is nil")
	}
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.Status = models.ListingLive

	result, err := c.Collection.InsertOne(ctx, listing)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	return id, nil
}

// FindListingByID finds a listing by its ID.
func (c *MongoListingCollection) FindListingByID(ctx context.Context, id string) (*models.Listing, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid listing ID: %w", err)
	}

	var listing models.Listing
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&listing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// FindLiveListings returns all listings with status=live, newest first. This
// is the equality-only filter the change stream and the nearby query share.
func (c *MongoListingCollection) FindLiveListings(ctx context.Context) ([]models.Listing, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := c.Collection.Find(ctx, bson.M{"status": models.ListingLive}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// EndListing transitions a listing live→ended. The transition happens exactly
// once; ending an already-ended listing returns ErrListingNotLive.
func (c *MongoListingCollection) EndListing(ctx context.Context, id string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid listing ID: %w", err)
	}

	now := time.Now()
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID, "status": models.ListingLive},
		bson.M{"$set": bson.M{"status": models.ListingEnded, "ended_at": now, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing listing from one already ended.
		count, countErr := c.Collection.CountDocuments(ctx, bson.M{"_id": objectID})
		if countErr != nil {
			return countErr
		}
		if count == 0 {
			return ErrListingNotFound
		}
		return ErrListingNotLive
	}
	return nil
}
