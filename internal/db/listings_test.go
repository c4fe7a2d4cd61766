package db

import (
	"context"
	"testing"

	"github.com/nearlist/nearlist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupListingCollection(t *testing.T) *MongoListingCollection {
	t.Helper()
	client, err := ConnectMongo()
	if err != nil {
		t.Skipf("failed to create client: %v, skipping integration test", err)
	}
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	collection := client.Database("test_nearlist").Collection("listings")
	collection.Drop(context.Background())
	return &MongoListingCollection{Collection: collection}
}

func TestMongoListingCollection_InsertAndFind(t *testing.T) {
	listings := setupListingCollection(t)
	ctx := context.Background()

	listing := models.Listing{
		OwnerID:     "owner-1",
		Coordinates: &models.Location{Lat: 37.7749, Lon: -122.4194},
		Category:    "bakery",
		Description: "weekend pop-up",
	}
	id, err := listings.InsertListing(ctx, listing)
	require.NoError(t, err)

	found, err := listings.FindListingByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.ListingLive, found.Status)
	assert.Equal(t, "bakery", found.Category)
	assert.True(t, found.HasCoordinates())
	assert.NotZero(t, found.CreatedAt)
}

func TestMongoListingCollection_FindLiveListings(t *testing.T) {
	listings := setupListingCollection(t)
	ctx := context.Background()

	idLive, err := listings.InsertListing(ctx, models.Listing{OwnerID: "owner-1", Category: "food"})
	require.NoError(t, err)
	idEnded, err := listings.InsertListing(ctx, models.Listing{OwnerID: "owner-1", Category: "vintage"})
	require.NoError(t, err)
	require.NoError(t, listings.EndListing(ctx, idEnded.Hex()))

	live, err := listings.FindLiveListings(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, idLive, live[0].ID)
}

func TestMongoListingCollection_EndListing_ExactlyOnce(t *testing.T) {
	listings := setupListingCollection(t)
	ctx := context.Background()

	id, err := listings.InsertListing(ctx, models.Listing{OwnerID: "owner-1"})
	require.NoError(t, err)

	require.NoError(t, listings.EndListing(ctx, id.Hex()))

	found, err := listings.FindListingByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.ListingEnded, found.Status)
	assert.NotNil(t, found.EndedAt)

	// The live→ended transition is irreversible and happens once.
	err = listings.EndListing(ctx, id.Hex())
	assert.ErrorIs(t, err, ErrListingNotLive)
}

func TestMongoListingCollection_EndListing_NotFound(t *testing.T) {
	listings := setupListingCollection(t)

	err := listings.EndListing(context.Background(), "507f1f77bcf86cd799439011")
	assert.ErrorIs(t, err, ErrListingNotFound)
}
