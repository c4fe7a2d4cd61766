package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListingStatus represents the lifecycle state of a listing.
type ListingStatus string

const (
	ListingLive  ListingStatus = "live"
	ListingEnded ListingStatus = "ended"
)

// Listing represents a time-bounded physical listing (e.g. a pop-up sale)
// published by an owner at a fixed location.
type Listing struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID     string             `bson:"owner_id" json:"owner_id"`
	Coordinates *Location          `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	Status      ListingStatus      `bson:"status" json:"status"`
	Category    string             `bson:"category" json:"category"`
	Description string             `bson:"description" json:"description"`
	Address     string             `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	EndedAt     *time.Time         `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

// HasCoordinates reports whether the listing can take part in geospatial
// operations. Listings without coordinates are skipped, never an error.
func (l *Listing) HasCoordinates() bool {
	return l.Coordinates != nil
}

// ListingEvent is the change-stream event emitted once per listing creation
// and on status transitions.
type ListingEvent struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Coordinates *Location     `json:"coordinates,omitempty"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Address     string        `json:"address,omitempty"`
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CreateListingRequest is the request body for publishing a listing.
type CreateListingRequest struct {
	Coordinates *Location `json:"coordinates"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Address     string    `json:"address,omitempty"`
}
