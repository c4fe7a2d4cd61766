// Package stream carries listing change events between the publishing side
// and its consumers (the notification dispatcher and every live feed). The
// broker delivers a creation event exactly once per listing; consumers do not
// deduplicate.
package stream

import (
	"github.com/nearlist/nearlist/internal/models"
)

// Topics for listing change traffic.
const (
	TopicCreated = "listings/created"
	TopicLive    = "listings/live"
)

// CreatedHandler consumes one listing-creation event.
type CreatedHandler func(event models.ListingEvent)

// SnapshotHandler consumes a snapshot of the current status=live listing set.
// The snapshot is pre-filtered by status only; all distance filtering stays
// with the consumer.
type SnapshotHandler func(listings []models.ListingEvent)

// Subscription is a handle to an active subscription. Close is idempotent
// and leaves no dangling handlers behind.
type Subscription interface {
	Close()
}

// Publisher emits listing change events.
type Publisher interface {
	PublishCreated(event models.ListingEvent) error
	PublishLiveSnapshot(listings []models.ListingEvent) error
}

// Source delivers listing change events to subscribers.
type Source interface {
	SubscribeCreated(handler CreatedHandler) (Subscription, error)
	SubscribeLive(handler SnapshotHandler) (Subscription, error)
}
