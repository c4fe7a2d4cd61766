// Package feed maintains a distance-sorted, radius-filtered view of the
// active listing set for one viewer, kept current as the listing stream, the
// viewer's location, and the radius preference change.
package feed

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/geo"
	"github.com/nearlist/nearlist/internal/geocode"
	"github.com/nearlist/nearlist/internal/location"
	"github.com/nearlist/nearlist/internal/models"
	"github.com/nearlist/nearlist/internal/stream"
)

// Item is one listing in the viewer's feed, annotated with its distance from
// the viewer.
type Item struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Address       string          `json:"address,omitempty"`
	Coordinates   models.Location `json:"coordinates"`
	DistanceMiles float64         `json:"distance_miles"`
}

// Synchronizer consumes the status=live listing stream and publishes ordered
// feed snapshots. The stream handler, the location watch, and radius changes
// all funnel through one mutex so a consumer never observes a half-applied
// update. Ordering is fixed by distance (ties by listing id) before any
// address resolves; an address patch re-emits the same ordering with the
// field filled in.
type Synchronizer struct {
	source   stream.Source
	tracker  *location.Tracker
	resolver geocode.Resolver

	mu        sync.Mutex
	raw       []models.ListingEvent
	hasRaw    bool
	origin    *models.Location
	radius    float64
	addresses map[string]string
	resolving map[string]bool
	done      bool
	err       error

	updates chan []Item
	sub     stream.Subscription
	watch   *location.Watch
	cancel  context.CancelFunc
	close   sync.Once
}

// NewSynchronizer creates a synchronizer for one viewer session. radius <= 0
// falls back to the default radius preference.
func NewSynchronizer(source stream.Source, tracker *location.Tracker, resolver geocode.Resolver, radius float64) *Synchronizer {
	if radius <= 0 {
		radius = models.DefaultRadiusMiles
	}
	return &Synchronizer{
		source:    source,
		tracker:   tracker,
		resolver:  resolver,
		radius:    radius,
		addresses: make(map[string]string),
		resolving: make(map[string]bool),
		updates:   make(chan []Item, 1),
	}
}

// Start subscribes to the listing stream and begins tracking the viewer's
// location. It returns once both are running; snapshots then arrive on
// Updates.
func (s *Synchronizer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	sub, err := s.source.SubscribeLive(s.handleSnapshot)
	if err != nil {
		cancel()
		return err
	}
	s.sub = sub

	watch, err := s.tracker.Track(runCtx)
	if err != nil {
		sub.Close()
		cancel()
		return err
	}
	s.watch = watch

	go func() {
		for loc := range watch.Updates() {
			s.handleLocation(loc)
		}
		s.finish(watch.Err())
	}()

	return nil
}

// Updates delivers feed snapshots. Each snapshot is complete and ordered; a
// slow consumer sees only the latest state. The channel closes when the
// session ends, either through Close or a terminal location failure; Err
// reports which.
func (s *Synchronizer) Updates() <-chan []Item {
	return s.updates
}

// Err returns the failure that ended the session, if any. It is meaningful
// once Updates has closed; permission denial surfaces here rather than being
// swallowed into a stale feed.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetRadius changes the radius preference and recomputes against the last
// received snapshot. No stream re-subscription happens.
func (s *Synchronizer) SetRadius(radius float64) {
	if radius <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if radius == s.radius {
		return
	}
	s.radius = radius
	s.recomputeLocked()
}

// Close tears the session down. It is idempotent and leaves no dangling
// callbacks.
func (s *Synchronizer) Close() {
	s.close.Do(func() {
		if s.sub != nil {
			s.sub.Close()
		}
		if s.watch != nil {
			s.watch.Stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// finish ends the session once: the error is recorded and Updates is closed
// so a consumer blocked on it observes the termination instead of waiting on
// a watch that will never fire again.
func (s *Synchronizer) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.updates)
	if err != nil {
		log.WithError(err).Warn("Location watch ended, closing feed")
	}
}

func (s *Synchronizer) handleSnapshot(listings []models.ListingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = listings
	s.hasRaw = true
	s.recomputeLocked()
}

// handleLocation receives coalesced positions; sub-threshold jitter never
// reaches here.
func (s *Synchronizer) handleLocation(loc models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = &loc
	s.recomputeLocked()
}

// recomputeLocked rebuilds and publishes the filtered, sorted view. Callers
// hold s.mu.
func (s *Synchronizer) recomputeLocked() {
	if s.done || !s.hasRaw || s.origin == nil {
		return
	}

	items := make([]Item, 0, len(s.raw))
	for _, listing := range s.raw {
		if listing.Coordinates == nil {
			continue
		}
		distance := geo.Distance(s.origin.Lat, s.origin.Lon, listing.Coordinates.Lat, listing.Coordinates.Lon)
		if distance > s.radius {
			continue
		}

		address := listing.Address
		if address == "" {
			address = s.addresses[listing.ID]
		}
		if address == "" {
			s.resolveAsync(listing)
		}

		items = append(items, Item{
			ID:            listing.ID,
			OwnerID:       listing.OwnerID,
			Category:      listing.Category,
			Description:   listing.Description,
			Address:       address,
			Coordinates:   *listing.Coordinates,
			DistanceMiles: distance,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].DistanceMiles != items[j].DistanceMiles {
			return items[i].DistanceMiles < items[j].DistanceMiles
		}
		return items[i].ID < items[j].ID
	})

	// Latest-wins publish: replace any unconsumed snapshot.
	select {
	case <-s.updates:
	default:
	}
	s.updates <- items
}

// resolveAsync kicks off address resolution for a listing without one. The
// lookup never blocks or reorders the feed; when it completes, the same
// ordering is re-emitted with the address patched in. Failures degrade
// silently. Callers hold s.mu.
func (s *Synchronizer) resolveAsync(listing models.ListingEvent) {
	if s.resolving[listing.ID] || s.resolver == nil {
		return
	}
	s.resolving[listing.ID] = true

	coords := *listing.Coordinates
	go func() {
		address, err := s.resolver.Resolve(context.Background(), coords.Lat, coords.Lon)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.resolving, listing.ID)
		if err != nil {
			log.WithError(err).WithField("listing_id", listing.ID).Debug("Address resolution failed")
			return
		}
		if address == "" {
			return
		}
		s.addresses[listing.ID] = address
		s.recomputeLocked()
	}()
}
