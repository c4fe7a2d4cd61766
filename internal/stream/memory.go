package stream

import (
	"sync"

	"github.com/nearlist/nearlist/internal/models"
)

// MemoryStream is an in-process Publisher/Source used in tests and by the
// simulator when no broker is configured. Handlers run synchronously on the
// publishing goroutine.
type MemoryStream struct {
	mu        sync.Mutex
	nextID    int
	created   map[int]CreatedHandler
	live      map[int]SnapshotHandler
	lastLive  []models.ListingEvent
	liveKnown bool
}

// NewMemoryStream creates an empty in-process stream.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{
		created: make(map[int]CreatedHandler),
		live:    make(map[int]SnapshotHandler),
	}
}

// PublishCreated delivers one creation event to every subscriber.
func (s *MemoryStream) PublishCreated(event models.ListingEvent) error {
	s.mu.Lock()
	handlers := make([]CreatedHandler, 0, len(s.created))
	for _, h := range s.created {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// PublishLiveSnapshot delivers the live set to every subscriber and retains
// it for late subscribers, matching broker retention semantics.
func (s *MemoryStream) PublishLiveSnapshot(listings []models.ListingEvent) error {
	s.mu.Lock()
	s.lastLive = listings
	s.liveKnown = true
	handlers := make([]SnapshotHandler, 0, len(s.live))
	for _, h := range s.live {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(listings)
	}
	return nil
}

// SubscribeCreated registers a handler for creation events.
func (s *MemoryStream) SubscribeCreated(handler CreatedHandler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.created[id] = handler
	return &memorySubscription{remove: func() {
		s.mu.Lock()
		delete(s.created, id)
		s.mu.Unlock()
	}}, nil
}

// SubscribeLive registers a handler for live snapshots, replaying the last
// retained snapshot if one exists.
func (s *MemoryStream) SubscribeLive(handler SnapshotHandler) (Subscription, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.live[id] = handler
	replay := s.liveKnown
	last := s.lastLive
	s.mu.Unlock()

	if replay {
		handler(last)
	}
	return &memorySubscription{remove: func() {
		s.mu.Lock()
		delete(s.live, id)
		s.mu.Unlock()
	}}, nil
}

type memorySubscription struct {
	once   sync.Once
	remove func()
}

func (s *memorySubscription) Close() {
	s.once.Do(s.remove)
}
