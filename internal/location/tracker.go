// Package location acquires and tracks the local device's coordinates,
// smoothing GPS jitter before anything downstream sees an update.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/geo"
	"github.com/nearlist/nearlist/internal/models"
)

var (
	// ErrPermissionDenied is terminal; no retry helps until the user
	// re-grants access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnavailable means the position source produced no fix.
	ErrUnavailable = errors.New("location unavailable")
	// ErrTimeout means an acquisition attempt exceeded its deadline.
	ErrTimeout = errors.New("location acquisition timed out")
)

const (
	// PrimaryTimeout bounds the first acquisition attempt.
	PrimaryTimeout = 15 * time.Second
	// MaxCachedAge is how stale a cached position may be and still count.
	MaxCachedAge = 60 * time.Second
	// MaxRetries bounds how many relaxed attempts follow a failed primary.
	MaxRetries = 2
	// SignificantChangeMiles is the minimum movement before a watch
	// propagates a new position downstream.
	SignificantChangeMiles = 0.1
)

// AcquireOptions tunes one acquisition attempt.
type AcquireOptions struct {
	Timeout      time.Duration
	MaxAge       time.Duration
	HighAccuracy bool
}

// Provider is the platform position source. Watch delivers raw, unfiltered
// updates until ctx is cancelled.
type Provider interface {
	Current(ctx context.Context, opts AcquireOptions) (models.Location, error)
	Watch(ctx context.Context) (<-chan Update, error)
}

// Update is one raw position reading or a terminal watch error.
type Update struct {
	Location models.Location
	Err      error
}

// Tracker acquires positions with a bounded retry policy and exposes a
// coalesced watch.
type Tracker struct {
	provider Provider
}

// NewTracker creates a tracker over the given position provider.
func NewTracker(provider Provider) *Tracker {
	return &Tracker{provider: provider}
}

// Acquire obtains the current position. The primary attempt allows high
// accuracy with a generous timeout; each retry relaxes accuracy and halves
// the timeout. Permission denial is terminal immediately; timeout and
// unavailability exhaust the retry budget before surfacing.
func (t *Tracker) Acquire(ctx context.Context) (models.Location, error) {
	opts := AcquireOptions{
		Timeout:      PrimaryTimeout,
		MaxAge:       MaxCachedAge,
		HighAccuracy: true,
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			opts.HighAccuracy = false
			opts.Timeout /= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		loc, err := t.provider.Current(attemptCtx, opts)
		cancel()

		if err == nil {
			return loc, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return models.Location{}, err
		}
		if ctx.Err() != nil {
			return models.Location{}, ctx.Err()
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Debug("Location acquisition failed")
	}
	return models.Location{}, fmt.Errorf("location acquisition failed after %d retries: %w", MaxRetries, lastErr)
}

// Watch is a running, coalesced location watch.
type Watch struct {
	updates chan models.Location
	cancel  context.CancelFunc
	stop    sync.Once

	mu      sync.Mutex
	current *models.Location
	err     error
}

// Track starts a watch. Updates are propagated only when the position moves
// more than SignificantChangeMiles from the last propagated value, so GPS
// jitter never churns downstream consumers. The returned watch's Updates
// channel closes when the watch ends; Err reports a terminal failure.
func (t *Tracker) Track(ctx context.Context) (*Watch, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	raw, err := t.provider.Watch(watchCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start location watch: %w", err)
	}

	w := &Watch{
		updates: make(chan models.Location, 1),
		cancel:  cancel,
	}

	go func() {
		defer close(w.updates)
		for update := range raw {
			if update.Err != nil {
				w.mu.Lock()
				w.err = update.Err
				w.mu.Unlock()
				return
			}

			w.mu.Lock()
			last := w.current
			moved := last == nil ||
				geo.Distance(last.Lat, last.Lon, update.Location.Lat, update.Location.Lon) > SignificantChangeMiles
			if moved {
				loc := update.Location
				w.current = &loc
			}
			w.mu.Unlock()

			if !moved {
				continue
			}
			select {
			case w.updates <- update.Location:
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return w, nil
}

// Updates delivers coalesced position changes.
func (w *Watch) Updates() <-chan models.Location {
	return w.updates
}

// Current returns the last propagated position, or nil before the first fix.
func (w *Watch) Current() *models.Location {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	loc := *w.current
	return &loc
}

// Err returns the terminal watch failure, if any.
func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stop tears the watch down. It is idempotent; in-flight acquisitions are
// abandoned without side effects.
func (w *Watch) Stop() {
	w.stop.Do(w.cancel)
}
