// Package dispatch fans a listing-creation event out to every registered
// device within its notification radius.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/db"
	"github.com/nearlist/nearlist/internal/geo"
	"github.com/nearlist/nearlist/internal/models"
	"github.com/nearlist/nearlist/internal/push"
)

// DefaultWorkers bounds the concurrent evaluate+notify units so a large
// registration set cannot exhaust the gateway or the store.
const DefaultWorkers = 16

// Result summarizes one fan-out run.
type Result struct {
	Evaluated int
	Skipped   int
	Sent      int
	Pruned    int
	Failed    int
}

// Dispatcher evaluates every registration against a newly created listing
// and pushes a notification to the ones within radius. Transient delivery
// failures are logged and not retried; retry with backoff is a known gap in
// the current design.
type Dispatcher struct {
	registrations db.RegistrationCollection
	sender        push.Sender
	workers       int
}

// New creates a dispatcher with the given collaborators. workers <= 0 falls
// back to DefaultWorkers.
func New(registrations db.RegistrationCollection, sender push.Sender, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		registrations: registrations,
		sender:        sender,
		workers:       workers,
	}
}

// HandleListingCreated runs one fan-out for a creation event. The event
// source delivers each creation exactly once; no deduplication happens here.
// A listing without coordinates is a successful no-op.
func (d *Dispatcher) HandleListingCreated(ctx context.Context, event models.ListingEvent) (Result, error) {
	var result Result

	if event.Coordinates == nil {
		log.WithField("listing_id", event.ID).Debug("Listing has no coordinates, skipping fan-out")
		return result, nil
	}

	cursor, err := d.registrations.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("list registrations: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := make(chan models.Registration)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for reg := range jobs {
				outcomes <- d.evaluate(ctx, event, reg)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var iterErr error
	go func() {
		defer close(jobs)
		for cursor.Next(ctx) {
			var reg models.Registration
			if err := cursor.Decode(&reg); err != nil {
				log.WithError(err).Warn("Skipping undecodable registration")
				continue
			}
			jobs <- reg
		}
		iterErr = cursor.Err()
	}()

	for o := range outcomes {
		result.Evaluated++
		switch o.kind {
		case outcomeSkipped:
			result.Skipped++
		case outcomeSent:
			result.Sent++
		case outcomePruned:
			result.Pruned++
		case outcomeFailed:
			result.Failed++
		}
	}

	if iterErr != nil {
		return result, fmt.Errorf("iterate registrations: %w", iterErr)
	}
	return result, nil
}

type outcomeKind int

const (
	outcomeSkipped outcomeKind = iota
	outcomeSent
	outcomePruned
	outcomeFailed
)

type outcome struct {
	kind outcomeKind
}

// evaluate processes one registration. Failures stay inside the unit so one
// bad endpoint never aborts or blocks its siblings.
func (d *Dispatcher) evaluate(ctx context.Context, event models.ListingEvent, reg models.Registration) outcome {
	if !reg.Matchable() {
		return outcome{kind: outcomeSkipped}
	}

	distance := geo.Distance(reg.Location.Lat, reg.Location.Lon, event.Coordinates.Lat, event.Coordinates.Lon)
	if distance > reg.Radius {
		return outcome{kind: outcomeSkipped}
	}

	err := d.sender.Send(ctx, buildPayload(event, reg.Token))
	if err == nil {
		return outcome{kind: outcomeSent}
	}

	if push.CodeOf(err) == push.CodeEndpointInvalid {
		if _, delErr := d.registrations.DeleteByToken(ctx, reg.Token); delErr != nil {
			log.WithError(delErr).WithField("token", reg.Token).Error("Failed to prune invalid registration")
			return outcome{kind: outcomeFailed}
		}
		log.WithField("token", reg.Token).Info("Pruned invalid registration")
		return outcome{kind: outcomePruned}
	}

	log.WithError(err).WithFields(log.Fields{
		"token":      reg.Token,
		"listing_id": event.ID,
		"code":       push.CodeOf(err).String(),
	}).Warn("Notification delivery failed")
	return outcome{kind: outcomeFailed}
}

// buildPayload assembles the notification for one device.
func buildPayload(event models.ListingEvent, token string) models.NotificationPayload {
	title := "New listing nearby"
	if event.Category != "" {
		title = fmt.Sprintf("New %s listing nearby", event.Category)
	}

	body := event.Description
	if body == "" {
		body = event.Address
	}

	return models.NotificationPayload{
		Target: token,
		Title:  title,
		Body:   body,
		Data: models.NotificationData{
			ListingID: event.ID,
			DeepLink:  "nearlist://listings/" + event.ID,
		},
	}
}
