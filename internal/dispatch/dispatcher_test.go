package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nearlist/nearlist/internal/db"
	"github.com/nearlist/nearlist/internal/geo"
	"github.com/nearlist/nearlist/internal/models"
	"github.com/nearlist/nearlist/internal/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistrations is an in-memory db.RegistrationCollection.
type fakeRegistrations struct {
	mu      sync.Mutex
	records []models.Registration
	listErr error
}

func (f *fakeRegistrations) Upsert(ctx context.Context, reg models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.Token == reg.Token {
			f.records[i] = reg
			return nil
		}
	}
	f.records = append(f.records, reg)
	return nil
}

func (f *fakeRegistrations) ListAll(ctx context.Context) (db.RegistrationCursor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	snapshot := append([]models.Registration(nil), f.records...)
	f.mu.Unlock()
	return &fakeCursor{records: snapshot, pos: -1}, nil
}

func (f *fakeRegistrations) FindByToken(ctx context.Context, token string) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Token == token {
			reg := r
			return &reg, nil
		}
	}
	return nil, errors.New("registration not found")
}

func (f *fakeRegistrations) DeleteByToken(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.Registration
	var deleted int64
	for _, r := range f.records {
		if r.Token == token {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	return deleted, nil
}

func (f *fakeRegistrations) UpdateLocation(ctx context.Context, token string, loc models.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.Token == token {
			f.records[i].Location = &loc
			return nil
		}
	}
	return errors.New("registration not found")
}

type fakeCursor struct {
	records []models.Registration
	pos     int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.records)
}

func (c *fakeCursor) Decode(out interface{}) error {
	*(out.(*models.Registration)) = c.records[c.pos]
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Close(ctx context.Context) error { return nil }

// fakeSender records sends and fails configured tokens.
type fakeSender struct {
	mu      sync.Mutex
	sent    []models.NotificationPayload
	failErr map[string]error
}

func (f *fakeSender) Send(ctx context.Context, payload models.NotificationPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failErr[payload.Target]; ok {
		return err
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSender) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		tokens = append(tokens, p.Target)
	}
	return tokens
}

var sfEvent = models.ListingEvent{
	ID:          "listing-1",
	OwnerID:     "merchant-1",
	Coordinates: &models.Location{Lat: 37.7749, Lon: -122.4194},
	Category:    "bakery",
	Description: "weekend pop-up",
	Status:      models.ListingLive,
}

// nearSF returns a location roughly `miles` north of the event coordinates.
func nearSF(miles float64) *models.Location {
	return &models.Location{Lat: 37.7749 + miles/69.172, Lon: -122.4194}
}

func TestDispatcher_NotifiesWithinRadius(t *testing.T) {
	regs := &fakeRegistrations{records: []models.Registration{
		{Token: "near", OwnerID: "u1", Location: nearSF(2), Radius: 10},
		{Token: "far", OwnerID: "u2", Location: nearSF(12), Radius: 10},
	}}
	sender := &fakeSender{}

	result, err := New(regs, sender, 4).HandleListingCreated(context.Background(), sfEvent)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"near"}, sender.sentTokens())
}

func TestDispatcher_InclusiveBoundary(t *testing.T) {
	// distance == radius must notify; a radius even fractionally tighter must
	// not. The radius is set to the computed distance itself so the comparison
	// under test is exact equality, not a near-zero distance.
	edge := nearSF(3)
	d := geo.Distance(edge.Lat, edge.Lon, sfEvent.Coordinates.Lat, sfEvent.Coordinates.Lon)
	require.Greater(t, d, 2.0)

	regs := &fakeRegistrations{records: []models.Registration{
		{Token: "at-edge", OwnerID: "u1", Location: edge, Radius: d},
		{Token: "too-tight", OwnerID: "u2", Location: edge, Radius: d * 0.999},
	}}
	sender := &fakeSender{}

	result, err := New(regs, sender, 2).HandleListingCreated(context.Background(), sfEvent)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"at-edge"}, sender.sentTokens())
}

func TestDispatcher_SkipsUnmatchableRegistrations(t *testing.T) {
	regs := &fakeRegistrations{records: []models.Registration{
		{Token: "no-location", OwnerID: "u1", Radius: 10},
		{Token: "no-radius", OwnerID: "u2", Location: nearSF(1)},
	}}
	sender := &fakeSender{}

	result, err := New(regs, sender, 2).HandleListingCreated(context.Background(), sfEvent)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, sender.sentTokens())
}

func TestDispatcher_ListingWithoutCoordinatesIsNoop(t *testing.T) {
	regs := &fakeRegistrations{records: []models.Registration{
		{Token: "near", OwnerID: "u1", Location: nearSF(1), Radius: 10},
	}}
	sender := &fakeSender{}

	event := sfEvent
	event.Coordinates = nil
	result, err := New(regs, sender, 2).HandleListingCreated(context.Background(), event)
	require.NoError(t, err)
	assert.Zero(t, result.Evaluated)
	assert.Empty(t, sender.sentTokens())
}

func TestDispatcher_PrunesInvalidEndpoints(t *testing.T) {
	regs := &fakeRegistrations{records: []models.Registration{
		{Token: "dead", OwnerID: "u1", Location: nearSF(1), Radius: 10},
		{Token: "dead", OwnerID: "u2", Location: nearSF(2), Radius: 10},
		{Token: "alive", OwnerID: "u3", Location: nearSF(3), Radius: 10},
	}}
	sender := &fakeSender{failErr: map[string]error{
		"dead": &push.Error{Code: push.CodeEndpointInvalid, Err: errors.New("gone")},
	}}

	result, err := New(regs, sender, 1).HandleListingCreated(context.Background(), sfEvent)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.GreaterOrEqual(t, result.Pruned, 1)

	// Every record holding the dead token is gone.
	_, findErr := regs.FindByToken(context.Background(), "dead")
	assert.Error(t, findErr)

	// A following dispatch finds zero matches for that token.
	sender.sent = nil
	result, err = New(regs, sender, 1).HandleListingCreated(context.Background(), sfEvent)
	require.NoError(t, err)
	assert.Equal(t, []string{"alive"}, sender.sentTokens())
	assert.Zero(t, result.Pruned)
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	regs := &fakeRegistrations{records: []models.Registration{
		{Token: "flaky", OwnerID: "u1", Location: nearSF(1), Radius: 10},
		{Token: "ok-1", OwnerID: "u2", Location: nearSF(2), Radius: 10},
		{Token: "ok-2", OwnerID: "u3", Location: nearSF(3), Radius: 10},
	}}
	sender := &fakeSender{failErr: map[string]error{
		"flaky": &push.Error{Code: push.CodeTransient, Err: errors.New("gateway 503")},
	}}

	result, err := New(regs, sender, 2).HandleListingCreated(context.Background(), sfEvent)
	require.NoError(t, err)

	// A transient failure is logged, not retried, and does not abort siblings.
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Sent)
	assert.ElementsMatch(t, []string{"ok-1", "ok-2"}, sender.sentTokens())

	// The flaky registration is not pruned on a transient failure.
	_, findErr := regs.FindByToken(context.Background(), "flaky")
	assert.NoError(t, findErr)
}

func TestDispatcher_StoreErrorSurfaces(t *testing.T) {
	regs := &fakeRegistrations{listErr: errors.New("store down")}
	_, err := New(regs, &fakeSender{}, 2).HandleListingCreated(context.Background(), sfEvent)
	assert.Error(t, err)
}

func TestDispatcher_PayloadShape(t *testing.T) {
	payload := buildPayload(sfEvent, "token-a")
	assert.Equal(t, "token-a", payload.Target)
	assert.Equal(t, "New bakery listing nearby", payload.Title)
	assert.Equal(t, "weekend pop-up", payload.Body)
	assert.Equal(t, "listing-1", payload.Data.ListingID)
	assert.Equal(t, "nearlist://listings/listing-1", payload.Data.DeepLink)
}
