package location

import (
	"context"
	"testing"
	"time"

	"github.com/nearlist/nearlist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts acquisition outcomes and feeds a watch channel.
type fakeProvider struct {
	attempts []func(opts AcquireOptions) (models.Location, error)
	calls    int
	optsSeen []AcquireOptions

	watchCh  chan Update
	watchErr error
}

func (f *fakeProvider) Current(ctx context.Context, opts AcquireOptions) (models.Location, error) {
	f.optsSeen = append(f.optsSeen, opts)
	if f.calls >= len(f.attempts) {
		return models.Location{}, ErrUnavailable
	}
	attempt := f.attempts[f.calls]
	f.calls++
	return attempt(opts)
}

func (f *fakeProvider) Watch(ctx context.Context) (<-chan Update, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case u, ok := <-f.watchCh:
				if !ok {
					return
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func fix(lat, lon float64) func(AcquireOptions) (models.Location, error) {
	return func(AcquireOptions) (models.Location, error) {
		return models.Location{Lat: lat, Lon: lon}, nil
	}
}

func fail(err error) func(AcquireOptions) (models.Location, error) {
	return func(AcquireOptions) (models.Location, error) {
		return models.Location{}, err
	}
}

func TestAcquire_PrimarySuccess(t *testing.T) {
	provider := &fakeProvider{attempts: []func(AcquireOptions) (models.Location, error){fix(37.7, -122.4)}}
	tracker := NewTracker(provider)

	loc, err := tracker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 37.7, loc.Lat)

	require.Len(t, provider.optsSeen, 1)
	assert.Equal(t, PrimaryTimeout, provider.optsSeen[0].Timeout)
	assert.Equal(t, MaxCachedAge, provider.optsSeen[0].MaxAge)
	assert.True(t, provider.optsSeen[0].HighAccuracy)
}

func TestAcquire_RetriesRelaxAccuracyAndShortenTimeout(t *testing.T) {
	provider := &fakeProvider{attempts: []func(AcquireOptions) (models.Location, error){
		fail(ErrTimeout),
		fail(ErrUnavailable),
		fix(51.5, -0.12),
	}}
	tracker := NewTracker(provider)

	loc, err := tracker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 51.5, loc.Lat)

	require.Len(t, provider.optsSeen, 3)
	assert.True(t, provider.optsSeen[0].HighAccuracy)
	assert.False(t, provider.optsSeen[1].HighAccuracy)
	assert.False(t, provider.optsSeen[2].HighAccuracy)
	assert.Equal(t, PrimaryTimeout/2, provider.optsSeen[1].Timeout)
	assert.Equal(t, PrimaryTimeout/4, provider.optsSeen[2].Timeout)
}

func TestAcquire_TerminalAfterRetryBudget(t *testing.T) {
	provider := &fakeProvider{attempts: []func(AcquireOptions) (models.Location, error){
		fail(ErrTimeout), fail(ErrTimeout), fail(ErrTimeout),
	}}
	tracker := NewTracker(provider)

	_, err := tracker.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, provider.calls) // primary + 2 retries, no more
}

func TestAcquire_PermissionDeniedIsImmediatelyTerminal(t *testing.T) {
	provider := &fakeProvider{attempts: []func(AcquireOptions) (models.Location, error){
		fail(ErrPermissionDenied), fix(1, 1),
	}}
	tracker := NewTracker(provider)

	_, err := tracker.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, provider.calls)
}

func waitForUpdate(t *testing.T, w *Watch) models.Location {
	t.Helper()
	select {
	case loc, ok := <-w.Updates():
		require.True(t, ok, "watch closed unexpectedly")
		return loc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return models.Location{}
	}
}

func TestTrack_CoalescesJitter(t *testing.T) {
	provider := &fakeProvider{watchCh: make(chan Update)}
	tracker := NewTracker(provider)

	w, err := tracker.Track(context.Background())
	require.NoError(t, err)
	defer w.Stop()

	origin := models.Location{Lat: 37.7749, Lon: -122.4194}
	provider.watchCh <- Update{Location: origin}
	got := waitForUpdate(t, w)
	assert.Equal(t, origin, got)

	// Sub-threshold jitter (~0.02 miles) must not propagate.
	jitter := models.Location{Lat: origin.Lat + 0.02/69.172, Lon: origin.Lon}
	provider.watchCh <- Update{Location: jitter}

	// A significant move (~0.5 miles) must propagate.
	moved := models.Location{Lat: origin.Lat + 0.5/69.172, Lon: origin.Lon}
	provider.watchCh <- Update{Location: moved}

	got = waitForUpdate(t, w)
	assert.Equal(t, moved, got)

	current := w.Current()
	require.NotNil(t, current)
	assert.Equal(t, moved, *current)
}

func TestTrack_StopIsIdempotent(t *testing.T) {
	provider := &fakeProvider{watchCh: make(chan Update)}
	tracker := NewTracker(provider)

	w, err := tracker.Track(context.Background())
	require.NoError(t, err)

	w.Stop()
	w.Stop()

	select {
	case _, ok := <-w.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not close after Stop")
	}
}

func TestTrack_TerminalError(t *testing.T) {
	provider := &fakeProvider{watchCh: make(chan Update)}
	tracker := NewTracker(provider)

	w, err := tracker.Track(context.Background())
	require.NoError(t, err)
	defer w.Stop()

	provider.watchCh <- Update{Err: ErrPermissionDenied}

	select {
	case _, ok := <-w.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not close after terminal error")
	}
	assert.ErrorIs(t, w.Err(), ErrPermissionDenied)
}

func TestTrack_ProviderStartFailure(t *testing.T) {
	provider := &fakeProvider{watchErr: ErrUnavailable}
	tracker := NewTracker(provider)

	_, err := tracker.Track(context.Background())
	assert.Error(t, err)
}
