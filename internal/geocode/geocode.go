// Package geocode resolves coordinates to human-readable addresses through
// an external reverse-geocoding provider. Resolution is best-effort: callers
// treat an empty address as acceptable and never fail on geocode errors.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Resolver resolves a coordinate pair to a display address. An empty string
// with a nil error means the provider had no address for the point.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, error)
}

// HTTPResolver queries a Nominatim-style reverse-geocoding endpoint and
// caches results so repeated lookups for the same spot skip the network.
type HTTPResolver struct {
	BaseURL string
	Client  *http.Client

	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	address   string
	expiresAt time.Time
}

// NewHTTPResolver creates a resolver against the given base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     time.Hour,
		cache:   make(map[string]cacheEntry),
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

// Resolve looks up the address for (lat, lon).
func (r *HTTPResolver) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.address, nil
	}
	r.mu.Unlock()

	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode geocoder response: %w", err)
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{address: body.DisplayName, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return body.DisplayName, nil
}

// cacheKey buckets coordinates to ~11m so nearby jittered lookups share an
// entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}
