package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/db"
	"github.com/nearlist/nearlist/internal/geo"
	"github.com/nearlist/nearlist/internal/middleware"
	"github.com/nearlist/nearlist/internal/models"
	"github.com/nearlist/nearlist/internal/stream"
)

// ListingHandler handles listing publication and lifecycle requests.
type ListingHandler struct {
	listings  db.ListingCollection
	publisher stream.Publisher
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(listings db.ListingCollection, publisher stream.Publisher) *ListingHandler {
	return &ListingHandler{listings: listings, publisher: publisher}
}

// Create publishes a new listing and emits its creation event to the change
// stream, which triggers the notification fan-out and feed refreshes.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req models.CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Coordinates == nil {
		// A live listing always carries coordinates.
		http.Error(w, "Coordinates are required", http.StatusBadRequest)
		return
	}

	listing := models.Listing{
		OwnerID:     claims.UserID,
		Coordinates: req.Coordinates,
		Category:    req.Category,
		Description: req.Description,
		Address:     req.Address,
	}
	id, err := h.listings.InsertListing(r.Context(), listing)
	if err != nil {
		log.WithError(err).Error("Failed to insert listing")
		http.Error(w, "Failed to create listing", http.StatusInternalServerError)
		return
	}

	event := models.ListingEvent{
		ID:          id.Hex(),
		OwnerID:     claims.UserID,
		Coordinates: req.Coordinates,
		Category:    req.Category,
		Description: req.Description,
		Address:     req.Address,
		Status:      models.ListingLive,
		CreatedAt:   time.Now(),
	}
	if err := h.publisher.PublishCreated(event); err != nil {
		// The listing exists; a lost event means missed notifications, not a
		// failed creation.
		log.WithError(err).WithField("listing_id", event.ID).Error("Failed to publish created event")
	}
	h.publishLiveSnapshot(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id.Hex()})
}

// Listing dispatches /api/listings/{id}/end.
func (h *ListingHandler) Listing(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/listings/")
	id, found := strings.CutSuffix(rest, "/end")
	if !found || id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	h.end(w, r, id)
}

// end transitions a listing live→ended. Only the owner or an admin may end
// it, and the transition happens exactly once.
func (h *ListingHandler) end(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	listing, err := h.listings.FindListingByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Listing not found", http.StatusNotFound)
		return
	}
	if listing.OwnerID != claims.UserID && claims.Role != models.RoleAdmin {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	if err := h.listings.EndListing(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrListingNotLive) {
			http.Error(w, "Listing already ended", http.StatusConflict)
			return
		}
		log.WithError(err).Error("Failed to end listing")
		http.Error(w, "Failed to end listing", http.StatusInternalServerError)
		return
	}
	h.publishLiveSnapshot(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// nearbyResponse is the payload for the nearby listing query.
type nearbyResponse struct {
	Listings []nearbyListing `json:"listings"`
	Bounds   geo.Bounds      `json:"bounds"`
	Zoom     int             `json:"zoom"`
}

type nearbyListing struct {
	models.Listing
	DistanceMiles float64 `json:"distance_miles"`
}

// Nearby returns live listings within a radius of a point, sorted ascending
// by distance (ties by id), with the viewport that inscribes the radius.
func (h *ListingHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}

	radius := models.DefaultRadiusMiles
	if raw := r.URL.Query().Get("radius"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid radius", http.StatusBadRequest)
			return
		}
		radius = parsed
	}

	live, err := h.listings.FindLiveListings(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to load live listings")
		http.Error(w, "Failed to load listings", http.StatusInternalServerError)
		return
	}

	// The store only filters on status; distance filtering happens here.
	matches := make([]nearbyListing, 0, len(live))
	for _, listing := range live {
		if !listing.HasCoordinates() {
			continue
		}
		distance := geo.Distance(lat, lon, listing.Coordinates.Lat, listing.Coordinates.Lon)
		if distance > radius {
			continue
		}
		matches = append(matches, nearbyListing{Listing: listing, DistanceMiles: distance})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceMiles != matches[j].DistanceMiles {
			return matches[i].DistanceMiles < matches[j].DistanceMiles
		}
		return matches[i].ID.Hex() < matches[j].ID.Hex()
	})

	response := nearbyResponse{
		Listings: matches,
		Bounds:   geo.ViewportFor(lat, lon, radius),
		Zoom:     geo.ZoomFor(radius),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// publishLiveSnapshot pushes the current live set to feed subscribers.
func (h *ListingHandler) publishLiveSnapshot(ctx context.Context) {
	live, err := h.listings.FindLiveListings(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load live listings for snapshot")
		return
	}

	events := make([]models.ListingEvent, 0, len(live))
	for _, listing := range live {
		events = append(events, models.ListingEvent{
			ID:          listing.ID.Hex(),
			OwnerID:     listing.OwnerID,
			Coordinates: listing.Coordinates,
			Category:    listing.Category,
			Description: listing.Description,
			Address:     listing.Address,
			Status:      listing.Status,
			CreatedAt:   listing.CreatedAt,
		})
	}
	if err := h.publisher.PublishLiveSnapshot(events); err != nil {
		log.WithError(err).Error("Failed to publish live snapshot")
	}
}
