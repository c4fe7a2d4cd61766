package models

import "time"

// DefaultRadiusMiles is the notification radius applied when a registration
// does not specify one.
const DefaultRadiusMiles = 10.0

// Registration represents a device's opt-in record for proximity
// notifications. A user may hold several registrations (one per device);
// uniqueness is on the token value.
type Registration struct {
	Token     string    `bson:"token" json:"token"`
	OwnerID   string    `bson:"owner_id" json:"owner_id"`
	Location  *Location `bson:"location,omitempty" json:"location,omitempty"`
	Radius    float64   `bson:"radius" json:"radius"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Matchable reports whether the registration can be evaluated against a
// listing location. Registrations without a known location or a positive
// radius never match.
func (r *Registration) Matchable() bool {
	return r.Location != nil && r.Radius > 0
}

// RegisterDeviceRequest is the request body for opting a device in.
type RegisterDeviceRequest struct {
	Token    string    `json:"token"`
	Location *Location `json:"location,omitempty"`
	Radius   float64   `json:"radius,omitempty"`
}

// UpdateLocationRequest is the request body for refreshing a device's
// last-known location.
type UpdateLocationRequest struct {
	Location Location `json:"location"`
}
