package geo

import "math"

// milesPerDegree is the span of one degree of latitude (or of longitude at
// the equator) in miles.
const milesPerDegree = 69.172

// minBoundDegrees floors the viewport deltas so a tiny radius never produces
// a degenerate zero-size rectangle.
const minBoundDegrees = 0.005

// Bounds is a rectangular viewport sized so the circle of the requested
// radius is inscribed in it.
type Bounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

// ViewportFor returns the bounding rectangle for a circle of radiusMiles
// centered on (lat, lon). Longitude spans are corrected by cos(latitude).
func ViewportFor(lat, lon, radiusMiles float64) Bounds {
	latDelta := radiusMiles / milesPerDegree

	lonScale := math.Cos(toRadians(lat))
	if lonScale < 0.01 {
		lonScale = 0.01 // near the poles a degree of longitude shrinks to nothing
	}
	lonDelta := radiusMiles / (milesPerDegree * lonScale)

	if latDelta < minBoundDegrees {
		latDelta = minBoundDegrees
	}
	if lonDelta < minBoundDegrees {
		lonDelta = minBoundDegrees
	}

	return Bounds{
		North: lat + latDelta,
		South: lat - latDelta,
		East:  lon + lonDelta,
		West:  lon - lonDelta,
	}
}

// zoomTier maps a radius ceiling to a discrete map zoom level.
type zoomTier struct {
	maxRadius float64
	zoom      int
}

var zoomTiers = []zoomTier{
	{maxRadius: 5, zoom: 13},
	{maxRadius: 10, zoom: 12},
	{maxRadius: 25, zoom: 11},
	{maxRadius: 50, zoom: 10},
	{maxRadius: 100, zoom: 9},
}

// coarsestZoom caps the tier table for radii beyond 100 miles.
const coarsestZoom = 8

// ZoomFor selects the discrete zoom tier for a radius in miles. Larger radii
// map to coarser (smaller) zoom levels, capped at the coarsest tier.
func ZoomFor(radiusMiles float64) int {
	for _, tier := range zoomTiers {
		if radiusMiles <= tier.maxRadius {
			return tier.zoom
		}
	}
	return coarsestZoom
}
