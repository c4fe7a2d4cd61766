package geo

import "math"

// earthRadiusMiles is the mean Earth radius. The dispatch and feed paths both
// use this single constant so a registration radius means the same thing on
// either side.
const earthRadiusMiles = 3959.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Distance computes the great-circle distance in miles between two lat/lon
// points using the haversine formula. Inputs are degrees; callers guarantee
// valid coordinates.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}
