// Package geo provides great-circle distance math for hazard matching.
package geo

import (
	"fmt"
	"math"

	"github.com/roadwatch/go-road-hazards/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine distance between two coordinates in
// kilometers. Identical points yield exactly 0; the intermediate term is
// clamped so antipodal points never produce NaN.
func DistanceKm(a, b models.Coordinates) float64 {
	if a == b {
		return 0
	}

	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// RoundKm rounds a distance to two decimals for user-facing payloads.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

// ValidateCoordinates rejects NaN and out-of-range latitude/longitude.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
