package geo

import (
	"math"
	"testing"

	"github.com/roadwatch/go-road-hazards/internal/models"
)

func TestDistanceKm_IdenticalPointsAreZero(t *testing.T) {
	points := []models.Coordinates{
		{Latitude: 0, Longitude: 0},
		{Latitude: 13.3409, Longitude: 74.7421},
		{Latitude: -90, Longitude: 180},
	}
	for _, p := range points {
		if d := DistanceKm(p, p); d != 0 {
			t.Errorf("DistanceKm(%v, %v) = %v, want 0", p, p, d)
		}
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	a := models.Coordinates{Latitude: 13.3409, Longitude: 74.7421}
	b := models.Coordinates{Latitude: 35.6762, Longitude: 139.6503}

	ab := DistanceKm(a, b)
	ba := DistanceKm(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name    string
		a, b    models.Coordinates
		wantKm  float64
		within  float64
	}{
		{
			name:   "one hundredth degree of latitude",
			a:      models.Coordinates{Latitude: 13.3409, Longitude: 74.7421},
			b:      models.Coordinates{Latitude: 13.3500, Longitude: 74.7421},
			wantKm: 1.01,
			within: 0.02,
		},
		{
			name:   "adjacent street corners",
			a:      models.Coordinates{Latitude: 13.3409, Longitude: 74.7421},
			b:      models.Coordinates{Latitude: 13.3410, Longitude: 74.7422},
			wantKm: 0.015,
			within: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.within {
				t.Errorf("DistanceKm = %v, want %v +- %v", got, tt.wantKm, tt.within)
			}
		})
	}
}

func TestDistanceKm_AntipodalIsFinite(t *testing.T) {
	a := models.Coordinates{Latitude: 0, Longitude: 0}
	b := models.Coordinates{Latitude: 0, Longitude: 180}

	d := DistanceKm(a, b)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		t.Fatalf("antipodal distance is not finite: %v", d)
	}
	// Half the earth's circumference is just over 20000 km.
	if d < 19000 || d > 21000 {
		t.Errorf("antipodal distance = %v, want roughly 20015", d)
	}
}

func TestRoundKm(t *testing.T) {
	if got := RoundKm(7.23456); got != 7.23 {
		t.Errorf("RoundKm(7.23456) = %v, want 7.23", got)
	}
	if got := RoundKm(0.015552); got != 0.02 {
		t.Errorf("RoundKm(0.015552) = %v, want 0.02", got)
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(13.3409, 74.7421); err != nil {
		t.Errorf("valid coordinates rejected: %v", err)
	}
	if err := ValidateCoordinates(-90, 180); err != nil {
		t.Errorf("boundary coordinates rejected: %v", err)
	}

	invalid := []struct{ lat, lon float64 }{
		{91, 0},
		{-91, 0},
		{0, 181},
		{0, -181},
		{math.NaN(), 0},
		{0, math.NaN()},
	}
	for _, c := range invalid {
		if err := ValidateCoordinates(c.lat, c.lon); err == nil {
			t.Errorf("ValidateCoordinates(%v, %v) = nil, want error", c.lat, c.lon)
		}
	}
}
