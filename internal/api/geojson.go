package api

import (
	"github.com/roadwatch/go-road-hazards/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(hazards []models.Hazard) FeatureCollection {
	features := make([]Feature, 0, len(hazards))

	for _, h := range hazards {
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{h.Longitude, h.Latitude},
			},
			Properties: map[string]any{
				"id":         h.ID,
				"type":       string(h.Type),
				"severity":   string(h.Severity),
				"confidence": h.Confidence,
				"status":     string(h.Status),
				"created_at": h.CreatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
