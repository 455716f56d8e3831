package models

import "time"

type HazardType string

const (
	HazardTypePothole  HazardType = "pothole"
	HazardTypeDebris   HazardType = "debris"
	HazardTypeFlooding HazardType = "flooding"
	HazardTypeAccident HazardType = "accident"
	HazardTypeAnimal   HazardType = "animal"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type HazardStatus string

const (
	HazardStatusActive   HazardStatus = "active"
	HazardStatusResolved HazardStatus = "resolved"
)

// DefaultConfidence is used when no classifier scored the report,
// i.e. a human filed it directly.
const DefaultConfidence = 100

// Hazard is one reported road condition. The hazard type is an open set:
// unknown values coming from a classifier pass through untouched.
type Hazard struct {
	ID                    int64        `json:"id"`
	Type                  HazardType   `json:"type"`
	Latitude              float64      `json:"latitude"`
	Longitude             float64      `json:"longitude"`
	Severity              Severity     `json:"severity"`
	Confidence            int          `json:"confidence"` // percentage [0,100]
	Status                HazardStatus `json:"status"`
	ReportedBy            string       `json:"reported_by,omitempty"`
	ResolvedBy            string       `json:"resolved_by,omitempty"`
	EvidenceRef           string       `json:"evidence_ref,omitempty"`
	ResolutionEvidenceRef string       `json:"resolution_evidence_ref,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	ResolvedAt            *time.Time   `json:"resolved_at,omitempty"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Hazard) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  h.Latitude,
		Longitude: h.Longitude,
	}
}

// HazardWithDistance annotates a hazard with its distance from a query origin.
type HazardWithDistance struct {
	Hazard
	DistanceKm float64 `json:"distance_km"`
}
