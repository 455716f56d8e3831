package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roadwatch/go-road-hazards/internal/geo"
	"github.com/roadwatch/go-road-hazards/internal/models"
	"github.com/roadwatch/go-road-hazards/internal/observability"
	"github.com/roadwatch/go-road-hazards/internal/store"
)

// Dispatcher is the slice of the proximity dispatcher the handler needs.
// Dispatch runs after the store transition has committed; its failures never
// affect the caller's response.
type Dispatcher interface {
	HazardReported(h *models.Hazard)
	HazardResolved(h *models.Hazard)
}

type Options struct {
	ListCap         int     // most-recent cap on list responses
	NearbyRadiusKm  float64 // default radius for /nearby
	ResolveRadiusKm float64 // echoed in too-far messages
}

type Handler struct {
	store      *store.Store
	dispatcher Dispatcher
	metrics    *observability.Metrics
	opts       Options
}

func NewHandler(s *store.Store, d Dispatcher, m *observability.Metrics, opts Options) *Handler {
	return &Handler{
		store:      s,
		dispatcher: d,
		metrics:    m,
		opts:       opts,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/hazards", h.reportHazard)
	r.POST("/api/hazards/:id/resolve", h.resolveHazard)
	r.GET("/api/hazards", h.listHazards)
	r.GET("/api/hazards/nearby", h.listNearby)
	r.GET("/api/hazards/geojson", h.activeHazardsGeoJSON)
	r.GET("/health", h.health)
}

type reportRequest struct {
	Type        string   `json:"type" binding:"required"`
	Latitude    *float64 `json:"lat" binding:"required,latitude"`
	Longitude   *float64 `json:"lon" binding:"required,longitude"`
	Severity    string   `json:"severity" binding:"required,oneof=low medium high"`
	Confidence  *int     `json:"confidence" binding:"omitempty,min=0,max=100"`
	EvidenceRef string   `json:"evidence_ref"`
	ReportedBy  string   `json:"reported_by"`
}

func (h *Handler) reportHazard(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report: " + err.Error()})
		return
	}

	confidence := models.DefaultConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	result, err := h.store.Report(c.Request.Context(), store.ReportInput{
		Type:        models.HazardType(req.Type),
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Severity:    models.Severity(req.Severity),
		Confidence:  confidence,
		EvidenceRef: req.EvidenceRef,
		ReportedBy:  req.ReportedBy,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store report"})
		return
	}

	if result.Duplicate {
		h.metrics.DuplicatesSuppressed.Inc()
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "hazard": result.Hazard})
		return
	}

	h.metrics.HazardsReported.Inc()
	h.dispatcher.HazardReported(result.Hazard)
	c.JSON(http.StatusCreated, gin.H{"duplicate": false, "hazard": result.Hazard})
}

type resolveRequest struct {
	Latitude    *float64 `json:"lat" binding:"required,latitude"`
	Longitude   *float64 `json:"lon" binding:"required,longitude"`
	ResolvedBy  string   `json:"resolved_by"`
	EvidenceRef string   `json:"evidence_ref"`
}

func (h *Handler) resolveHazard(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hazard id"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolve request: " + err.Error()})
		return
	}

	resolver := models.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	result, err := h.store.Resolve(c.Request.Context(), id, resolver, req.ResolvedBy, req.EvidenceRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve hazard"})
		return
	}

	switch result.Outcome {
	case store.ResolveOutcomeNotFound:
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": fmt.Sprintf("no hazard with id %d", id),
		})
	case store.ResolveOutcomeAlreadyResolved:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "hazard already resolved",
			"hazard":  result.Hazard,
		})
	case store.ResolveOutcomeTooFar:
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": fmt.Sprintf("hazard is %.2f km away; you must be within %.1f km to resolve it",
				result.DistanceKm, h.opts.ResolveRadiusKm),
			"hazard": result.Hazard,
		})
	case store.ResolveOutcomeResolved:
		h.metrics.HazardsResolved.Inc()
		h.dispatcher.HazardResolved(result.Hazard)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "hazard resolved",
			"hazard":  result.Hazard,
		})
	}
}

func (h *Handler) listHazards(c *gin.Context) {
	limit := h.opts.ListCap
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= limit {
			limit = n
		}
	}

	var (
		hazards []models.Hazard
		err     error
	)
	switch status := c.Query("status"); status {
	case "":
		hazards, err = h.store.ListRecent(c.Request.Context(), limit)
	case string(models.HazardStatusActive), string(models.HazardStatusResolved):
		hazards, err = h.store.ListByStatus(c.Request.Context(), models.HazardStatus(status), limit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or resolved"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch hazards"})
		return
	}

	total, active, resolved, err := h.store.Counts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count hazards"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hazards":        hazards,
		"total":          total,
		"active_count":   active,
		"resolved_count": resolved,
	})
}

func (h *Handler) listNearby(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon query parameters are required"})
		return
	}
	if err := geo.ValidateCoordinates(lat, lon); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	radius := h.opts.NearbyRadiusKm
	if r := c.Query("radius_km"); r != "" {
		if v, err := strconv.ParseFloat(r, 64); err == nil && v > 0 {
			radius = v
		}
	}

	origin := models.Coordinates{Latitude: lat, Longitude: lon}
	hazards, err := h.store.ListActiveNear(c.Request.Context(), origin, radius)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch nearby hazards"})
		return
	}
	for i := range hazards {
		hazards[i].DistanceKm = geo.RoundKm(hazards[i].DistanceKm)
	}

	c.JSON(http.StatusOK, gin.H{"hazards": hazards})
}

func (h *Handler) activeHazardsGeoJSON(c *gin.Context) {
	hazards, err := h.store.ListByStatus(c.Request.Context(), models.HazardStatusActive, h.opts.ListCap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch hazards"})
		return
	}

	fc := toGeoJSON(hazards)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
