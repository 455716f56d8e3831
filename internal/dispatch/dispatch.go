// Package dispatch fans hazard lifecycle events out to connected users.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/roadwatch/go-road-hazards/internal/geo"
	"github.com/roadwatch/go-road-hazards/internal/models"
	"github.com/roadwatch/go-road-hazards/internal/observability"
	"github.com/roadwatch/go-road-hazards/internal/registry"
	"github.com/roadwatch/go-road-hazards/internal/worker"
)

// Notifier is the delivery capability the transport layer provides. Delivery
// is fire-and-forget: implementations swallow per-connection failures.
type Notifier interface {
	BroadcastHazard(h *models.Hazard)
	NotifyProximity(connectionID string, h *models.Hazard, distanceKm float64)
	SendNearbySnapshot(connectionID string, hazards []models.HazardWithDistance)
	BroadcastResolution(h *models.Hazard)
}

// HazardSource is the read-only slice of the store the dispatcher needs.
type HazardSource interface {
	ListActiveNear(ctx context.Context, origin models.Coordinates, radiusKm float64) ([]models.HazardWithDistance, error)
}

type Options struct {
	AlertRadiusKm  float64 // push alert when a new hazard lands within this distance of a user
	NearbyRadiusKm float64 // snapshot radius after a location update
	WorkerCount    int
	WorkerBuffer   int
}

type Dispatcher struct {
	hazards  HazardSource
	registry *registry.Registry
	notifier Notifier
	metrics  *observability.Metrics
	pool     *worker.Pool
	opts     Options
}

func New(hazards HazardSource, reg *registry.Registry, notifier Notifier, metrics *observability.Metrics, opts Options) *Dispatcher {
	d := &Dispatcher{
		hazards:  hazards,
		registry: reg,
		notifier: notifier,
		metrics:  metrics,
		opts:     opts,
	}
	d.pool = worker.NewPool(opts.WorkerCount, opts.WorkerBuffer, d.refreshNearby)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// HazardReported pushes a proximity alert to every connected user with a
// known location within the alert radius, then broadcasts the hazard to all
// connections for map awareness.
func (d *Dispatcher) HazardReported(h *models.Hazard) {
	for _, u := range d.registry.Snapshot() {
		if u.Location == nil {
			continue
		}
		distance := geo.DistanceKm(*u.Location, h.Coordinates())
		if distance <= d.opts.AlertRadiusKm {
			d.notifier.NotifyProximity(u.ConnectionID, h, geo.RoundKm(distance))
			d.metrics.ProximityAlerts.Inc()
		}
	}
	d.notifier.BroadcastHazard(h)
}

// LocationChanged queues a nearby-hazards refresh for that user. The refresh
// is best-effort; a full queue just means the next periodic update wins.
func (d *Dispatcher) LocationChanged(userID, connectionID string, loc models.Coordinates) {
	ok := d.pool.Submit(worker.RefreshJob{
		UserID:       userID,
		ConnectionID: connectionID,
		Location:     loc,
	})
	if !ok {
		slog.Warn("nearby refresh dropped, queue full", "user_id", userID)
	}
}

// HazardResolved broadcasts the resolution to all connections.
func (d *Dispatcher) HazardResolved(h *models.Hazard) {
	d.notifier.BroadcastResolution(h)
}

func (d *Dispatcher) refreshNearby(ctx context.Context, job worker.RefreshJob) {
	hazards, err := d.hazards.ListActiveNear(ctx, job.Location, d.opts.NearbyRadiusKm)
	if err != nil {
		slog.Error("nearby hazard scan failed", "user_id", job.UserID, "error", err)
		return
	}
	if len(hazards) == 0 {
		return
	}
	for i := range hazards {
		hazards[i].DistanceKm = geo.RoundKm(hazards[i].DistanceKm)
	}
	d.notifier.SendNearbySnapshot(job.ConnectionID, hazards)
	d.metrics.NearbySnapshots.Inc()
}
