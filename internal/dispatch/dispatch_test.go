package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/roadwatch/go-road-hazards/internal/geo"
	"github.com/roadwatch/go-road-hazards/internal/models"
	"github.com/roadwatch/go-road-hazards/internal/observability"
	"github.com/roadwatch/go-road-hazards/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	hazardLoc   = models.Coordinates{Latitude: 13.3409, Longitude: 74.7421}
	nextDoorLoc = models.Coordinates{Latitude: 13.3410, Longitude: 74.7422} // ~15 m
	farAwayLoc  = models.Coordinates{Latitude: 13.5000, Longitude: 74.9000} // tens of km
)

type proximityCall struct {
	connectionID string
	hazardID     int64
	distanceKm   float64
}

type snapshotCall struct {
	connectionID string
	hazards      []models.HazardWithDistance
}

type fakeNotifier struct {
	mu          sync.Mutex
	broadcasts  []int64
	proximity   []proximityCall
	snapshots   []snapshotCall
	resolutions []int64
}

func (f *fakeNotifier) BroadcastHazard(h *models.Hazard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, h.ID)
}

func (f *fakeNotifier) NotifyProximity(connectionID string, h *models.Hazard, distanceKm float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proximity = append(f.proximity, proximityCall{connectionID, h.ID, distanceKm})
}

func (f *fakeNotifier) SendNearbySnapshot(connectionID string, hazards []models.HazardWithDistance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshotCall{connectionID, hazards})
}

func (f *fakeNotifier) BroadcastResolution(h *models.Hazard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, h.ID)
}

func (f *fakeNotifier) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

// fakeSource serves a fixed hazard set for nearby scans.
type fakeSource struct {
	hazards []models.Hazard
}

func (f *fakeSource) ListActiveNear(ctx context.Context, origin models.Coordinates, radiusKm float64) ([]models.HazardWithDistance, error) {
	var out []models.HazardWithDistance
	for _, h := range f.hazards {
		if h.Status != models.HazardStatusActive {
			continue
		}
		if d := geo.DistanceKm(origin, h.Coordinates()); d <= radiusKm {
			out = append(out, models.HazardWithDistance{Hazard: h, DistanceKm: d})
		}
	}
	return out, nil
}

func testOptions() Options {
	return Options{
		AlertRadiusKm:  1.0,
		NearbyRadiusKm: 1.0,
		WorkerCount:    1,
		WorkerBuffer:   8,
	}
}

func activeHazardAt(id int64, loc models.Coordinates) models.Hazard {
	return models.Hazard{
		ID:        id,
		Type:      models.HazardTypePothole,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Severity:  models.SeverityMedium,
		Status:    models.HazardStatusActive,
	}
}

func TestHazardReported_AlertsNearbyUsersOnly(t *testing.T) {
	reg := registry.New()
	reg.RegisterLocation("near-user", "c-near", nextDoorLoc)
	reg.RegisterLocation("far-user", "c-far", farAwayLoc)

	notifier := &fakeNotifier{}
	d := New(&fakeSource{}, reg, notifier, observability.NewMetricsForTesting(), testOptions())

	h := activeHazardAt(1, hazardLoc)
	d.HazardReported(&h)

	if len(notifier.proximity) != 1 {
		t.Fatalf("expected exactly 1 proximity alert, got %d", len(notifier.proximity))
	}
	alert := notifier.proximity[0]
	if alert.connectionID != "c-near" {
		t.Errorf("alert went to %s, want c-near", alert.connectionID)
	}
	if alert.distanceKm >= 1 {
		t.Errorf("alert distance = %v, want < 1", alert.distanceKm)
	}
	if alert.distanceKm != geo.RoundKm(alert.distanceKm) {
		t.Errorf("alert distance %v not rounded to 2 decimals", alert.distanceKm)
	}

	if len(notifier.broadcasts) != 1 || notifier.broadcasts[0] != 1 {
		t.Errorf("expected 1 global broadcast for hazard 1, got %v", notifier.broadcasts)
	}
}

func TestHazardReported_BroadcastsWithNoUsers(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(&fakeSource{}, registry.New(), notifier, observability.NewMetricsForTesting(), testOptions())

	h := activeHazardAt(7, hazardLoc)
	d.HazardReported(&h)

	if len(notifier.proximity) != 0 {
		t.Errorf("expected no proximity alerts, got %d", len(notifier.proximity))
	}
	if len(notifier.broadcasts) != 1 {
		t.Errorf("expected the global broadcast regardless of users, got %d", len(notifier.broadcasts))
	}
}

func TestDisconnectedUserGetsNoAlert(t *testing.T) {
	reg := registry.New()
	reg.RegisterLocation("u1", "c1", nextDoorLoc)
	reg.RemoveByConnection("c1")

	notifier := &fakeNotifier{}
	d := New(&fakeSource{}, reg, notifier, observability.NewMetricsForTesting(), testOptions())

	h := activeHazardAt(1, hazardLoc)
	d.HazardReported(&h)

	if len(notifier.proximity) != 0 {
		t.Errorf("disconnected user still received %d alerts", len(notifier.proximity))
	}
}

func TestLocationChanged_SendsSnapshotWhenHazardsNearby(t *testing.T) {
	source := &fakeSource{hazards: []models.Hazard{activeHazardAt(3, hazardLoc)}}
	notifier := &fakeNotifier{}
	d := New(source, registry.New(), notifier, observability.NewMetricsForTesting(), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Stop()
	}()

	d.LocationChanged("u1", "c1", nextDoorLoc)

	deadline := time.Now().Add(2 * time.Second)
	for notifier.snapshotCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for nearby snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	snap := notifier.snapshots[0]
	if snap.connectionID != "c1" {
		t.Errorf("snapshot went to %s, want c1", snap.connectionID)
	}
	if len(snap.hazards) != 1 || snap.hazards[0].ID != 3 {
		t.Fatalf("unexpected snapshot contents: %+v", snap.hazards)
	}
	if got := snap.hazards[0].DistanceKm; got != geo.RoundKm(got) {
		t.Errorf("snapshot distance %v not rounded", got)
	}
}

func TestLocationChanged_NoSnapshotWhenNothingNearby(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(&fakeSource{}, registry.New(), notifier, observability.NewMetricsForTesting(), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	d.LocationChanged("u1", "c1", nextDoorLoc)

	time.Sleep(50 * time.Millisecond)
	cancel()
	d.Stop()

	if notifier.snapshotCount() != 0 {
		t.Errorf("expected no snapshot for an empty scan, got %d", notifier.snapshotCount())
	}
}

func TestHazardResolved_BroadcastsResolution(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(&fakeSource{}, registry.New(), notifier, observability.NewMetricsForTesting(), testOptions())

	now := time.Now().UTC()
	h := activeHazardAt(5, hazardLoc)
	h.Status = models.HazardStatusResolved
	h.ResolvedAt = &now
	h.ResolvedBy = "fixer"

	d.HazardResolved(&h)

	if len(notifier.resolutions) != 1 || notifier.resolutions[0] != 5 {
		t.Errorf("expected 1 resolution broadcast for hazard 5, got %v", notifier.resolutions)
	}
}
