package registry

import (
	"sync"
	"testing"

	"github.com/roadwatch/go-road-hazards/internal/models"
)

var (
	locA = models.Coordinates{Latitude: 13.3409, Longitude: 74.7421}
	locB = models.Coordinates{Latitude: 13.3500, Longitude: 74.7500}
)

func TestRegisterLocation_CreatesEntry(t *testing.T) {
	r := New()

	r.RegisterLocation("u1", "c1", locA)

	if r.Count() != 1 {
		t.Fatalf("expected 1 user, got %d", r.Count())
	}
	users := r.Snapshot()
	if users[0].UserID != "u1" || users[0].ConnectionID != "c1" {
		t.Errorf("unexpected entry: %+v", users[0])
	}
	if users[0].Location == nil || *users[0].Location != locA {
		t.Errorf("expected location %v, got %v", locA, users[0].Location)
	}
}

func TestRegisterLocation_ReplacesPriorConnection(t *testing.T) {
	r := New()

	r.RegisterLocation("u1", "c1", locA)
	r.RegisterLocation("u1", "c2", locB)

	if r.Count() != 1 {
		t.Fatalf("expected 1 user after re-registration, got %d", r.Count())
	}
	users := r.Snapshot()
	if users[0].ConnectionID != "c2" {
		t.Errorf("expected connection c2, got %s", users[0].ConnectionID)
	}

	// The stale connection binding must be gone.
	r.RemoveByConnection("c1")
	if r.Count() != 1 {
		t.Errorf("removing the stale connection dropped the user")
	}
}

func TestRegisterLocation_SharedConnectionEvictsPriorUser(t *testing.T) {
	r := New()

	r.RegisterLocation("userA", "c1", locA)
	r.RegisterLocation("userB", "c1", locB)

	if r.Count() != 1 {
		t.Fatalf("expected 1 user after the connection re-registered, got %d", r.Count())
	}
	if users := r.Snapshot(); users[0].UserID != "userB" {
		t.Errorf("expected userB to own the connection, got %s", users[0].UserID)
	}

	// Disconnect must leave nothing behind from either registration.
	r.RemoveByConnection("c1")
	if r.Count() != 0 {
		t.Errorf("expected empty registry after disconnect, got %d entries", r.Count())
	}
}

func TestUpdateLocation_KnownUser(t *testing.T) {
	r := New()
	r.RegisterLocation("u1", "c1", locA)

	u, ok := r.UpdateLocation("u1", locB)
	if !ok {
		t.Fatal("expected update to succeed")
	}
	if u.ConnectionID != "c1" {
		t.Errorf("expected connection c1, got %s", u.ConnectionID)
	}
	if *r.Snapshot()[0].Location != locB {
		t.Errorf("location not updated")
	}
}

func TestUpdateLocation_UnknownUserIsNoOp(t *testing.T) {
	r := New()

	if _, ok := r.UpdateLocation("ghost", locA); ok {
		t.Error("expected update for unknown user to report false")
	}
	if r.Count() != 0 {
		t.Errorf("no-op update created an entry")
	}
}

func TestRemoveByConnection(t *testing.T) {
	r := New()
	r.RegisterLocation("u1", "c1", locA)
	r.RegisterLocation("u2", "c2", locB)

	r.RemoveByConnection("c1")

	if r.Count() != 1 {
		t.Fatalf("expected 1 user after removal, got %d", r.Count())
	}
	if r.Snapshot()[0].UserID != "u2" {
		t.Errorf("wrong user removed")
	}

	// Unknown connection is safe.
	r.RemoveByConnection("nope")
	if r.Count() != 1 {
		t.Errorf("removing unknown connection changed the registry")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	r := New()
	r.RegisterLocation("u1", "c1", locA)

	users := r.Snapshot()
	users[0].Location.Latitude = 0
	users[0].UserID = "mutated"

	fresh := r.Snapshot()
	if fresh[0].UserID != "u1" || fresh[0].Location.Latitude != locA.Latitude {
		t.Error("snapshot shares state with the registry")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			r.RegisterLocation(id, id+"-conn", locA)
			r.UpdateLocation(id, locB)
			_ = r.Snapshot()
			r.RemoveByConnection(id + "-conn")
		}(i)
	}

	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("expected empty registry after cleanup, got %d", r.Count())
	}
}
