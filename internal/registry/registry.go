// Package registry tracks currently connected users and their last-known
// positions.
package registry

import (
	"sync"
	"time"

	"github.com/roadwatch/go-road-hazards/internal/models"
)

// Registry is keyed by user id, with at most one live entry per user. A
// connection-id reverse index makes disconnect cleanup a map lookup.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*models.ConnectedUser
	byConn map[string]string // connection id -> user id
}

func New() *Registry {
	return &Registry{
		users:  make(map[string]*models.ConnectedUser),
		byConn: make(map[string]string),
	}
}

// RegisterLocation upserts the user's session. Re-registration replaces any
// prior entry and its transport binding; a connection re-registering under a
// new user id evicts the old user so disconnect cleanup never strands one.
func (r *Registry) RegisterLocation(userID, connectionID string, loc models.Coordinates) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.users[userID]; ok {
		delete(r.byConn, prev.ConnectionID)
	}
	if prevUser, ok := r.byConn[connectionID]; ok && prevUser != userID {
		delete(r.users, prevUser)
	}

	location := loc
	r.users[userID] = &models.ConnectedUser{
		UserID:       userID,
		ConnectionID: connectionID,
		Location:     &location,
		LastUpdated:  time.Now().UTC(),
	}
	r.byConn[connectionID] = userID
}

// UpdateLocation replaces the user's position if they are registered. A stale
// update after disconnect is silently dropped (ok is false).
func (r *Registry) UpdateLocation(userID string, loc models.Coordinates) (models.ConnectedUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return models.ConnectedUser{}, false
	}
	location := loc
	u.Location = &location
	u.LastUpdated = time.Now().UTC()
	return *u, true
}

// RemoveByConnection drops the single entry bound to that connection, if any.
// Safe to call for connections that never registered.
func (r *Registry) RemoveByConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connectionID]
	if !ok {
		return
	}
	delete(r.byConn, connectionID)
	delete(r.users, userID)
}

// Snapshot returns a point-in-time copy of all connected users for proximity
// scans.
func (r *Registry) Snapshot() []models.ConnectedUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.ConnectedUser, 0, len(r.users))
	for _, u := range r.users {
		copied := *u
		if u.Location != nil {
			loc := *u.Location
			copied.Location = &loc
		}
		users = append(users, copied)
	}
	return users
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
