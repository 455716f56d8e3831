package models

import "time"

// ConnectedUser is one live client session. Location stays nil until the
// client reports a position for the first time.
type ConnectedUser struct {
	UserID       string       `json:"user_id"`
	ConnectionID string       `json:"connection_id"`
	Location     *Coordinates `json:"location,omitempty"`
	LastUpdated  time.Time    `json:"last_updated"`
}
