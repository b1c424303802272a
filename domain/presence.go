// Package domain contains the core concepts of the relay:
// identities, message envelopes, conversations and presence.
package domain

// UserID is an opaque external identifier. The relay never interprets it;
// it is only a map key and a foreign key into storage.
type UserID string

// ConnID identifies a single live socket connection. Assigned by the
// transport layer, one per open connection.
type ConnID string

// Status is derived from connection count, never set directly.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// StatusChange is broadcast to other connected users on an online/offline
// transition.
type StatusChange struct {
	UserID UserID `json:"userId"`
	Status Status `json:"status"`
}
