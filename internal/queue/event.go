// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an audit log.
package queue

// Security event types published to the auth.security queue.
const (
	EventLogin         = "login"
	EventLogout        = "logout"
	EventFamilyRevoked = "family_revoked"
)

// SecurityEvent is published on notable session transitions: a new login,
// a logout, and a refresh-token reuse that caused a family cascade.
// Consumers write these to the audit log; the event is the only place
// where reuse is distinguishable from an ordinary invalid session, since
// clients must not be able to tell the cases apart.
type SecurityEvent struct {
	Type           string `json:"type"`
	UserID         uint64 `json:"user_id"`
	OrganizationID uint64 `json:"organization_id"`
	FamilyID       string `json:"family_id,omitempty"`
	Email          string `json:"email,omitempty"`
	Reason         string `json:"reason,omitempty"`
	At             string `json:"at"` // RFC 3339 UTC
}
