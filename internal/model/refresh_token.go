package model

import "time"

// Refresh token lifecycle states. Transitions are one-directional:
// active -> consumed (rotation), active -> revoked, consumed -> revoked
// (family cascade). There is no path back to active.
const (
	TokenActive   = "active"
	TokenConsumed = "consumed"
	TokenRevoked  = "revoked"
)

// RefreshTokenRecord models an entry of the `refresh_tokens` table. Only
// the SHA-256 hash of the opaque token value is stored; the raw value
// exists transiently on the client and in flight. Records are never
// deleted, only marked consumed or revoked, so reuse of an old value can
// still be detected and audited after rotation.
//
// FamilyID ties together every token produced by successive rotations of
// one login. ReplacedByTokenID is set when a record is consumed and
// points at its successor.
type RefreshTokenRecord struct {
	ID                uint64     // refresh_tokens.id
	TokenHash         string     // refresh_tokens.token_hash (SHA-256 hex, unique)
	FamilyID          string     // refresh_tokens.family_id (UUID)
	UserID            uint64     // refresh_tokens.user_id
	OrganizationID    uint64     // refresh_tokens.organization_id
	IssuedAt          time.Time  // refresh_tokens.issued_at
	ExpiresAt         time.Time  // refresh_tokens.expires_at
	Status            string     // refresh_tokens.status
	ReplacedByTokenID *uint64    // refresh_tokens.replaced_by_token_id (nullable)
	CreatedAt         time.Time  // refresh_tokens.created_at
}

// Terminal reports whether the record can never be redeemed again.
func (r RefreshTokenRecord) Terminal() bool {
	return r.Status != TokenActive
}
