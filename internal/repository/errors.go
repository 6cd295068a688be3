// Package repository implements the durable stores of the auth core on
// top of database/sql. Sentinel errors defined here let the service
// layer branch on failure modes with errors.Is without inspecting
// driver-specific errors. The refresh-token sentinels are internal
// distinctions only: the service collapses all of them into a single
// invalid-session outcome before anything reaches a client.
package repository

import "errors"

// ErrEmailExists is returned when registration collides with an email
// that is already taken. Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrTokenNotFound is returned when no refresh token record matches the
// presented hash.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrTokenExpired is returned when a matching record exists but its
// validity window has passed.
var ErrTokenExpired = errors.New("refresh token expired")

// ErrTokenReused is returned when a non-active record is presented for
// redemption. By the time the caller sees this error the whole token
// family has already been revoked.
var ErrTokenReused = errors.New("refresh token reused")
