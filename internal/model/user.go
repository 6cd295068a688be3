package model

import "time"

// User mirrors a row of the `users` table. Accounts are owned by the
// directory layer; the auth core only reads them to verify credentials
// and to build token claims. The password hash never leaves this struct
// for the wire: handlers define separate response types.
//
// Fields:
//  ID             – primary key identifier of the user.
//  Email          – unique email address, stored lower-cased.
//  PasswordHash   – bcrypt hash of the password.
//  Name           – display name.
//  Role           – role name carried as an opaque token claim (e.g. ADMIN).
//  OrganizationID – owning organization (tenant).
type User struct {
	ID             uint64    // users.id
	Email          string    // users.email
	PasswordHash   string    // users.password_hash
	Name           string    // users.name
	Role           string    // users.role
	OrganizationID uint64    // users.organization_id
	CreatedAt      time.Time // users.created_at
	UpdatedAt      time.Time // users.updated_at
}

// Organization mirrors a row of the `organizations` table. An
// organization is the tenant boundary of the platform; every user and
// every refresh token belongs to exactly one.
type Organization struct {
	ID        uint64    // organizations.id
	Name      string    // organizations.name
	CreatedAt time.Time // organizations.created_at
}
