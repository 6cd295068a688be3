// Package service orchestrates the session lifecycle: credential
// verification, token pair issuance, refresh rotation with reuse
// detection, and revocation on logout. It composes the user directory,
// the refresh token store and the token codec; all durable state lives
// in the store, so any number of service instances can run side by side.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/davudsafarov/testtrack/internal/config"
	"github.com/davudsafarov/testtrack/internal/model"
	"github.com/davudsafarov/testtrack/internal/queue"
	"github.com/davudsafarov/testtrack/internal/repository"
	"github.com/davudsafarov/testtrack/internal/utils"
)

// User-facing outcomes of the session operations. Every internal failure
// mode of the refresh path (unknown, expired, reused) maps onto the one
// ErrInvalidSession so a caller replaying a captured token cannot tell a
// revoked-for-reuse token from one that never existed.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidSession     = errors.New("invalid session")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// UserDirectory is the narrow contract the session core needs from the
// platform's account directory.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	CreateWithOrganization(ctx context.Context, email, passwordHash, name, orgName string) (model.User, error)
}

// TokenStore is the durable record of issued refresh tokens. Its
// RedeemAndRotate must be atomic at the storage layer: out of any number
// of concurrent redemptions of one value exactly one may win.
type TokenStore interface {
	Create(ctx context.Context, rec model.RefreshTokenRecord) (model.RefreshTokenRecord, error)
	RedeemAndRotate(ctx context.Context, tokenHash, successorHash string, now time.Time, ttl time.Duration) (model.RefreshTokenRecord, error)
	RevokeByHash(ctx context.Context, tokenHash string) (model.RefreshTokenRecord, error)
}

// AuditPublisher delivers security events to the audit pipeline.
// Implementations must be best-effort; the session flow ignores publish
// failures.
type AuditPublisher interface {
	PublishSecurityEvent(ctx context.Context, event queue.SecurityEvent) error
}

// TokenPair is what a successful login or refresh hands to the client:
// a short-lived signed access token and a long-lived opaque refresh
// value, each with its expiry.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// Session implements login, refresh, logout and per-request
// authentication on top of the stores. Safe for concurrent use.
type Session struct {
	users  UserDirectory
	tokens TokenStore
	audit  AuditPublisher

	secret       string
	accessTTLMin int
	refreshTTL   time.Duration
	bcryptCost   int

	// dummyHash matches no real password and is compared against when a
	// login targets an unknown email, so both failure modes cost one
	// bcrypt verification.
	dummyHash string

	// loginSlots bounds how many bcrypt verifications run at once so a
	// burst of login attempts cannot starve the rest of the service.
	loginSlots chan struct{}
}

// NewSession wires a Session from configuration and collaborators. audit
// may be nil to disable event publishing (tests, local runs without a
// broker).
func NewSession(cfg config.Config, users UserDirectory, tokens TokenStore, audit AuditPublisher) *Session {
	dummy, err := utils.HashPassword("testtrack.dummy.credential", cfg.BcryptCost)
	if err != nil {
		// bcrypt only fails on an out-of-range cost, which config validation
		// already rejects.
		log.Fatalf("session: precompute dummy hash: %v", err)
	}
	workers := cfg.LoginWorkers
	if workers < 1 {
		workers = 1
	}
	return &Session{
		users:        users,
		tokens:       tokens,
		audit:        audit,
		secret:       cfg.JWTSecret,
		accessTTLMin: cfg.AccessTTLMin,
		refreshTTL:   time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
		bcryptCost:   cfg.BcryptCost,
		dummyHash:    dummy,
		loginSlots:   make(chan struct{}, workers),
	}
}

// Register creates a fresh organization with its first (admin) user and
// returns the created user. Fails with ErrEmailTaken when the email is
// already registered.
func (s *Session) Register(ctx context.Context, email, password, name, orgName string) (model.User, error) {
	release, err := s.acquireSlot(ctx)
	if err != nil {
		return model.User{}, err
	}
	hash, err := utils.HashPassword(password, s.bcryptCost)
	release()
	if err != nil {
		return model.User{}, err
	}

	u, err := s.users.CreateWithOrganization(ctx, email, hash, name, orgName)
	if errors.Is(err, repository.ErrEmailExists) {
		return model.User{}, ErrEmailTaken
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Login verifies the credentials and, on success, opens a new token
// family and returns the pair plus the user. The failure is always
// ErrInvalidCredentials: the caller never learns whether the email or
// the password was wrong, and both cases cost one bcrypt comparison.
func (s *Session) Login(ctx context.Context, email, password string) (TokenPair, model.User, error) {
	u, lookupErr := s.users.GetByEmail(ctx, email)

	release, err := s.acquireSlot(ctx)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	var ok bool
	if errors.Is(lookupErr, repository.ErrUserNotFound) {
		// Burn an equivalent-cost comparison so unknown emails are not
		// distinguishable by response latency.
		utils.VerifyPassword(s.dummyHash, password)
	} else if lookupErr == nil {
		ok = utils.VerifyPassword(u.PasswordHash, password)
	}
	release()

	if lookupErr != nil && !errors.Is(lookupErr, repository.ErrUserNotFound) {
		return TokenPair{}, model.User{}, lookupErr
	}
	if !ok {
		return TokenPair{}, model.User{}, ErrInvalidCredentials
	}

	pair, rec, err := s.openFamily(ctx, u)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	s.publish(ctx, queue.SecurityEvent{
		Type:           queue.EventLogin,
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		FamilyID:       rec.FamilyID,
		Email:          u.Email,
		At:             time.Now().UTC().Format(time.RFC3339),
	})
	return pair, u, nil
}

// Refresh redeems a refresh token value for a new pair, rotating the
// family forward. Unknown, expired and reused values all surface as
// ErrInvalidSession; the reuse case additionally revokes the whole
// family inside the store and emits an audit event.
func (s *Session) Refresh(ctx context.Context, refreshRaw string) (TokenPair, error) {
	newRaw, err := utils.NewOpaqueSecret()
	if err != nil {
		return TokenPair{}, err
	}

	now := time.Now().UTC()
	rec, err := s.tokens.RedeemAndRotate(ctx, utils.HashOpaque(refreshRaw), utils.HashOpaque(newRaw), now, s.refreshTTL)
	if err != nil {
		if errors.Is(err, repository.ErrTokenReused) {
			log.Printf("session: refresh reuse detected, family %s revoked (user=%d)", rec.FamilyID, rec.UserID)
			s.publish(ctx, queue.SecurityEvent{
				Type:           queue.EventFamilyRevoked,
				UserID:         rec.UserID,
				OrganizationID: rec.OrganizationID,
				FamilyID:       rec.FamilyID,
				Reason:         "refresh token reuse",
				At:             now.Format(time.RFC3339),
			})
			return TokenPair{}, ErrInvalidSession
		}
		if errors.Is(err, repository.ErrTokenNotFound) || errors.Is(err, repository.ErrTokenExpired) {
			return TokenPair{}, ErrInvalidSession
		}
		return TokenPair{}, err
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := utils.NewAccessToken(s.secret, u.ID, u.Email, u.Role, u.OrganizationID, s.accessTTLMin)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   newRaw,
		RefreshExpires: rec.ExpiresAt,
	}, nil
}

// Logout revokes the family owning the presented refresh value. It is
// idempotent and never fails on an unknown or already-revoked token, so
// a caller cannot probe session state through it.
func (s *Session) Logout(ctx context.Context, refreshRaw string) error {
	rec, err := s.tokens.RevokeByHash(ctx, utils.HashOpaque(refreshRaw))
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.publish(ctx, queue.SecurityEvent{
		Type:           queue.EventLogout,
		UserID:         rec.UserID,
		OrganizationID: rec.OrganizationID,
		FamilyID:       rec.FamilyID,
		At:             time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// Authenticate verifies an access token and returns its claims. This is
// a pure signature-and-expiry check; it never consults the store, so a
// token stays acceptable until its own expiry even after the owning
// refresh family was revoked.
func (s *Session) Authenticate(token string) (utils.AccessClaims, error) {
	claims, err := utils.ParseAccessToken(s.secret, token)
	if err != nil {
		return utils.AccessClaims{}, ErrUnauthenticated
	}
	return claims, nil
}

// Profile loads the current user's record for /auth/me.
func (s *Session) Profile(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.User{}, ErrUnauthenticated
	}
	return u, err
}

// openFamily mints a fresh opaque secret, persists a new active record
// under a brand-new family id and signs an access token for the user.
func (s *Session) openFamily(ctx context.Context, u model.User) (TokenPair, model.RefreshTokenRecord, error) {
	raw, err := utils.NewOpaqueSecret()
	if err != nil {
		return TokenPair{}, model.RefreshTokenRecord{}, err
	}
	now := time.Now().UTC()
	rec, err := s.tokens.Create(ctx, model.RefreshTokenRecord{
		TokenHash:      utils.HashOpaque(raw),
		FamilyID:       uuid.NewString(),
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.refreshTTL),
	})
	if err != nil {
		return TokenPair{}, model.RefreshTokenRecord{}, err
	}
	access, err := utils.NewAccessToken(s.secret, u.ID, u.Email, u.Role, u.OrganizationID, s.accessTTLMin)
	if err != nil {
		return TokenPair{}, model.RefreshTokenRecord{}, err
	}
	return TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   raw,
		RefreshExpires: rec.ExpiresAt,
	}, rec, nil
}

// acquireSlot blocks until a bcrypt worker slot is free or the request
// context ends.
func (s *Session) acquireSlot(ctx context.Context) (release func(), err error) {
	select {
	case s.loginSlots <- struct{}{}:
		return func() { <-s.loginSlots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) publish(ctx context.Context, ev queue.SecurityEvent) {
	if s.audit == nil {
		return
	}
	// Best effort: the publisher logs its own failures.
	_ = s.audit.PublishSecurityEvent(ctx, ev)
}
