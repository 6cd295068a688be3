// Package testutil provides in-memory fakes of the auth stores for
// service and handler tests. FakeTokenStore reproduces the durable
// store's redeem-and-rotate semantics: its mutex stands in for the
// database's atomic conditional update, so inside one critical section
// only one caller can observe a record as active and flip it to
// consumed.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/davudsafarov/testtrack/internal/model"
	"github.com/davudsafarov/testtrack/internal/queue"
	"github.com/davudsafarov/testtrack/internal/repository"
)

type FakeDirectory struct {
	mu     sync.Mutex
	byID   map[uint64]model.User
	nextID uint64
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{byID: make(map[uint64]model.User), nextID: 1}
}

func (d *FakeDirectory) GetByEmail(_ context.Context, email string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range d.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (d *FakeDirectory) GetByID(_ context.Context, id uint64) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (d *FakeDirectory) CreateWithOrganization(_ context.Context, email, passwordHash, name, orgName string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range d.byID {
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	u := model.User{
		ID:             d.nextID,
		Email:          email,
		PasswordHash:   passwordHash,
		Name:           name,
		Role:           "ADMIN",
		OrganizationID: d.nextID,
	}
	d.byID[u.ID] = u
	d.nextID++
	return u, nil
}

type FakeTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*model.RefreshTokenRecord
	nextID uint64
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{byHash: make(map[string]*model.RefreshTokenRecord), nextID: 1}
}

func (s *FakeTokenStore) Create(_ context.Context, rec model.RefreshTokenRecord) (model.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	rec.Status = model.TokenActive
	cp := rec
	s.byHash[rec.TokenHash] = &cp
	return rec, nil
}

func (s *FakeTokenStore) RedeemAndRotate(_ context.Context, tokenHash, successorHash string, now time.Time, ttl time.Duration) (model.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byHash[tokenHash]
	if !ok {
		return model.RefreshTokenRecord{}, repository.ErrTokenNotFound
	}
	if now.After(old.ExpiresAt) {
		return model.RefreshTokenRecord{}, repository.ErrTokenExpired
	}
	if old.Status != model.TokenActive {
		s.revokeFamilyLocked(old.FamilyID)
		return *old, repository.ErrTokenReused
	}
	old.Status = model.TokenConsumed
	succ := model.RefreshTokenRecord{
		ID:             s.nextID,
		TokenHash:      successorHash,
		FamilyID:       old.FamilyID,
		UserID:         old.UserID,
		OrganizationID: old.OrganizationID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
		Status:         model.TokenActive,
	}
	s.nextID++
	id := succ.ID
	old.ReplacedByTokenID = &id
	cp := succ
	s.byHash[succ.TokenHash] = &cp
	return succ, nil
}

func (s *FakeTokenStore) RevokeByHash(_ context.Context, tokenHash string) (model.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return model.RefreshTokenRecord{}, repository.ErrTokenNotFound
	}
	s.revokeFamilyLocked(rec.FamilyID)
	return *rec, nil
}

// Record returns a copy of the stored record for the given hash.
func (s *FakeTokenStore) Record(tokenHash string) (model.RefreshTokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return model.RefreshTokenRecord{}, false
	}
	return *rec, true
}

func (s *FakeTokenStore) revokeFamilyLocked(familyID string) {
	for _, r := range s.byHash {
		if r.FamilyID == familyID {
			r.Status = model.TokenRevoked
		}
	}
}

// RecordingPublisher captures published security events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []queue.SecurityEvent
}

func (p *RecordingPublisher) PublishSecurityEvent(_ context.Context, ev queue.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// ByType returns the captured events of one type, in publish order.
func (p *RecordingPublisher) ByType(typ string) []queue.SecurityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.SecurityEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
