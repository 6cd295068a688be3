package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/davudsafarov/testtrack/internal/config"
	"github.com/davudsafarov/testtrack/internal/model"
	"github.com/davudsafarov/testtrack/internal/queue"
	"github.com/davudsafarov/testtrack/internal/testutil"
	"github.com/davudsafarov/testtrack/internal/utils"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "session-test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 30,
		BcryptCost:     bcrypt.MinCost,
		LoginWorkers:   4,
	}
}

func newTestSession(t *testing.T) (*Session, *testutil.FakeTokenStore, *testutil.RecordingPublisher) {
	t.Helper()
	dir := testutil.NewFakeDirectory()
	tokens := testutil.NewFakeTokenStore()
	audit := &testutil.RecordingPublisher{}
	return NewSession(testConfig(), dir, tokens, audit), tokens, audit
}

func registerAlice(t *testing.T, s *Session) model.User {
	t.Helper()
	u, err := s.Register(context.Background(), "alice@example.com", "Secret12345!", "Alice", "Acme QA")
	require.NoError(t, err)
	return u
}

func TestRegisterAndDuplicate(t *testing.T) {
	s, _, _ := newTestSession(t)
	u := registerAlice(t, s)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "Secret12345!", u.PasswordHash)

	_, err := s.Register(context.Background(), "alice@example.com", "OtherSecret1!", "Alice Again", "Other Org")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginSuccess(t *testing.T) {
	s, tokens, audit := newTestSession(t)
	registerAlice(t, s)

	pair, u, err := s.Login(context.Background(), "alice@example.com", "Secret12345!")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExpires.After(pair.AccessExpires))

	claims, err := s.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
	assert.Equal(t, u.OrganizationID, claims.OrganizationID)

	// Only the hash of the refresh value is persisted.
	_, ok := tokens.Record(pair.RefreshToken)
	assert.False(t, ok)
	rec, ok := tokens.Record(utils.HashOpaque(pair.RefreshToken))
	require.True(t, ok)
	assert.Equal(t, model.TokenActive, rec.Status)
	assert.NotEmpty(t, rec.FamilyID)

	assert.Len(t, audit.ByType(queue.EventLogin), 1)
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	s, _, _ := newTestSession(t)
	registerAlice(t, s)

	_, _, errWrongPass := s.Login(context.Background(), "alice@example.com", "not-the-password")
	_, _, errNoUser := s.Login(context.Background(), "nobody@example.com", "whatever-password")

	// Wrong password and unknown email surface the identical error value.
	assert.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, errNoUser, ErrInvalidCredentials)
}

func TestRefreshRotatesPair(t *testing.T) {
	s, tokens, _ := newTestSession(t)
	registerAlice(t, s)

	p0, _, err := s.Login(context.Background(), "alice@example.com", "Secret12345!")
	require.NoError(t, err)

	p1, err := s.Refresh(context.Background(), p0.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, p0.RefreshToken, p1.RefreshToken)
	assert.NotEmpty(t, p1.AccessToken)

	// The new access token still authenticates the same user.
	claims, err := s.Authenticate(p1.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)

	// The old record is consumed and points at its successor.
	oldRec, ok := tokens.Record(utils.HashOpaque(p0.RefreshToken))
	require.True(t, ok)
	newRec, ok := tokens.Record(utils.HashOpaque(p1.RefreshToken))
	require.True(t, ok)
	assert.Equal(t, model.TokenConsumed, oldRec.Status)
	assert.Equal(t, oldRec.FamilyID, newRec.FamilyID)
	require.NotNil(t, oldRec.ReplacedByTokenID)
	assert.Equal(t, newRec.ID, *oldRec.ReplacedByTokenID)
}

func TestRefreshReuseCascades(t *testing.T) {
	s, _, audit := newTestSession(t)
	registerAlice(t, s)

	p0, _, err := s.Login(context.Background(), "alice@example.com", "Secret12345!")
	require.NoError(t, err)
	p1, err := s.Refresh(context.Background(), p0.RefreshToken)
	require.NoError(t, err)

	// Replaying the consumed value kills the family...
	_, err = s.Refresh(context.Background(), p0.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// ...including the successor that was still unredeemed.
	_, err = s.Refresh(context.Background(), p1.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)

	assert.Len(t, audit.ByType(queue.EventFamilyRevoked), 1)
}

func TestRefreshUnknownToken(t *testing.T) {
	s, _, _ := newTestSession(t)
	_, err := s.Refresh(context.Background(), "never-issued-value")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestLogoutCascades(t *testing.T) {
	s, _, audit := newTestSession(t)
	registerAlice(t, s)

	p0, _, err := s.Login(context.Background(), "alice@example.com", "Secret12345!")
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background(), p0.RefreshToken))
	_, err = s.Refresh(context.Background(), p0.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Idempotent: repeating the logout, or presenting garbage, is fine.
	assert.NoError(t, s.Logout(context.Background(), p0.RefreshToken))
	assert.NoError(t, s.Logout(context.Background(), "never-issued-value"))

	assert.NotEmpty(t, audit.ByType(queue.EventLogout))
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	s, _, _ := newTestSession(t)
	registerAlice(t, s)

	p0, _, err := s.Login(context.Background(), "alice@example.com", "Secret12345!")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Refresh(context.Background(), p0.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, failed := 0, 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidSession)
		failed++
	}
	assert.Equal(t, 1, success, "exactly one concurrent redemption may win")
	assert.Equal(t, n-1, failed)
}

func TestAuthenticateRejectsExpiredAndGarbage(t *testing.T) {
	s, _, _ := newTestSession(t)

	expired, err := utils.NewAccessToken(testConfig().JWTSecret, 1, "a@b.c", "MEMBER", 1, -1)
	require.NoError(t, err)
	_, err = s.Authenticate(expired.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.Authenticate("not.a.jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestProfile(t *testing.T) {
	s, _, _ := newTestSession(t)
	u := registerAlice(t, s)

	got, err := s.Profile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = s.Profile(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
