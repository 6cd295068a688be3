package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-signing-secret"

func TestAccessTokenRoundtrip(t *testing.T) {
	tok, err := NewAccessToken(testSecret, 42, "alice@example.com", "ADMIN", 7, 15)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken(testSecret, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, uint64(7), claims.OrganizationID)

	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
}

func TestParseAccessTokenExpired(t *testing.T) {
	// A negative TTL mints a token that is already past its expiry.
	tok, err := NewAccessToken(testSecret, 1, "a@b.c", "MEMBER", 1, -1)
	require.NoError(t, err)

	_, err = ParseAccessToken(testSecret, tok.Token)
	assert.ErrorIs(t, err, ErrAccessExpired)
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	tok, err := NewAccessToken(testSecret, 1, "a@b.c", "MEMBER", 1, 15)
	require.NoError(t, err)

	_, err = ParseAccessToken("a-different-secret", tok.Token)
	assert.ErrorIs(t, err, ErrAccessInvalid)
}

func TestParseAccessTokenTampered(t *testing.T) {
	tok, err := NewAccessToken(testSecret, 1, "a@b.c", "MEMBER", 1, 15)
	require.NoError(t, err)

	parts := strings.Split(tok.Token, ".")
	require.Len(t, parts, 3)
	// Flip the payload; the signature no longer matches.
	tampered := parts[0] + ".eyJlbWFpbCI6ImV2aWxAZXhhbXBsZS5jb20ifQ." + parts[2]

	_, err = ParseAccessToken(testSecret, tampered)
	assert.ErrorIs(t, err, ErrAccessInvalid)
}

func TestParseAccessTokenRejectsNonHMAC(t *testing.T) {
	// alg=none style tokens must fail closed even with a valid shape.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseAccessToken(testSecret, raw)
	assert.ErrorIs(t, err, ErrAccessInvalid)
}

func TestNewOpaqueSecret(t *testing.T) {
	a, err := NewOpaqueSecret()
	require.NoError(t, err)
	b, err := NewOpaqueSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64) // 32 bytes hex-encoded
	assert.NotEqual(t, a, b)
}

func TestHashOpaque(t *testing.T) {
	h1 := HashOpaque("some-raw-value")
	h2 := HashOpaque("some-raw-value")
	h3 := HashOpaque("another-raw-value")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "some-raw-value")
}
