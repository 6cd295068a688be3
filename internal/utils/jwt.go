package utils // package utils provides token minting, verification and hashing helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access token verification failures. Tampering, a wrong algorithm and a
// bad signature all collapse into ErrAccessInvalid; only a clean
// signature with a past expiry yields ErrAccessExpired. Callers that do
// not care about the distinction treat both as unauthenticated.
var (
	ErrAccessExpired = errors.New("access token expired")
	ErrAccessInvalid = errors.New("access token invalid")
)

// AccessClaims is the payload carried inside a signed access token. The
// subject registered claim holds the user id in decimal form. Access
// tokens are stateless: verifying one requires only the signing secret,
// never a store lookup, which also means they stay valid until expiry
// even after the owning refresh family has been revoked.
type AccessClaims struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID uint64 `json:"org_id"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a numeric user id.
func (c AccessClaims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrAccessInvalid)
	}
	return id, nil
}

// AccessToken bundles a signed JWT with its expiry so handlers can
// report the expiry without re-parsing the token.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken builds and signs an HS256 JWT for a user. ttlMin is the
// access token time-to-live in minutes.
func NewAccessToken(secret string, userID uint64, email, role string, orgID uint64, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := AccessClaims{
		Email:          email,
		Role:           role,
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature and expiry of a signed access
// token and returns its claims. Any failure other than expiry is
// reported as ErrAccessInvalid; the parser rejects tokens signed with an
// algorithm other than HMAC so a crafted "none" or RSA header cannot
// bypass the secret.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	var claims AccessClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrAccessExpired
		}
		return AccessClaims{}, ErrAccessInvalid
	}
	if !tok.Valid {
		return AccessClaims{}, ErrAccessInvalid
	}
	return claims, nil
}

// NewOpaqueSecret returns a fresh refresh-token value: 32 bytes of
// cryptographically secure randomness, hex-encoded (64 characters, 256
// bits of entropy). The value is handed to the client verbatim and is
// never persisted server-side.
func NewOpaqueSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashOpaque returns the SHA-256 hex digest of a raw opaque secret. The
// store keys refresh tokens by this digest so a leaked database cannot
// be replayed. No salt is involved: the input already carries full
// entropy.
func HashOpaque(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
