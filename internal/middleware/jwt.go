package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/davudsafarov/testtrack/internal/utils"
)

// Context keys populated by JWTAuth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
	CtxOrgID  = "org_id"
)

// JWTAuth returns an Echo middleware that gates protected routes on a
// valid Bearer access token. The check is stateless: signature plus
// expiry against the signing secret, never a store lookup. On success
// the token's claims are attached to the request context; on any failure
// the request is rejected with 401 before business logic runs.
//
// Because no store is consulted, an access token stays valid until its
// own expiry even if the owning refresh family was just revoked. That
// exposure is bounded by the short access TTL.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				// Expired and invalid collapse into the same response.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(CtxUserID, uid)
			c.Set(CtxEmail, claims.Email)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxOrgID, claims.OrganizationID)
			return next(c)
		}
	}
}
