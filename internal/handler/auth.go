package handler

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/davudsafarov/testtrack/internal/middleware"
	"github.com/davudsafarov/testtrack/internal/model"
	"github.com/davudsafarov/testtrack/internal/service"
)

// AuthHandler translates the HTTP surface of the auth service into
// session operations. All session semantics (rotation, reuse detection,
// timing equalization) live in the service; this layer only binds,
// validates field presence and maps errors onto status codes.
type AuthHandler struct {
	Sessions *service.Session
}

func NewAuthHandler(s *service.Session) *AuthHandler {
	return &AuthHandler{Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	OrganizationName string `json:"organizationName"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type userPart struct {
	ID             uint64 `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID uint64 `json:"organizationId"`
}
type loginResp struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         userPart `json:"user"`
}
type refreshResp struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func toUserPart(u model.User) userPart {
	return userPart{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	}
}

const minPasswordLen = 10

// Register creates an organization with its first user. The password
// hash never appears in the response.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	switch {
	case req.Email == "" || req.Password == "" || req.Name == "" || req.OrganizationName == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, password, name and organizationName are required"})
	case !validEmail(req.Email):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
	case len(req.Password) < minPasswordLen:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Sessions.Register(ctx, req.Email, req.Password, req.Name, req.OrganizationName)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return c.JSON(http.StatusCreated, toUserPart(u))
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	pair, u, err := h.Sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	return c.JSON(http.StatusOK, loginResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         toUserPart(u),
	})
}

// Refresh redeems a refresh token for a new pair. An unknown, expired or
// reused token always yields the same 401 body.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	pair, err := h.Sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, refreshResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout revokes the session family of the presented refresh token. The
// route sits behind JWTAuth, so the caller already proved an identity;
// the body's token value itself is treated idempotently and an unknown
// or already-revoked value still answers 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := requestCtx(c)
	defer cancel()

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if err := h.Sessions.Logout(ctx, raw); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Sessions.Profile(ctx, uid)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load profile failed"})
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// requestCtx bounds every handler's store work with a timeout.
func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}
