package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/session"
	"github.com/iliyamo/garment-booking/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	OAuth  *oauth2.Config // nil when no identity provider is configured
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
	h := &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
	if cfg.OAuth.Enabled() {
		h.OAuth = &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			Scopes:       cfg.OAuth.Scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.OAuth.AuthURL, TokenURL: cfg.OAuth.TokenURL},
		}
	}
	return h
}

func identityOf(u model.User) session.Identity {
	return session.Identity{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role, Status: u.Status}
}

// issue signs a new token pair for u and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (api.AuthResponse, error) {
	id := identityOf(u)
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, id, h.Cfg.AccessTTLMin)
	if err != nil {
		return api.AuthResponse{}, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return api.AuthResponse{}, fmt.Errorf("issue refresh: %w", err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return api.AuthResponse{}, fmt.Errorf("save refresh: %w", err)
	}
	return api.AuthResponse{
		User:    id,
		Access:  api.Token{Token: access.Token, Expires: access.Exp},
		Refresh: api.Token{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Register creates a buyer or manager account and returns tokens
// immediately. Manager accounts stay pending until an admin approves them;
// admins are never self-registered.
func (h *AuthHandler) Register(c echo.Context) error {
	var req api.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "email/password required")
	}
	if len(req.Password) < 6 {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "password must be at least 6 characters")
	}
	role, status := model.RoleBuyer, model.StatusActive
	if model.Role(strings.ToLower(string(req.Role))) == model.RoleManager {
		role, status = model.RoleManager, model.StatusPending
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, repository.NewUser{
		Email: req.Email, Password: req.Password, DisplayName: req.DisplayName, Role: role, Status: status,
	}, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, model.User{ID: uid, Email: req.Email, DisplayName: strings.TrimSpace(req.DisplayName), Role: role, Status: status})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req api.LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid credentials")
		}
		return fail(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid credentials")
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req api.RefreshRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid refresh")
	}
	_ = h.Tokens.RevokeByHash(ctx, hash)

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh
// token. The new token carries the account's current role and status.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req api.RefreshRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid refresh")
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid refresh")
		}
		return fail(c, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, identityOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": api.Token{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes one session when a refresh token is posted, or every
// session of the caller when only a bearer token is presented.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req api.RefreshRequest
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		id, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil || id.UserID == 0 {
			return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "unauthorized")
		}
		if err := h.Tokens.RevokeAllForUser(ctx, id.UserID); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "provide Authorization header or refresh_token")
}

// Me returns the caller's identity as carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "unauthorized")
	}
	return c.JSON(http.StatusOK, id)
}

// OAuthURL handles GET /v1/auth/oauth/url and returns the provider's
// consent page address.
func (h *AuthHandler) OAuthURL(c echo.Context) error {
	if h.OAuth == nil {
		return errorJSON(c, http.StatusServiceUnavailable, api.CodeInvalid, "oauth sign-in is not configured")
	}
	state, err := utils.RandomSecret()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": h.OAuth.AuthCodeURL(state), "state": state})
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

// OAuthExchange handles POST /v1/auth/oauth. The authorization code is
// exchanged with the provider and the verified email is signed in,
// creating a buyer account on first use.
func (h *AuthHandler) OAuthExchange(c echo.Context) error {
	if h.OAuth == nil {
		return errorJSON(c, http.StatusServiceUnavailable, api.CodeInvalid, "oauth sign-in is not configured")
	}
	var req api.OAuthRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "code required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tok, err := h.OAuth.Exchange(ctx, strings.TrimSpace(req.Code))
	if err != nil {
		log.Printf("[auth] oauth exchange failed: %v", err)
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "sign-in with provider failed")
	}
	info, err := h.fetchUserInfo(ctx, tok)
	if err != nil {
		log.Printf("[auth] oauth userinfo failed: %v", err)
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "sign-in with provider failed")
	}
	if info.Email == "" || (info.EmailVerified != nil && !*info.EmailVerified) {
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "provider did not return a verified email")
	}

	u, err := h.Users.EnsureOAuthUser(ctx, info.Email, info.Name, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (userInfo, error) {
	var info userInfo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Cfg.OAuth.UserInfoURL, nil)
	if err != nil {
		return info, err
	}
	resp, err := h.OAuth.Client(ctx, tok).Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decode userinfo: %w", err)
	}
	info.Email = strings.ToLower(strings.TrimSpace(info.Email))
	return info, nil
}
