package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/session"
)

// SignIn logs in with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*session.Identity, error) {
	var resp AuthResponse
	req := LoginRequest{Email: strings.TrimSpace(email), Password: password}
	if err := c.send(ctx, http.MethodPost, "/v1/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp), nil
}

// Register creates an account and signs in with it. Manager accounts
// start out pending until an admin approves them.
func (c *Client) Register(ctx context.Context, email, password, displayName string, role model.Role) (*session.Identity, error) {
	var resp AuthResponse
	req := RegisterRequest{Email: strings.TrimSpace(email), Password: password, DisplayName: displayName, Role: role}
	if err := c.send(ctx, http.MethodPost, "/v1/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp), nil
}

// SignInWithOAuth exchanges an authorization code from the identity
// provider for a session.
func (c *Client) SignInWithOAuth(ctx context.Context, code string) (*session.Identity, error) {
	var resp AuthResponse
	if err := c.send(ctx, http.MethodPost, "/v1/auth/oauth", OAuthRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp), nil
}

// SignOut revokes the refresh token and forgets both tokens. The local
// session is cleared even if the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	_, refresh := c.Tokens()
	var err error
	if refresh != "" {
		err = c.send(ctx, http.MethodPost, "/v1/auth/logout", RefreshRequest{RefreshToken: refresh}, nil)
	}
	c.SetTokens("", "")
	c.emit(nil)
	return err
}

// Me asks the server who the current access token belongs to.
func (c *Client) Me(ctx context.Context) (*session.Identity, error) {
	var id session.Identity
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Identities streams the identity after every sign-in and nil after
// sign-out. Only the latest value is kept for a slow reader.
func (c *Client) Identities() <-chan *session.Identity { return c.identities }

func (c *Client) refreshAccess(ctx context.Context) error {
	_, refresh := c.Tokens()
	var resp struct {
		Access Token `json:"access"`
	}
	if err := c.send(ctx, http.MethodPost, "/v1/auth/refresh-access", RefreshRequest{RefreshToken: refresh}, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.access = resp.Access.Token
	c.mu.Unlock()
	return nil
}

func (c *Client) signedIn(resp AuthResponse) *session.Identity {
	c.SetTokens(resp.Access.Token, resp.Refresh.Token)
	id := resp.User
	c.emit(&id)
	return &id
}

func (c *Client) emit(id *session.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.identities:
	default:
	}
	c.identities <- id
}
