// Package session carries the identity of the current user. On the server
// the identity is derived from the access token of each request and lives
// in a context.Context; on clients a Context is fed by exactly one
// subscription to the auth provider's identity stream.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iliyamo/garment-booking/internal/model"
)

// Identity is who is acting. A nil *Identity means nobody is signed in.
type Identity struct {
	UserID      uint64              `json:"id"`
	Email       string              `json:"email"`
	DisplayName string              `json:"displayName,omitempty"`
	Role        model.Role          `json:"role"`
	Status      model.AccountStatus `json:"status"`
}

// SignedIn reports whether id represents an authenticated user.
func (id *Identity) SignedIn() bool { return id != nil && id.Email != "" }

// Owns reports whether the booking email belongs to this identity.
// Comparison is case-insensitive; emails are stored lower-cased.
func (id *Identity) Owns(email string) bool {
	return id.SignedIn() && strings.EqualFold(strings.TrimSpace(email), id.Email)
}

// Staff reports whether id is a manager or admin.
func (id *Identity) Staff() bool {
	return id != nil && (id.Role == model.RoleManager || id.Role == model.RoleAdmin)
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}

// Provider is the authentication collaborator. Identities emits the new
// identity after every sign-in and nil after sign-out.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	Register(ctx context.Context, email, password, displayName string, role model.Role) (*Identity, error)
	SignInWithOAuth(ctx context.Context, code string) (*Identity, error)
	SignOut(ctx context.Context) error
	Identities() <-chan *Identity
}

// ErrAlreadySubscribed is returned by Run when a Context is already fed.
var ErrAlreadySubscribed = errors.New("session: identity stream already subscribed")

// Context is the explicit identity holder consulted by booking, payment
// and tracking code instead of ambient global state.
type Context struct {
	running atomic.Bool

	mu      sync.RWMutex
	current *Identity
	changed chan struct{}
}

func NewContext() *Context {
	return &Context{changed: make(chan struct{})}
}

// Current returns a copy of the signed-in identity or nil.
func (c *Context) Current() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// Changed returns a channel closed on the next identity change.
func (c *Context) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Run consumes the identity stream until it closes or ctx is done. Only one
// Run may be active for the lifetime of a Context.
func (c *Context) Run(ctx context.Context, updates <-chan *Identity) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadySubscribed
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-updates:
			if !ok {
				return nil
			}
			c.set(id)
		}
	}
}

func (c *Context) set(id *Identity) {
	var cp *Identity
	if id != nil {
		v := *id
		cp = &v
	}
	c.mu.Lock()
	c.current = cp
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}
