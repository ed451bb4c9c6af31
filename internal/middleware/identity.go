package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/session"
)

const identityKey = "identity"

// CurrentIdentity returns the caller attached by JWTAuth, or nil.
func CurrentIdentity(c echo.Context) *session.Identity {
	if id, ok := c.Get(identityKey).(*session.Identity); ok {
		return id
	}
	return session.FromContext(c.Request().Context())
}
