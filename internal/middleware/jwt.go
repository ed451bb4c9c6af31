package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/session"
	"github.com/iliyamo/garment-booking/internal/utils"
)

// JWTAuth validates the Bearer access token and attaches the identity it
// carries to both the echo context and the request context, so handlers
// and services read the same caller.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			id, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			attach(c, id)
			return next(c)
		}
	}
}

func attach(c echo.Context, id *session.Identity) {
	c.Set(identityKey, id)
	c.Set("user_id", strconv.FormatUint(id.UserID, 10))
	c.Set("role", string(id.Role))
	req := c.Request()
	c.SetRequest(req.WithContext(session.WithIdentity(req.Context(), id)))
}
