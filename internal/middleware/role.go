package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/policy"
)

// Require aborts the request unless the caller may perform action.
// Anonymous callers get 401; everyone else who is denied gets 403 with the
// denial reason as the error code.
func Require(action policy.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := policy.Evaluate(CurrentIdentity(c), action)
			if d.Allowed() {
				return next(c)
			}
			status := http.StatusForbidden
			if d.Reason == policy.NotSignedIn {
				status = http.StatusUnauthorized
			}
			return c.JSON(status, echo.Map{"error": string(d.Reason), "message": d.Message()})
		}
	}
}
