package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/handler"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/policy"
)

// RegisterBuyer registers the booking workflow endpoints. Placing and
// cancelling need a buyer account in good standing; reading orders is open
// to any active account and ownership is checked in the handlers. payLimit
// guards the endpoints that open or capture payments.
func RegisterBuyer(e *echo.Echo, b *handler.BookingHandler, co *handler.CheckoutHandler, jwtSecret string, payLimit echo.MiddlewareFunc) {
	auth := middleware.JWTAuth(jwtSecret)

	place := e.Group("/v1", auth, middleware.Require(policy.PlaceBooking))
	place.POST("/create-payment-intent", b.CreatePaymentIntent, payLimit)
	place.POST("/bookings", b.CreateBooking)
	place.POST("/checkout", co.Checkout, payLimit)
	place.POST("/reconcile", b.Reconcile)

	view := e.Group("/v1/bookings", auth, middleware.Require(policy.ViewOrders))
	view.GET("/:id", b.GetBooking)
	view.GET("/:id/track", b.Track)
	view.GET("/user/:email", b.ListForUser)

	e.DELETE("/v1/bookings/:id", b.Cancel, auth, middleware.Require(policy.CancelBooking))
}

// RegisterManager registers order management for managers and admins.
func RegisterManager(e *echo.Echo, m *handler.ManagerHandler, jwtSecret string) {
	g := e.Group("/v1/bookings",
		middleware.JWTAuth(jwtSecret),
		middleware.Require(policy.ManageOrders),
	)
	g.GET("", m.ListBookings)
	g.PATCH("/:id/status", m.UpdateStatus)
	g.POST("/:id/tracking", m.AddTracking)
}

// RegisterAdmin registers account administration.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.Require(policy.ManageUsers),
	)
	g.GET("/users", a.ListUsers)
	g.PATCH("/users/:id/status", a.SetUserStatus)
}
