package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/handler"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/policy"
)

// RegisterCatalog registers product browsing for everyone and product
// maintenance for managers and admins. cache wraps the public reads only.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	pub := e.Group("/v1/products")
	if cache != nil {
		pub.Use(cache)
	}
	pub.GET("", h.ListProducts)
	pub.GET("/:id", h.GetProduct)

	g := e.Group("/v1/products",
		middleware.JWTAuth(jwtSecret),
		middleware.Require(policy.ManageCatalog),
	)
	g.POST("", h.CreateProduct)
	g.PATCH("/:id", h.UpdateProduct)
}
