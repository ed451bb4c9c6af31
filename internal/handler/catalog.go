package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/service"
)

// CatalogHandler serves the product catalog. Reads are public and cached;
// writes are for managers and purge the cached copies they invalidate.
type CatalogHandler struct {
	Svc   *service.BookingService
	Cache config.CacheConfig
	Redis *redis.Client
}

func NewCatalogHandler(svc *service.BookingService, cache config.CacheConfig, rdb *redis.Client) *CatalogHandler {
	if svc == nil {
		panic("nil service passed to NewCatalogHandler")
	}
	return &CatalogHandler{Svc: svc, Cache: cache, Redis: rdb}
}

// ListProducts handles GET /v1/products?category=&q=&limit=&offset=.
func (h *CatalogHandler) ListProducts(c echo.Context) error {
	f := repository.ProductFilter{Category: c.QueryParam("category"), Search: c.QueryParam("q")}
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	f.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Svc.ListProducts(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// GetProduct handles GET /v1/products/:id.
func (h *CatalogHandler) GetProduct(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid product id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	p, err := h.Svc.GetProduct(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreateProduct handles POST /v1/products.
func (h *CatalogHandler) CreateProduct(c echo.Context) error {
	var p model.Product
	if err := c.Bind(&p); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid request body")
	}
	p.ID, p.StockVersion = 0, 0

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Svc.CreateProduct(ctx, &p); err != nil {
		return fail(c, err)
	}
	h.purge(ctx, "/v1/products")
	return c.JSON(http.StatusCreated, p)
}

type updateProductReq struct {
	UnitPrice            *decimal.Decimal `json:"unitPrice"`
	AvailableQuantity    *int             `json:"availableQuantity"`
	MinimumOrderQuantity *int             `json:"minimumOrderQuantity"`
	PaymentOptions       []string         `json:"paymentOptions"`
	ExpectedVersion      uint64           `json:"expectedVersion"`
}

// UpdateProduct handles PATCH /v1/products/:id. Every update bumps the
// stock version, so bookings priced against the old facts are refused.
func (h *CatalogHandler) UpdateProduct(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid product id")
	}
	var req updateProductReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid request body")
	}
	if req.UnitPrice != nil && !req.UnitPrice.IsPositive() {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "unitPrice must be positive")
	}
	if (req.AvailableQuantity != nil && *req.AvailableQuantity < 0) || (req.MinimumOrderQuantity != nil && *req.MinimumOrderQuantity < 1) {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid quantity bounds")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	p, err := h.Svc.UpdateProduct(ctx, id, repository.ProductUpdate{
		UnitPrice:         req.UnitPrice,
		AvailableQuantity: req.AvailableQuantity,
		MinOrderQuantity:  req.MinimumOrderQuantity,
		PaymentOptions:    req.PaymentOptions,
	}, req.ExpectedVersion)
	if err != nil {
		return fail(c, err)
	}
	h.purge(ctx, "/v1/products/"+strconv.FormatUint(id, 10), "/v1/products")
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) purge(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if err := middleware.PurgePath(ctx, h.Cache, h.Redis, p); err != nil {
			log.Printf("[cache] purge %s: %v", p, err)
		}
	}
}
