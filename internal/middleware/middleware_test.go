package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/session"
	"github.com/iliyamo/garment-booking/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, id session.Identity) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func protected(action policy.Action) *echo.Echo {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		id := session.FromContext(c.Request().Context())
		return c.String(http.StatusOK, id.Email+"|"+c.Get("user_id").(string))
	}, JWTAuth(secret), Require(action))
	return e
}

func serve(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAttachesIdentity(t *testing.T) {
	e := protected(policy.PlaceBooking)
	rec := serve(e, bearer(t, session.Identity{UserID: 9, Email: "a@x.com", Role: model.RoleBuyer, Status: model.StatusActive}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com|9", rec.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
	e := protected(policy.PlaceBooking)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "Bearer nonsense").Code)

	tok, err := utils.NewAccessToken("other-secret", session.Identity{UserID: 1, Email: "a@x.com", Role: model.RoleBuyer}, 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "Bearer "+tok.Token).Code)
}

func TestRequireReportsReason(t *testing.T) {
	e := protected(policy.PlaceBooking)

	rec := serve(e, bearer(t, session.Identity{UserID: 2, Email: "m@x.com", Role: model.RoleManager, Status: model.StatusActive}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"wrong_role"`)
	assert.Contains(t, rec.Body.String(), "Managers and Admins cannot place orders")

	rec = serve(e, bearer(t, session.Identity{UserID: 3, Email: "s@x.com", Role: model.RoleBuyer, Status: model.StatusSuspended}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"account_suspended"`)
}

func TestRequireWithoutAuthIs401(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Require(policy.ViewOrders))
	rec := serve(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_signed_in")
}

func TestCacheKeySeparatesProducts(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "garment:cache", KeyStrategy: "path_query"}
	e := echo.New()
	keyOf := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/products/:id")
		return cacheKeyFrom(cfg, c)
	}
	assert.NotEqual(t, keyOf("/v1/products/7"), keyOf("/v1/products/8"))
	assert.Equal(t, keyOf("/v1/products?b=2&a=1"), keyOf("/v1/products?a=1&b=2"))
	assert.Equal(t, keyOf("/v1/products/7"), cacheKey(cfg, http.MethodGet, "", "/v1/products/7", ""))

	cfg.KeyStrategy = "route"
	assert.Equal(t, keyOf("/v1/products/7"), keyOf("/v1/products/8"))
}

func TestMiddlewaresPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := serve(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCaptureWriterSkipsOversizedBodies(t *testing.T) {
	cw := &captureWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("ab"))
	assert.False(t, cw.truncated())
	_, _ = cw.Write([]byte("cde"))
	assert.True(t, cw.truncated())
	assert.Equal(t, "ab", cw.buf.String())
}

// scriptedRedis answers every script call with the next verdict and
// records the keys it was asked about.
type scriptedRedis struct {
	redis.Scripter
	verdicts [][]interface{}
	err      error
	keys     []string
}

func (s *scriptedRedis) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	s.keys = append(s.keys, keys...)
	if s.err != nil {
		return redis.NewCmdResult(nil, s.err)
	}
	v := s.verdicts[0]
	s.verdicts = s.verdicts[1:]
	return redis.NewCmdResult(v, nil)
}

func TestPaymentLimitPerBuyer(t *testing.T) {
	rdb := &scriptedRedis{verdicts: [][]interface{}{
		{int64(1), int64(4), int64(0)},
		{int64(0), int64(0), int64(11500)},
		{int64(1), int64(4), int64(0)},
	}}
	l := NewLimiter(rdb, "garment:rl:pay", 5, 12*time.Second, time.Minute)
	e := echo.New()
	e.POST("/v1/checkout", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		JWTAuth(secret), l.middleware(buyerKey, false))

	post := func(id session.Identity) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/checkout", nil)
		req.Header.Set("Authorization", bearer(t, id))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}
	ada := session.Identity{UserID: 9, Email: "a@x.com", Role: model.RoleBuyer, Status: model.StatusActive}
	bob := session.Identity{UserID: 10, Email: "b@x.com", Role: model.RoleBuyer, Status: model.StatusActive}

	rec := post(ada)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))

	rec = post(ada)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "12", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusCreated, post(bob).Code)
	assert.Equal(t, []string{"garment:rl:pay:user:9", "garment:rl:pay:user:9", "garment:rl:pay:user:10"}, rdb.keys)
}

func TestLimiterFailsOpen(t *testing.T) {
	l := NewLimiter(&scriptedRedis{err: errors.New("connection refused")}, "rl", 1, time.Second, 0)
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, l.middleware(buyerKey, true))
	assert.Equal(t, http.StatusOK, serve(e, "").Code)
}

func TestClientKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/products/7", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/products/:id")

	assert.Equal(t, "ip:10.0.0.1", clientKey("ip", c))
	assert.Equal(t, "route:GET /v1/products/:id", clientKey("route", c))
	assert.Equal(t, "ip:10.0.0.1:route:GET /v1/products/:id", clientKey("", c))
}
