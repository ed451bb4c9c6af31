package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/garment-booking/internal/config"
)

// takeScript refills a bucket continuously (one token per `every` ms, up
// to `burst`) and takes one token when there is one. It returns
// {allowed, tokens left, ms until the next token}.
var takeScript = redis.NewScript(`
local burst = tonumber(ARGV[2])
local every = tonumber(ARGV[3])
local now = tonumber(ARGV[1])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - at) / every)
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
else
	wait = math.ceil((1 - tokens) * every)
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'at', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
local allowed = 0
if wait == 0 then allowed = 1 end
return { allowed, math.floor(tokens), wait }
`)

// Limiter is a set of Redis token buckets sharing one size and refill
// rate, one bucket per key.
type Limiter struct {
	rdb    redis.Scripter
	prefix string
	burst  int
	every  time.Duration
	ttl    time.Duration
}

// Verdict is the outcome of taking a token.
type Verdict struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// NewLimiter returns buckets of burst tokens refilled one per every.
func NewLimiter(rdb redis.Scripter, prefix string, burst int, every, ttl time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if every <= 0 {
		every = time.Second
	}
	if ttl < every*time.Duration(burst) {
		ttl = every * time.Duration(burst)
	}
	return &Limiter{rdb: rdb, prefix: prefix, burst: burst, every: every, ttl: ttl}
}

// Take spends one token from the bucket for key.
func (l *Limiter) Take(ctx context.Context, key string) (Verdict, error) {
	vals, err := takeScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key},
		time.Now().UnixMilli(), l.burst, l.every.Milliseconds(), l.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Verdict{}, err
	}
	if len(vals) != 3 {
		return Verdict{}, fmt.Errorf("ratelimit: unexpected script result %v", vals)
	}
	return Verdict{Allowed: vals[0] == 1, Remaining: vals[1], RetryAfter: time.Duration(vals[2]) * time.Millisecond}, nil
}

// middleware rejects requests whose bucket is empty. Redis trouble lets
// the request through.
func (l *Limiter) middleware(key func(echo.Context) string, debug bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k := key(c)
			v, err := l.Take(c.Request().Context(), k)
			if err != nil {
				if debug {
					c.Logger().Warnf("[ratelimit] key=%s: %v", k, err)
				}
				return next(c)
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.Remaining, 10))
			if v.Allowed {
				return next(c)
			}
			secs := int((v.RetryAfter + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if debug {
				c.Logger().Infof("[ratelimit] block key=%s retry=%s", k, v.RetryAfter)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":   "rate_limited",
				"message": fmt.Sprintf("too many requests, retry in %ds", secs),
			})
		}
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewTokenBucket limits all traffic per client address and route, with a
// bucket of cfg.Capacity tokens refilled at cfg.RefillTokens per
// cfg.RefillInterval. It passes everything when disabled or without Redis.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	every := cfg.RefillInterval / time.Duration(max(cfg.RefillTokens, 1))
	l := NewLimiter(rdb, cfg.Prefix, cfg.Capacity, every, cfg.TTL)
	return l.middleware(func(c echo.Context) string { return clientKey(cfg.KeyStrategy, c) }, cfg.Debug)
}

// NewPaymentLimit limits the endpoints that open or record payments, one
// bucket per signed-in buyer. It must run after JWTAuth.
func NewPaymentLimit(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	l := NewLimiter(rdb, cfg.Prefix+":pay", cfg.PaymentBurst, cfg.PaymentEvery, cfg.TTL)
	return l.middleware(buyerKey, cfg.Debug)
}

func buyerKey(c echo.Context) string {
	if id := CurrentIdentity(c); id != nil && id.UserID != 0 {
		return "user:" + strconv.FormatUint(id.UserID, 10)
	}
	return "ip:" + realIP(c)
}

func realIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// clientKey builds the global bucket key. It runs before authentication,
// so only the address and the route are known.
func clientKey(strategy string, c echo.Context) string {
	route := c.Request().Method + " " + c.Path()
	switch strings.ToLower(strategy) {
	case "ip":
		return "ip:" + realIP(c)
	case "route":
		return "route:" + route
	}
	return "ip:" + realIP(c) + ":route:" + route
}
