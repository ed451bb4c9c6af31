package config

import "time"

// RateLimitConfig drives the Redis token buckets: one in front of the
// whole API and a tighter one per buyer on the payment endpoints.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, route or ip_route
	Prefix         string
	Debug          bool

	PaymentBurst int
	PaymentEvery time.Duration // one payment token per interval
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "garment:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
		PaymentBurst:   envInt("RATE_LIMIT_PAYMENT_BURST", 5),
		PaymentEvery:   envDur("RATE_LIMIT_PAYMENT_EVERY", 12*time.Second),
	}
	if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	return def.normalize()
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if c.PaymentBurst < 1 {
		c.PaymentBurst = 1
	}
	if c.PaymentEvery <= 0 {
		c.PaymentEvery = 12 * time.Second
	}
	// keep buckets alive for at least a few refill cycles
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
