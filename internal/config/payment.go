package config

import "time"

// StripeConfig carries the gateway credentials. An empty SecretKey
// disables card payments; cash on delivery keeps working.
type StripeConfig struct {
	SecretKey string
	APIURL    string // override for test doubles; empty means api.stripe.com
}

func LoadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey: envStr("STRIPE_SECRET_KEY", ""),
		APIURL:    envStr("STRIPE_API_URL", ""),
	}
}

// Enabled reports whether card payments can be processed.
func (s StripeConfig) Enabled() bool { return s.SecretKey != "" }

// CheckoutConfig tunes the server-side checkout flow: how long a buyer's
// checkout lock lives and how persistence after a captured payment is
// retried before the booking is handed to reconciliation.
type CheckoutConfig struct {
	LockTTL           time.Duration
	PersistAttempts   int
	PersistBackoff    time.Duration
	PersistMaxBackoff time.Duration
	RedirectDelay     time.Duration
}

func LoadCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		LockTTL:           envDur("CHECKOUT_LOCK_TTL", 60*time.Second),
		PersistAttempts:   envInt("CHECKOUT_PERSIST_ATTEMPTS", 4),
		PersistBackoff:    envDur("CHECKOUT_PERSIST_BACKOFF", 250*time.Millisecond),
		PersistMaxBackoff: envDur("CHECKOUT_PERSIST_MAX_BACKOFF", 4*time.Second),
		RedirectDelay:     envDur("CHECKOUT_REDIRECT_DELAY", 2*time.Second),
	}
}
