// Package gateway talks to Stripe. The server uses it to create and verify
// payment intents; checkout flows use it to confirm card payments.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/paymentmethod"

	"github.com/iliyamo/garment-booking/internal/payment"
)

// StatusSucceeded is the intent status of a completed payment.
const StatusSucceeded = string(stripe.PaymentIntentStatusSucceeded)

// Intent is the subset of a Stripe PaymentIntent the service relies on.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// IntentParams describes a new payment intent.
type IntentParams struct {
	Amount         int64
	Currency       string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Stripe wraps the intent and payment method API clients.
type Stripe struct {
	intents *paymentintent.Client
	methods *paymentmethod.Client
}

// NewStripe returns a client using secretKey. A non-empty apiURL points the
// client at another host, which tests use for a local fake.
func NewStripe(secretKey, apiURL string) *Stripe {
	var backend stripe.Backend
	if apiURL != "" {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(apiURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		})
	} else {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{
		intents: &paymentintent.Client{B: backend, Key: secretKey},
		methods: &paymentmethod.Client{B: backend, Key: secretKey},
	}
}

// CreateIntent opens a card payment intent for the given amount.
func (s *Stripe) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(p.Amount),
		Currency:           stripe.String(p.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	pi, err := s.intents.New(params)
	if err != nil {
		return nil, translate(err)
	}
	return toIntent(pi), nil
}

// GetIntent fetches the current state of an intent.
func (s *Stripe) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(id, params)
	if err != nil {
		return nil, translate(err)
	}
	return toIntent(pi), nil
}

// ConfirmCardPayment confirms the intent identified by clientSecret with
// paymentMethod, attaching billing details first. It implements
// payment.Gateway.
func (s *Stripe) ConfirmCardPayment(ctx context.Context, clientSecret string, billing payment.Billing, paymentMethod string) (*payment.Confirmation, error) {
	intentID, ok := IntentIDFromSecret(clientSecret)
	if !ok {
		return nil, fmt.Errorf("gateway: malformed client secret")
	}
	// shared test tokens (pm_card_visa and friends) cannot be modified
	if !strings.HasPrefix(paymentMethod, "pm_card_") {
		mp := &stripe.PaymentMethodParams{
			BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
				Name:  stripe.String(billing.Name),
				Email: stripe.String(billing.Email),
				Phone: stripe.String(billing.Phone),
			},
		}
		mp.Context = ctx
		if _, err := s.methods.Update(paymentMethod, mp); err != nil {
			return nil, translate(err)
		}
	}
	cp := &stripe.PaymentIntentConfirmParams{PaymentMethod: stripe.String(paymentMethod)}
	cp.Context = ctx
	if billing.Email != "" {
		cp.ReceiptEmail = stripe.String(billing.Email)
	}
	pi, err := s.intents.Confirm(intentID, cp)
	if err != nil {
		return nil, translate(err)
	}
	if pi.LastPaymentError != nil && pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &payment.GatewayError{Code: string(pi.LastPaymentError.Code), Message: pi.LastPaymentError.Msg}
	}
	return &payment.Confirmation{IntentID: pi.ID, Status: string(pi.Status)}, nil
}

// IntentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromSecret(secret string) (string, bool) {
	id, _, ok := strings.Cut(secret, "_secret_")
	return id, ok && id != ""
}

// translate turns Stripe API errors the buyer should see (card errors,
// invalid requests) into *payment.GatewayError and leaves transport errors
// alone.
func translate(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest {
		return &payment.GatewayError{Code: string(se.Code), Message: se.Msg}
	}
	return fmt.Errorf("stripe: %w", err)
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
