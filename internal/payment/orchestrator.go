// Package payment turns a submitted booking payload into a persisted order:
// cash on delivery bookings are stored directly, card bookings go through
// payment intent creation and gateway confirmation first.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/pricing"
)

// State of one submission attempt.
type State string

const (
	Idle                  State = "idle"
	Processing            State = "processing"
	Succeeded             State = "succeeded"
	Failed                State = "failed"
	PendingReconciliation State = "pending_reconciliation"
)

// Backend is the booking API the orchestrator persists through.
type Backend interface {
	CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
	CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error)
}

// Billing is the cardholder data passed along with the card.
type Billing struct {
	Name  string
	Email string
	Phone string
}

// Confirmation is the gateway's view of a confirmed intent.
type Confirmation struct {
	IntentID string
	Status   string
}

// Gateway confirms card payments. Declines are returned as *GatewayError.
type Gateway interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, billing Billing, paymentMethod string) (*Confirmation, error)
}

// Reconciler takes over a captured payment whose booking could not be
// stored.
type Reconciler interface {
	Reconcile(ctx context.Context, nb model.NewBooking, cause error) error
}

// Card carries the tokenized payment method for card bookings.
type Card struct {
	PaymentMethod string
}

// Result describes a successful submission.
type Result struct {
	Booking       *model.Booking
	RedirectTo    string
	RedirectAfter time.Duration
}

// OrdersPath is where buyers land after a successful card payment.
const OrdersPath = "/dashboard/my-orders"

// Options configures an Orchestrator.
type Options struct {
	Currency      string
	Retry         RetryPolicy
	RedirectDelay time.Duration
	Retryable     func(error) bool // persistence errors worth retrying
}

// Orchestrator drives one booking attempt. Create one per submitted form.
type Orchestrator struct {
	backend    Backend
	gateway    Gateway
	reconciler Reconciler
	opts       Options

	mu    sync.Mutex
	state State
	err   error
}

// New builds an orchestrator. gateway and reconciler may be nil when only
// cash on delivery is offered.
func New(backend Backend, gateway Gateway, reconciler Reconciler, opts Options) *Orchestrator {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Retryable == nil {
		opts.Retryable = func(error) bool { return true }
	}
	return &Orchestrator{backend: backend, gateway: gateway, reconciler: reconciler, opts: opts, state: Idle}
}

// State returns the current state and the error that caused Failed or
// PendingReconciliation.
func (o *Orchestrator) State() (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.err
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case Processing:
		return ErrSubmitInProgress
	case Succeeded, PendingReconciliation:
		return ErrAlreadyCompleted
	}
	o.state, o.err = Processing, nil
	return nil
}

func (o *Orchestrator) finish(st State, err error) {
	o.mu.Lock()
	o.state, o.err = st, err
	o.mu.Unlock()
}

// Submit persists the booking described by p using p.PaymentMethod. card is
// only consulted for card payments. Failed attempts may be submitted again.
func (o *Orchestrator) Submit(ctx context.Context, p model.BookingPayload, card Card) (*Result, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	var (
		res *Result
		err error
	)
	if model.IsCashOnDelivery(p.PaymentMethod) {
		res, err = o.cashOnDelivery(ctx, p)
	} else {
		res, err = o.cardPayment(ctx, p, card)
	}
	var captured *CapturedUnrecordedError
	switch {
	case err == nil:
		o.finish(Succeeded, nil)
	case errors.As(err, &captured):
		o.finish(PendingReconciliation, err)
	default:
		o.finish(Failed, err)
	}
	return res, err
}

func (o *Orchestrator) cashOnDelivery(ctx context.Context, p model.BookingPayload) (*Result, error) {
	b, err := o.backend.CreateBooking(ctx, model.NewBooking{BookingPayload: p, PaymentStatus: model.PaymentPending})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &Result{Booking: b}, nil
}

func (o *Orchestrator) cardPayment(ctx context.Context, p model.BookingPayload, card Card) (*Result, error) {
	if o.gateway == nil || card.PaymentMethod == "" {
		return nil, ErrCardRequired
	}
	intent, err := o.backend.CreatePaymentIntent(ctx, model.PaymentIntentRequest{
		Amount:      pricing.MinorUnits(p.TotalPrice),
		Currency:    o.opts.Currency,
		BookingData: p,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	conf, err := o.gateway.ConfirmCardPayment(ctx, intent.ClientSecret, Billing{
		Name:  p.FullName(),
		Email: p.Email,
		Phone: p.ContactNumber,
	}, card.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if conf.Status != "succeeded" {
		return nil, fmt.Errorf("%w: status %s", ErrNotCompleted, conf.Status)
	}

	nb := model.NewBooking{
		BookingPayload:  p,
		PaymentStatus:   model.PaymentPaid,
		Status:          model.OrderConfirmed,
		PaymentIntentID: conf.IntentID,
	}
	var booking *model.Booking
	err = o.opts.Retry.Do(ctx, o.opts.Retryable, func(ctx context.Context) error {
		b, err := o.backend.CreateBooking(ctx, nb)
		if err == nil {
			booking = b
		}
		return err
	})
	if err != nil {
		return nil, o.handOff(ctx, nb, err)
	}
	return &Result{Booking: booking, RedirectTo: OrdersPath, RedirectAfter: o.opts.RedirectDelay}, nil
}

// handOff records a captured payment that has no booking yet.
func (o *Orchestrator) handOff(ctx context.Context, nb model.NewBooking, cause error) error {
	out := &CapturedUnrecordedError{PaymentIntentID: nb.PaymentIntentID, Err: cause}
	if o.reconciler == nil {
		log.Printf("payment: intent %s captured, booking not recorded and no reconciler: %v", nb.PaymentIntentID, cause)
		return out
	}
	// the caller's context may be what failed; give the hand-off its own budget
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.reconciler.Reconcile(rctx, nb, cause); err != nil {
		log.Printf("payment: reconcile hand-off for intent %s failed: %v", nb.PaymentIntentID, err)
		return out
	}
	out.Queued = true
	return out
}
