// Package service holds the server side of the booking workflow. It is
// the in-process implementation of the backend the workflow core talks
// to: product reads, payment intents, booking persistence, cancellation
// and the manager operations on top of them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/garment-booking/internal/booking"
	"github.com/iliyamo/garment-booking/internal/gateway"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/pricing"
	"github.com/iliyamo/garment-booking/internal/queue"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/session"
)

// IntentGateway is the part of the payment provider the server needs.
type IntentGateway interface {
	CreateIntent(ctx context.Context, p gateway.IntentParams) (*gateway.Intent, error)
	GetIntent(ctx context.Context, id string) (*gateway.Intent, error)
}

// BookingService implements the booking backend on top of MySQL. The
// acting identity is read from the request context.
type BookingService struct {
	Products *repository.ProductRepo
	Bookings *repository.BookingRepo
	Intents  IntentGateway // nil disables card payments
	Events   queue.Publisher
	Currency string
}

func NewBookingService(products *repository.ProductRepo, bookings *repository.BookingRepo, intents IntentGateway, events queue.Publisher, currency string) *BookingService {
	if products == nil || bookings == nil {
		panic("nil repository passed to NewBookingService")
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	if currency == "" {
		currency = "usd"
	}
	return &BookingService{Products: products, Bookings: bookings, Intents: intents, Events: events, Currency: currency}
}

// GetProduct returns the product with its current stock version.
func (s *BookingService) GetProduct(ctx context.Context, id uint64) (*model.Product, error) {
	return s.Products.GetByID(ctx, id)
}

func (s *BookingService) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	return s.Products.List(ctx, f)
}

// CreateProduct adds p to the catalog on behalf of a manager.
func (s *BookingService) CreateProduct(ctx context.Context, p *model.Product) error {
	id := session.FromContext(ctx)
	if err := policy.Evaluate(id, policy.ManageCatalog).Err(); err != nil {
		return err
	}
	fields := map[string]string{}
	if strings.TrimSpace(p.Name) == "" {
		fields["name"] = "Name is required"
	}
	if !p.UnitPrice.IsPositive() {
		fields["unitPrice"] = "Unit price must be positive"
	}
	if p.AvailableQuantity < 0 {
		fields["availableQuantity"] = "Stock cannot be negative"
	}
	if p.MinOrderQuantity < 1 {
		fields["minimumOrderQuantity"] = "Minimum order must be at least 1"
	}
	if len(fields) > 0 {
		return &booking.ValidationError{Fields: fields}
	}
	uid := id.UserID
	p.CreatedBy = &uid
	return s.Products.Create(ctx, p)
}

// UpdateProduct changes price or stock and returns the product with its
// bumped stock version.
func (s *BookingService) UpdateProduct(ctx context.Context, productID uint64, u repository.ProductUpdate, expectedVersion uint64) (*model.Product, error) {
	if err := policy.Evaluate(session.FromContext(ctx), policy.ManageCatalog).Err(); err != nil {
		return nil, err
	}
	if err := s.Products.Update(ctx, productID, u, expectedVersion); err != nil {
		return nil, err
	}
	return s.Products.GetByID(ctx, productID)
}

// loadFor reads the product a payload books and checks the payload
// against it. A stock version that moved on yields ErrStockChanged before
// any field checks.
func (s *BookingService) loadFor(ctx context.Context, p model.BookingPayload) (*model.Product, error) {
	product, err := s.Products.GetByID(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}
	if p.StockVersion != 0 && p.StockVersion != product.StockVersion {
		return nil, repository.ErrStockChanged
	}
	if err := booking.Check(p, *product); err != nil {
		return nil, err
	}
	return product, nil
}

// CreatePaymentIntent opens a card payment for a booking that has not
// been stored yet. The amount must equal the booking total in minor units.
func (s *BookingService) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	id := session.FromContext(ctx)
	if err := policy.Evaluate(id, policy.PlaceBooking).Err(); err != nil {
		return nil, err
	}
	if s.Intents == nil {
		return nil, ErrPaymentsDisabled
	}
	p := req.BookingData
	if !id.Owns(p.Email) {
		return nil, repository.ErrForbidden
	}
	if _, err := s.loadFor(ctx, p); err != nil {
		return nil, err
	}
	if !model.IsCard(p.PaymentMethod) {
		return nil, &booking.ValidationError{Fields: map[string]string{"paymentMethod": "card payment required"}}
	}
	if want := pricing.MinorUnits(p.TotalPrice); req.Amount != want {
		return nil, &booking.ValidationError{Fields: map[string]string{
			"amount": fmt.Sprintf("expected %d, got %d", want, req.Amount),
		}}
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.Currency
	}
	intent, err := s.Intents.CreateIntent(ctx, gateway.IntentParams{
		Amount:       req.Amount,
		Currency:     currency,
		ReceiptEmail: p.Email,
		Metadata: map[string]string{
			"productId": strconv.FormatUint(p.ProductID, 10),
			"quantity":  strconv.Itoa(p.Quantity),
			"email":     strings.ToLower(p.Email),
		},
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &model.PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// CreateBooking stores a booking and takes its quantity out of stock in
// one transaction. Card bookings must reference a succeeded intent whose
// amount equals the total; repeating a card booking returns the booking
// already recorded for that intent.
func (s *BookingService) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	id := session.FromContext(ctx)
	if err := policy.Evaluate(id, policy.PlaceBooking).Err(); err != nil {
		return nil, err
	}
	if !id.Owns(nb.Email) {
		return nil, repository.ErrForbidden
	}
	product, err := s.loadFor(ctx, nb.BookingPayload)
	if err != nil {
		return nil, err
	}

	b := &model.Booking{
		Email:           strings.ToLower(strings.TrimSpace(nb.Email)),
		ProductID:       product.ID,
		ProductName:     product.Name,
		Quantity:        nb.Quantity,
		UnitPrice:       product.UnitPrice,
		TotalPrice:      pricing.Total(product.UnitPrice, nb.Quantity),
		FirstName:       strings.TrimSpace(nb.FirstName),
		LastName:        strings.TrimSpace(nb.LastName),
		ContactNumber:   strings.TrimSpace(nb.ContactNumber),
		DeliveryAddress: strings.TrimSpace(nb.DeliveryAddress),
		Notes:           strings.TrimSpace(nb.Notes),
		PaymentMethod:   nb.PaymentMethod,
		PaymentStatus:   model.PaymentPending,
		Status:          model.OrderPending,
	}
	if model.IsCard(nb.PaymentMethod) {
		existing, err := s.verifyIntent(ctx, nb.PaymentIntentID, b)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return ownedBy(id, existing)
		}
		b.PaymentMethod = model.MethodCard
		b.PaymentStatus = model.PaymentPaid
		b.Status = model.OrderConfirmed
		b.PaymentIntentID = nb.PaymentIntentID
	}

	err = s.insert(ctx, b, nb.StockVersion)
	if errors.Is(err, repository.ErrDuplicateIntent) {
		existing, err := s.Bookings.GetByIntentID(ctx, b.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		return ownedBy(id, existing)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[booking] created id=%d product=%d qty=%d method=%s", b.ID, b.ProductID, b.Quantity, b.PaymentMethod)
	s.publish(ctx, queue.NewEvent(queue.BookingCreated, b))
	return b, nil
}

// verifyIntent returns the booking already stored for intentID, if any,
// otherwise checks with the gateway that the payment went through and was
// opened for this buyer, product and quantity.
func (s *BookingService) verifyIntent(ctx context.Context, intentID string, b *model.Booking) (*model.Booking, error) {
	if intentID == "" {
		return nil, &booking.ValidationError{Fields: map[string]string{"paymentIntentId": "required for card payments"}}
	}
	if s.Intents == nil {
		return nil, ErrPaymentsDisabled
	}
	existing, err := s.Bookings.GetByIntentID(ctx, intentID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	intent, err := s.Intents.GetIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("verify payment intent: %w", err)
	}
	if intent.Status != gateway.StatusSucceeded {
		return nil, ErrPaymentNotVerified
	}
	if intent.Amount != pricing.MinorUnits(b.TotalPrice) || !intentMatches(intent.Metadata, b) {
		return nil, ErrPaymentMismatch
	}
	return nil, nil
}

func intentMatches(meta map[string]string, b *model.Booking) bool {
	return strings.EqualFold(strings.TrimSpace(meta["email"]), b.Email) &&
		meta["productId"] == strconv.FormatUint(b.ProductID, 10) &&
		meta["quantity"] == strconv.Itoa(b.Quantity)
}

func (s *BookingService) insert(ctx context.Context, b *model.Booking, stockVersion uint64) error {
	tx, err := s.Bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.Products.ReserveStockTx(ctx, tx, b.ProductID, b.Quantity, stockVersion); err != nil {
		return err
	}
	if err := s.Bookings.CreateTx(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func ownedBy(id *session.Identity, b *model.Booking) (*model.Booking, error) {
	if !id.Owns(b.Email) {
		return nil, repository.ErrForbidden
	}
	return b, nil
}

// GetBooking returns a booking to its buyer or to staff.
func (s *BookingService) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	id := session.FromContext(ctx)
	if err := policy.Evaluate(id, policy.ViewOrders).Err(); err != nil {
		return nil, err
	}
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !id.Owns(b.Email) && !id.Staff() {
		return nil, repository.ErrForbidden
	}
	return b, nil
}

// ListBookings lists bookings. Buyers only ever see their own; staff may
// list any email or all of them.
func (s *BookingService) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	id := session.FromContext(ctx)
	if err := policy.Evaluate(id, policy.ViewOrders).Err(); err != nil {
		return nil, err
	}
	if !id.Staff() {
		if f.Email != "" && !id.Owns(f.Email) {
			return nil, repository.ErrForbidden
		}
		f.Email = id.Email
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.Bookings.List(ctx, f)
}

// CancelBooking moves the caller's pending booking to cancelled and puts
// its quantity back in stock.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	id := session.FromContext(ctx)
	if err := policy.Evaluate(id, policy.CancelBooking).Err(); err != nil {
		return nil, err
	}
	b, err := s.transition(ctx, bookingID, func(b *model.Booking) error {
		if !id.Owns(b.Email) {
			return repository.ErrForbidden
		}
		if b.Status != model.OrderPending {
			return repository.ErrConflict
		}
		return nil
	}, model.OrderCancelled)
	if err != nil {
		return nil, err
	}
	log.Printf("[booking] cancelled id=%d by=%s", b.ID, id.Email)
	s.publish(ctx, queue.NewEvent(queue.BookingCancelled, b))
	return b, nil
}

// UpdateStatus advances a booking along the order lifecycle on behalf of
// staff.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID uint64, to model.OrderStatus) (*model.Booking, error) {
	if err := policy.Evaluate(session.FromContext(ctx), policy.ManageOrders).Err(); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	b, err := s.transition(ctx, bookingID, func(b *model.Booking) error {
		if !model.CanTransition(b.Status, to) {
			return repository.ErrConflict
		}
		return nil
	}, to)
	if err != nil {
		return nil, err
	}
	t := queue.BookingStatusChanged
	if to == model.OrderCancelled {
		t = queue.BookingCancelled
	}
	s.publish(ctx, queue.NewEvent(t, b))
	return b, nil
}

// transition locks the booking row, lets allow veto the change and writes
// the new status. Moving to cancelled returns the quantity to stock.
func (s *BookingService) transition(ctx context.Context, bookingID uint64, allow func(*model.Booking) error, to model.OrderStatus) (*model.Booking, error) {
	tx, err := s.Bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	b, err := s.Bookings.GetForUpdateTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := allow(b); err != nil {
		return nil, err
	}
	if err := s.Bookings.UpdateStatusTx(ctx, tx, bookingID, to); err != nil {
		return nil, err
	}
	if to == model.OrderCancelled {
		if err := s.Products.RestockTx(ctx, tx, b.ProductID, b.Quantity); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return b, nil
}

// AddTracking appends a shipment event and returns the booking with its
// full history.
func (s *BookingService) AddTracking(ctx context.Context, bookingID uint64, ev model.TrackingEvent) (*model.Booking, error) {
	if err := policy.Evaluate(session.FromContext(ctx), policy.ManageOrders).Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.Stage) == "" {
		return nil, &booking.ValidationError{Fields: map[string]string{"stage": "Stage is required"}}
	}
	if ev.Date.IsZero() {
		ev.Date = time.Now().UTC()
	}
	if _, err := s.Bookings.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	if err := s.Bookings.AddTrackingEvent(ctx, bookingID, ev); err != nil {
		return nil, err
	}
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.NewEvent(queue.BookingTrackingAdded, b))
	return b, nil
}

// Reconcile queues a paid booking that could not be stored. Unlike the
// lifecycle events its delivery is reported to the caller.
func (s *BookingService) Reconcile(ctx context.Context, nb model.NewBooking, cause error) error {
	if err := s.Events.Publish(ctx, queue.NewReconcileEvent(nb, cause)); err != nil {
		return fmt.Errorf("queue reconcile for intent %s: %w", nb.PaymentIntentID, err)
	}
	log.Printf("[booking] reconcile queued intent=%s email=%s", nb.PaymentIntentID, nb.Email)
	return nil
}

// RecordReconciled stores a paid booking taken from the reconcile queue.
// It acts as the buyer named in the booking and retries once at the
// current stock version; the intent amount check still pins the price.
func (s *BookingService) RecordReconciled(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	if !model.IsCard(nb.PaymentMethod) || nb.PaymentIntentID == "" {
		return nil, &booking.ValidationError{Fields: map[string]string{"paymentIntentId": "only captured card payments are reconciled"}}
	}
	ctx = session.WithIdentity(ctx, &session.Identity{
		Email: nb.Email, Role: model.RoleBuyer, Status: model.StatusActive,
	})
	b, err := s.CreateBooking(ctx, nb)
	if !errors.Is(err, repository.ErrStockChanged) {
		return b, err
	}
	p, err := s.Products.GetByID(ctx, nb.ProductID)
	if err != nil {
		return nil, err
	}
	log.Printf("[booking] reconcile intent=%s stock version %d -> %d", nb.PaymentIntentID, nb.StockVersion, p.StockVersion)
	nb.StockVersion = p.StockVersion
	return s.CreateBooking(ctx, nb)
}

// publish sends a lifecycle event. Broker trouble never fails a request.
func (s *BookingService) publish(ctx context.Context, ev queue.BookingEvent) {
	if err := s.Events.Publish(ctx, ev); err != nil {
		log.Printf("[booking] publish %s failed: %v", ev.Type, err)
	}
}
