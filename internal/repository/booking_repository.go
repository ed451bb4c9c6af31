package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/garment-booking/internal/model"
)

// BookingRepo persists bookings and their tracking history. Bookings are
// never deleted; cancellation is a status update.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingCols = `id, email, product_id, product_name, quantity, unit_price, total_price, first_name, last_name,
	contact_number, delivery_address, COALESCE(notes, ''), payment_method, payment_status, status,
	payment_intent_id, created_at, updated_at`

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b      model.Booking
		intent sql.NullString
	)
	err := s.Scan(&b.ID, &b.Email, &b.ProductID, &b.ProductName, &b.Quantity, &b.UnitPrice, &b.TotalPrice,
		&b.FirstName, &b.LastName, &b.ContactNumber, &b.DeliveryAddress, &b.Notes, &b.PaymentMethod,
		&b.PaymentStatus, &b.Status, &intent, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.PaymentIntentID = intent.String
	b.TrackingHistory = []model.TrackingEvent{}
	return &b, nil
}

// CreateTx inserts b inside tx and fills its id and timestamps. A repeated
// payment intent id yields ErrDuplicateIntent.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	var intent sql.NullString
	if b.PaymentIntentID != "" {
		intent = sql.NullString{String: b.PaymentIntentID, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (email, product_id, product_name, quantity, unit_price, total_price, first_name,
			last_name, contact_number, delivery_address, notes, payment_method, payment_status, status, payment_intent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Email, b.ProductID, b.ProductName, b.Quantity, b.UnitPrice, b.TotalPrice, b.FirstName,
		b.LastName, b.ContactNumber, b.DeliveryAddress, b.Notes, b.PaymentMethod, b.PaymentStatus, b.Status, intent)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateIntent
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.TrackingHistory == nil {
		b.TrackingHistory = []model.TrackingEvent{}
	}
	return nil
}

// GetByID loads a booking with its tracking history.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if b.TrackingHistory, err = r.Events(ctx, id); err != nil {
		return nil, err
	}
	return b, nil
}

// GetByIntentID finds the booking recorded for a payment intent.
func (r *BookingRepo) GetByIntentID(ctx context.Context, intentID string) (*model.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx,
		"SELECT "+bookingCols+" FROM bookings WHERE payment_intent_id = ?", intentID))
}

// GetForUpdateTx locks the booking row for the rest of tx.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	return scanBooking(tx.QueryRowContext(ctx,
		"SELECT "+bookingCols+" FROM bookings WHERE id = ? FOR UPDATE", id))
}

// UpdateStatusTx writes a new status. Transition rules are enforced by
// the caller.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, st model.OrderStatus) error {
	res, err := tx.ExecContext(ctx, "UPDATE bookings SET status = ? WHERE id = ?", st, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns bookings matching f, newest first, without tracking history.
func (r *BookingRepo) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.Email != "" {
		where = append(where, "email = ?")
		args = append(args, strings.ToLower(f.Email))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil {
			where = append(where, "(id = ? OR product_name LIKE ?)")
			args = append(args, id, "%"+s+"%")
		} else {
			where = append(where, "product_name LIKE ?")
			args = append(args, "%"+s+"%")
		}
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	q := "SELECT " + bookingCols + " FROM bookings"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// AddTrackingEvent appends ev to the booking's history.
func (r *BookingRepo) AddTrackingEvent(ctx context.Context, bookingID uint64, ev model.TrackingEvent) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO booking_tracking_events (booking_id, stage, location, note, occurred_at) VALUES (?, ?, ?, ?, ?)",
		bookingID, ev.Stage, ev.Location, ev.Note, ev.Date.UTC())
	return err
}

// Events returns the tracking history in insertion order.
func (r *BookingRepo) Events(ctx context.Context, bookingID uint64) ([]model.TrackingEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT stage, location, note, occurred_at FROM booking_tracking_events WHERE booking_id = ? ORDER BY id",
		bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TrackingEvent{}
	for rows.Next() {
		var ev model.TrackingEvent
		if err := rows.Scan(&ev.Stage, &ev.Location, &ev.Note, &ev.Date); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
