package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func withTx(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx
}

func TestReserveStockTx(t *testing.T) {
	lock := regexp.QuoteMeta("SELECT version, available_quantity FROM products WHERE id = ? FOR UPDATE")
	update := regexp.QuoteMeta("UPDATE products SET available_quantity = available_quantity - ?, version = version + 1 WHERE id = ?")
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		db, mock := newMock(t)
		tx := withTx(t, db, mock)
		mock.ExpectQuery(lock).WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"version", "available_quantity"}).AddRow(3, 500))
		mock.ExpectExec(update).WithArgs(50, 7).WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, NewProductRepo(db).ReserveStockTx(ctx, tx, 7, 50, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		db, mock := newMock(t)
		tx := withTx(t, db, mock)
		mock.ExpectQuery(lock).WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"version", "available_quantity"}).AddRow(4, 500))
		assert.ErrorIs(t, NewProductRepo(db).ReserveStockTx(ctx, tx, 7, 50, 3), ErrStockChanged)
	})

	t.Run("version not supplied", func(t *testing.T) {
		db, mock := newMock(t)
		tx := withTx(t, db, mock)
		mock.ExpectQuery(lock).WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"version", "available_quantity"}).AddRow(9, 60))
		mock.ExpectExec(update).WithArgs(60, 7).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewProductRepo(db).ReserveStockTx(ctx, tx, 7, 60, 0))
	})

	t.Run("insufficient", func(t *testing.T) {
		db, mock := newMock(t)
		tx := withTx(t, db, mock)
		mock.ExpectQuery(lock).WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"version", "available_quantity"}).AddRow(3, 20))
		assert.ErrorIs(t, NewProductRepo(db).ReserveStockTx(ctx, tx, 7, 50, 3), ErrInsufficientStock)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		tx := withTx(t, db, mock)
		mock.ExpectQuery(lock).WithArgs(8).WillReturnError(sql.ErrNoRows)
		assert.ErrorIs(t, NewProductRepo(db).ReserveStockTx(ctx, tx, 8, 1, 0), ErrNotFound)
	})
}

func TestRestockTxBumpsVersion(t *testing.T) {
	db, mock := newMock(t)
	tx := withTx(t, db, mock)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET available_quantity = available_quantity + ?, version = version + 1 WHERE id = ?")).
		WithArgs(50, 7).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, NewProductRepo(db).RestockTx(context.Background(), tx, 7, 50))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductUpdateStaleVersion(t *testing.T) {
	db, mock := newMock(t)
	price := decimal.RequireFromString("9.50")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET version = version + 1, unit_price = ? WHERE id = ? AND version = ?")).
		WithArgs(sqlmock.AnyArg(), 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM products WHERE id = ?")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))

	err := NewProductRepo(db).Update(context.Background(), 7, ProductUpdate{UnitPrice: &price}, 2)
	assert.ErrorIs(t, err, ErrStockChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductDecodesJSONColumns(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "category", "description", "unit_price", "available_quantity",
		"min_order_quantity", "rating", "images", "specifications", "payment_options", "version", "created_by",
		"created_at", "updated_at"}).
		AddRow(7, "Polo", "shirts", "", "12.99", 500, 50, "4.5",
			[]byte(`["a.jpg"]`), []byte(`[{"key":"fabric","value":"cotton"}]`), []byte(`["Cash on Delivery"]`),
			3, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM products WHERE id = ?").WithArgs(7).WillReturnRows(rows)

	p, err := NewProductRepo(db).GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, p.UnitPrice.Equal(decimal.RequireFromString("12.99")))
	assert.Equal(t, []string{"a.jpg"}, p.Images)
	assert.Equal(t, "cotton", p.Specifications[0].Value)
	assert.Equal(t, uint64(3), p.StockVersion)
	assert.Nil(t, p.CreatedBy)
}

func TestCreateBookingDuplicateIntent(t *testing.T) {
	db, mock := newMock(t)
	tx := withTx(t, db, mock)
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'pi_1' for key 'uq_bookings_intent'"})

	b := &model.Booking{Email: "b@example.com", PaymentIntentID: "pi_1", Status: model.OrderConfirmed}
	assert.ErrorIs(t, NewBookingRepo(db).CreateTx(context.Background(), tx, b), ErrDuplicateIntent)
}

func TestListBookingsFilters(t *testing.T) {
	db, mock := newMock(t)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = ? AND status = ? AND (id = ? OR product_name LIKE ?) AND created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs("buyer@example.com", model.OrderPending, uint64(42), "%42%", since, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	out, err := NewBookingRepo(db).List(context.Background(), model.BookingFilter{
		Email: "Buyer@Example.com", Status: model.OrderPending, Search: "42", Since: since,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventsKeepInsertionOrder(t *testing.T) {
	db, mock := newMock(t)
	t1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM booking_tracking_events WHERE booking_id = ? ORDER BY id")).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"stage", "location", "note", "occurred_at"}).
			AddRow("Shipped", "Dhaka", "left warehouse", t1).
			AddRow("Packed", "Dhaka", "", t0))

	evs, err := NewBookingRepo(db).Events(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "Shipped", evs[0].Stage)
	assert.Equal(t, "Packed", evs[1].Stage)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("a@example.com", "Ann", sqlmock.AnyArg(), model.RoleBuyer, model.StatusActive).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err := NewUserRepo(db).Create(context.Background(), NewUser{
		Email: " A@example.com ", Password: "pw", DisplayName: "Ann",
		Role: model.RoleBuyer, Status: model.StatusActive,
	}, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestValidateRefreshRejectsRevoked(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT user_id, expires_at, revoked_at FROM refresh_tokens").WithArgs("h").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(1, time.Now().Add(time.Hour), time.Now()))
	_, err := NewTokenRepo(db).ValidateRefresh(context.Background(), "h")
	assert.ErrorIs(t, err, ErrNotFound)
}
