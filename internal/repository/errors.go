// Package repository holds the MySQL data access layer. The sentinel
// errors below let services and handlers tell failure scenarios apart;
// the HTTP API client maps response codes back onto the same values so
// callers can use errors.Is regardless of transport.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller acts on a resource they do not
// own. Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals an operation that the current state does not allow,
// such as cancelling a booking that is no longer pending. 409.
var ErrConflict = errors.New("conflict")

// ErrNotFound means the requested row does not exist. 404.
var ErrNotFound = errors.New("not found")

// ErrStockChanged means the booking was computed against a stock version
// that is no longer current. The buyer must re-read the product. 409.
var ErrStockChanged = errors.New("stock changed")

// ErrInsufficientStock means fewer units remain than were requested. 409.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrEmailExists is returned when registering an email twice.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateIntent is returned when a payment intent id is already
// attached to a booking.
var ErrDuplicateIntent = errors.New("payment intent already recorded")

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
