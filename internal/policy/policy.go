// Package policy decides whether an identity may perform an action. Every
// gate in the system (form submission, HTTP middleware, tracker
// cancellation) asks Evaluate instead of checking roles inline.
package policy

import (
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/session"
)

// Action is something a user may attempt.
type Action string

const (
	PlaceBooking  Action = "place_booking"
	CancelBooking Action = "cancel_booking"
	ViewOrders    Action = "view_orders"
	ManageCatalog Action = "manage_catalog"
	ManageOrders  Action = "manage_orders"
	ManageUsers   Action = "manage_users"
)

// Reason explains a denial. The zero value means allowed.
type Reason string

const (
	NotSignedIn      Reason = "not_signed_in"
	WrongRole        Reason = "wrong_role"
	AccountPending   Reason = "account_pending"
	AccountSuspended Reason = "account_suspended"
)

// Decision is the tagged outcome of Evaluate.
type Decision struct {
	Action Action
	Reason Reason
}

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool { return d.Reason == "" }

// Message is the user facing text for a denial.
func (d Decision) Message() string {
	switch d.Reason {
	case "":
		return ""
	case NotSignedIn:
		if d.Action == PlaceBooking {
			return "Please login or register to place an order"
		}
		return "Please login to continue"
	case WrongRole:
		if d.Action == PlaceBooking || d.Action == CancelBooking {
			return "Managers and Admins cannot place orders"
		}
		return "You do not have access to this area"
	case AccountPending, AccountSuspended:
		return "Your account is pending or suspended. Please contact support."
	}
	return "not allowed"
}

// Err returns nil when allowed, otherwise a *DeniedError.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return &DeniedError{Decision: d}
}

// DeniedError wraps a negative decision so it can travel as an error.
type DeniedError struct{ Decision Decision }

func (e *DeniedError) Error() string { return string(e.Decision.Reason) + ": " + e.Decision.Message() }

var allowedRoles = map[Action][]model.Role{
	PlaceBooking:  {model.RoleBuyer},
	CancelBooking: {model.RoleBuyer},
	ViewOrders:    {model.RoleBuyer, model.RoleManager, model.RoleAdmin},
	ManageCatalog: {model.RoleManager, model.RoleAdmin},
	ManageOrders:  {model.RoleManager, model.RoleAdmin},
	ManageUsers:   {model.RoleAdmin},
}

// Evaluate applies role and account status rules. The account status check
// runs after the role check so a suspended manager trying to book still
// hears about the role first.
func Evaluate(id *session.Identity, action Action) Decision {
	d := Decision{Action: action}
	if !id.SignedIn() {
		d.Reason = NotSignedIn
		return d
	}
	if !hasRole(allowedRoles[action], id.Role) {
		d.Reason = WrongRole
		return d
	}
	switch id.Status {
	case model.StatusActive:
	case model.StatusPending:
		d.Reason = AccountPending
	default:
		d.Reason = AccountSuspended
	}
	return d
}

func hasRole(roles []model.Role, r model.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}
