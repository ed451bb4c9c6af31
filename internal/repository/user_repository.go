package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id, email, display_name, password_hash, role, status, created_at, updated_at"

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// NewUser is the input of Create.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
	Role        model.Role
	Status      model.AccountStatus
}

// Create hashes the password, inserts the user and returns its id.
func (r *UserRepo) Create(ctx context.Context, nu NewUser, cost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	hash, err := utils.HashPassword(nu.Password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, display_name, password_hash, role, status) VALUES (?,?,?,?,?)",
		email, strings.TrimSpace(nu.DisplayName), hash, nu.Role, nu.Status)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// EnsureOAuthUser returns the user with email, creating an active buyer with
// an unusable random password when none exists.
func (r *UserRepo) EnsureOAuthUser(ctx context.Context, email, displayName string, cost int) (model.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return u, err
	}
	secret, err := utils.RandomSecret()
	if err != nil {
		return model.User{}, err
	}
	_, err = r.Create(ctx, NewUser{
		Email: email, Password: secret, DisplayName: displayName,
		Role: model.RoleBuyer, Status: model.StatusActive,
	}, cost)
	if err != nil && !errors.Is(err, ErrEmailExists) {
		return model.User{}, err
	}
	return r.GetByEmail(ctx, email)
}

// SetStatus changes the account status of a user.
func (r *UserRepo) SetStatus(ctx context.Context, id uint64, st model.AccountStatus) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET status=? WHERE id=?", st, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users, optionally narrowed to one account status.
func (r *UserRepo) List(ctx context.Context, st model.AccountStatus) ([]model.User, error) {
	q := "SELECT " + userCols + " FROM users"
	var args []any
	if st != "" {
		q += " WHERE status=?"
		args = append(args, st)
	}
	q += " ORDER BY id"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
