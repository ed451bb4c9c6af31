package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/garment-booking/internal/model"
)

// ProductRepo manages persistence for catalog products.
type ProductRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// DB exposes the underlying handle so callers can span transactions over
// several repositories.
func (r *ProductRepo) DB() *sql.DB { return r.db }

const productCols = `id, name, category, COALESCE(description, ''), unit_price, available_quantity,
	min_order_quantity, rating, images, specifications, payment_options, version, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (*model.Product, error) {
	var (
		p                     model.Product
		images, specs, opts   []byte
		createdBy             sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.UnitPrice, &p.AvailableQuantity,
		&p.MinOrderQuantity, &p.Rating, &images, &specs, &opts, &p.StockVersion, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(images, &p.Images); err != nil {
		return nil, fmt.Errorf("product %d images: %w", p.ID, err)
	}
	if err := unmarshalJSON(specs, &p.Specifications); err != nil {
		return nil, fmt.Errorf("product %d specifications: %w", p.ID, err)
	}
	if err := unmarshalJSON(opts, &p.PaymentOptions); err != nil {
		return nil, fmt.Errorf("product %d payment options: %w", p.ID, err)
	}
	if createdBy.Valid {
		v := uint64(createdBy.Int64)
		p.CreatedBy = &v
	}
	return &p, nil
}

func unmarshalJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// GetByID returns the product or ErrNotFound.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productCols+" FROM products WHERE id = ?", id)
	return scanProduct(row)
}

// ProductFilter narrows List.
type ProductFilter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

// List returns products ordered by newest first.
func (r *ProductRepo) List(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Search != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	q := "SELECT " + productCols + " FROM products"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Create inserts p and fills in its id and version.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	images, err := marshalJSON(p.Images)
	if err != nil {
		return err
	}
	specs, err := marshalJSON(p.Specifications)
	if err != nil {
		return err
	}
	opts, err := marshalJSON(p.PaymentOptions)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO products (name, category, description, unit_price, available_quantity, min_order_quantity,
			rating, images, specifications, payment_options, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Category, p.Description, p.UnitPrice, p.AvailableQuantity, p.MinOrderQuantity,
		p.Rating, images, specs, opts, p.CreatedBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.StockVersion = 1
	return nil
}

// ProductUpdate lists the fields a manager may change. Nil means unchanged.
type ProductUpdate struct {
	UnitPrice         *decimal.Decimal
	AvailableQuantity *int
	MinOrderQuantity  *int
	PaymentOptions    []string
}

// Update applies u and bumps the stock version. When expectedVersion is
// non-zero the update only succeeds against that version.
func (r *ProductRepo) Update(ctx context.Context, id uint64, u ProductUpdate, expectedVersion uint64) error {
	sets := []string{"version = version + 1"}
	var args []any
	if u.UnitPrice != nil {
		sets = append(sets, "unit_price = ?")
		args = append(args, *u.UnitPrice)
	}
	if u.AvailableQuantity != nil {
		sets = append(sets, "available_quantity = ?")
		args = append(args, *u.AvailableQuantity)
	}
	if u.MinOrderQuantity != nil {
		sets = append(sets, "min_order_quantity = ?")
		args = append(args, *u.MinOrderQuantity)
	}
	if u.PaymentOptions != nil {
		opts, err := json.Marshal(u.PaymentOptions)
		if err != nil {
			return err
		}
		sets = append(sets, "payment_options = ?")
		args = append(args, opts)
	}
	q := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if expectedVersion != 0 {
		q += " AND version = ?"
		args = append(args, expectedVersion)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missOrStale(ctx, r.db, id)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *ProductRepo) missOrStale(ctx context.Context, q queryer, id uint64) error {
	var v uint64
	if err := q.QueryRowContext(ctx, "SELECT version FROM products WHERE id = ?", id).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrStockChanged
}

// ReserveStockTx takes qty units out of stock inside tx and bumps the
// stock version. A non-zero expectedVersion must match the current one.
func (r *ProductRepo) ReserveStockTx(ctx context.Context, tx *sql.Tx, id uint64, qty int, expectedVersion uint64) error {
	var (
		version   uint64
		available int
	)
	err := tx.QueryRowContext(ctx,
		"SELECT version, available_quantity FROM products WHERE id = ? FOR UPDATE", id).Scan(&version, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if expectedVersion != 0 && version != expectedVersion {
		return ErrStockChanged
	}
	if available < qty {
		return ErrInsufficientStock
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE products SET available_quantity = available_quantity - ?, version = version + 1 WHERE id = ?", qty, id)
	return err
}

// RestockTx returns qty units to stock and bumps the stock version. It is
// used when a booking is cancelled.
func (r *ProductRepo) RestockTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE products SET available_quantity = available_quantity + ?, version = version + 1 WHERE id = ?", qty, id)
	return err
}
