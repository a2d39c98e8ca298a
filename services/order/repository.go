package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var ErrOrderNotFound = errors.New("order not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS orders(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  user_email TEXT NOT NULL,
  status TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  processing_duration_ms INTEGER NOT NULL DEFAULT 0,
  created_unix INTEGER NOT NULL,
  updated_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id INTEGER NOT NULL,
  product_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  price TEXT NOT NULL,
  FOREIGN KEY(order_id) REFERENCES orders(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id);
`
	_, err := db.Exec(schema)
	return err
}

func (r *Repository) Close() error { return r.db.Close() }

// CreateOrder writes the order row and its item snapshots in one
// transaction. Amounts are stored as decimal strings, never floats.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
  INSERT INTO orders(user_id, user_email, status, total_amount, processing_duration_ms, created_unix, updated_unix)
  VALUES(?,?,?,?,?,?,?)`,
		o.UserID, o.UserEmail, o.Status, o.TotalAmount.String(), o.ProcessingDurationMs, o.CreatedUnix, o.UpdatedUnix)
	if err != nil {
		return 0, err
	}

	oid, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
  INSERT INTO order_items(order_id, product_id, quantity, price)
  VALUES(?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, oid, it.ProductID, it.Quantity, it.Price.String()); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return oid, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status=?, updated_unix=? WHERE id=?`,
		status, nowUnix(), orderID)
	return err
}

func (r *Repository) SetProcessingDuration(ctx context.Context, orderID, durationMs int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET processing_duration_ms=? WHERE id=?`,
		durationMs, orderID)
	return err
}

func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
    SELECT id, user_id, user_email, status, total_amount, processing_duration_ms, created_unix, updated_unix
    FROM orders WHERE id=?`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
    SELECT id, user_id, user_email, status, total_amount, processing_duration_ms, created_unix, updated_unix
    FROM orders WHERE user_id=? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items, err := r.listItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var total string
	err := row.Scan(&o.ID, &o.UserID, &o.UserEmail, &o.Status, &total,
		&o.ProcessingDurationMs, &o.CreatedUnix, &o.UpdatedUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("corrupt total_amount for order %d: %w", o.ID, err)
	}
	return &o, nil
}

func (r *Repository) listItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
    SELECT id, order_id, product_id, quantity, price
    FROM order_items WHERE order_id=?`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		var price string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("corrupt price for order %d: %w", orderID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
