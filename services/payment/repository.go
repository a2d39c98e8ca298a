package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func migrate(db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS payments(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  transaction_id TEXT NOT NULL DEFAULT '',
  event_id TEXT NOT NULL UNIQUE,
  created_unix INTEGER NOT NULL,
  updated_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
`
	_, err := db.Exec(ddl)
	return err
}

func (r *Repository) Close() error { return r.db.Close() }

// SeenEvent reports whether an order.created event id was already applied.
// Durable counterpart of the in-memory tracker: survives restarts.
func (r *Repository) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM payments WHERE event_id=?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) CreatePending(ctx context.Context, p Payment) (int64, error) {
	now := nowUnix()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO payments(order_id, user_id, amount, status, transaction_id, event_id, created_unix, updated_unix)
VALUES(?,?,?,?,?,?,?,?)`,
		p.OrderID, p.UserID, p.Amount.String(), PaymentStatusPending, "", p.EventID, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetResult moves a payment to its terminal status. Rows are mutated once
// and never deleted.
func (r *Repository) SetResult(ctx context.Context, paymentID int64, status, transactionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status=?, transaction_id=?, updated_unix=? WHERE id=?`,
		status, transactionID, nowUnix(), paymentID)
	return err
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID int64) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, order_id, user_id, amount, status, transaction_id, event_id, created_unix, updated_unix
FROM payments WHERE order_id=?`, orderID)
	var p Payment
	var amount string
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &amount, &p.Status,
		&p.TransactionID, &p.EventID, &p.CreatedUnix, &p.UpdatedUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount for payment %d: %w", p.ID, err)
	}
	return &p, nil
}

func (r *Repository) CountByOrderID(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE order_id=?`, orderID).Scan(&n)
	return n, err
}
