package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Repository is the order/payment store. Every reconcile read and write
// goes through one WithinTx call.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the view of the store inside one transaction.
type TxRepository interface {
	// FindOrderForUpdate row-locks the order until the transaction ends.
	FindOrderForUpdate(ctx context.Context, orderID uint) (*Order, error)
	// UpdateOrderStatus moves the order from -> to, ErrStatusConflict if it was not in from.
	UpdateOrderStatus(ctx context.Context, orderID uint, from, to OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, orderID uint, status PaymentStatus, transactionID string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type txRepository struct {
	q Querier
}

// WithinTx commits when fn returns nil and rolls back otherwise. The deferred
// rollback also runs on panic, so the connection always goes back to the pool.
func (r *repository) WithinTx(ctx context.Context, fn func(tx TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *txRepository) FindOrderForUpdate(ctx context.Context, orderID uint) (*Order, error) {
	return scanOrder(t.q.QueryRowContext(ctx, `
		SELECT id, status, created_at, updated_at
		FROM orders WHERE id = $1
		FOR UPDATE
	`, orderID))
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID uint, from, to OrderStatus) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, orderID, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (t *txRepository) UpdatePaymentStatus(ctx context.Context, orderID uint, status PaymentStatus, transactionID string) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE payments SET status = $1, transaction_id = $2, updated_at = NOW()
		WHERE order_id = $3
	`, status, nullString(transactionID), orderID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrPaymentNotFound)
	}
	return nil
}

func scanOrder(row *sql.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
