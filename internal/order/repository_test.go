package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selectForUpdate = `SELECT id, status, created_at, updated_at FROM orders WHERE id = \$1 FOR UPDATE`
	updateOrder     = `UPDATE orders SET status = \$1, updated_at = NOW\(\) WHERE id = \$2 AND status = \$3`
	updatePayment   = `UPDATE payments SET status = \$1, transaction_id = \$2, updated_at = NOW\(\) WHERE order_id = \$3`
)

func orderRow(id uint, status OrderStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "status", "created_at", "updated_at"}).
		AddRow(id, string(status), now, now)
}

func TestRepository_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdate).
			WithArgs(uint(1001)).
			WillReturnRows(orderRow(1001, StatusUnpaid))
		mock.ExpectCommit()

		repo := NewRepository(db)
		err = repo.WithinTx(ctx, func(tx TxRepository) error {
			o, err := tx.FindOrderForUpdate(ctx, 1001)
			require.NoError(t, err)
			assert.Equal(t, StatusUnpaid, o.Status)
			return nil
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = NewRepository(db).WithinTx(ctx, func(tx TxRepository) error { return boom })

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnPanic", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = NewRepository(db).WithinTx(ctx, func(tx TxRepository) error { panic("unexpected") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		called := false
		err = NewRepository(db).WithinTx(ctx, func(tx TxRepository) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start transaction")
		assert.False(t, called)
	})

	t.Run("CommitFails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err = NewRepository(db).WithinTx(ctx, func(tx TxRepository) error { return nil })

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
	})
}

func TestTxRepository_FindOrderForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	tx := &txRepository{q: db}

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(selectForUpdate).
			WithArgs(uint(404)).
			WillReturnError(sql.ErrNoRows)

		o, err := tx.FindOrderForUpdate(ctx, 404)
		assert.Nil(t, o)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(selectForUpdate).
			WithArgs(uint(1)).
			WillReturnError(errors.New("db error"))

		o, err := tx.FindOrderForUpdate(ctx, 1)
		assert.Nil(t, o)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestTxRepository_UpdateOrderStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	tx := &txRepository{q: db}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(updateOrder).
			WithArgs(StatusProcessing, uint(1001), StatusUnpaid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tx.UpdateOrderStatus(ctx, 1001, StatusUnpaid, StatusProcessing))
	})

	t.Run("Conflict", func(t *testing.T) {
		mock.ExpectExec(updateOrder).
			WithArgs(StatusCancelled, uint(1001), StatusUnpaid).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := tx.UpdateOrderStatus(ctx, 1001, StatusUnpaid, StatusCancelled)
		assert.ErrorIs(t, err, ErrStatusConflict)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec(updateOrder).
			WillReturnError(errors.New("db error"))

		err := tx.UpdateOrderStatus(ctx, 1001, StatusUnpaid, StatusCancelled)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update order status")
	})
}

func TestTxRepository_UpdatePaymentStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	tx := &txRepository{q: db}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(updatePayment).
			WithArgs(PaymentSuccess, "M123", uint(1001)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tx.UpdatePaymentStatus(ctx, 1001, PaymentSuccess, "M123"))
	})

	t.Run("EmptyTransactionIDStoredAsNull", func(t *testing.T) {
		mock.ExpectExec(updatePayment).
			WithArgs(PaymentFailed, nil, uint(1001)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tx.UpdatePaymentStatus(ctx, 1001, PaymentFailed, ""))
	})

	t.Run("MissingPaymentRow", func(t *testing.T) {
		mock.ExpectExec(updatePayment).
			WithArgs(PaymentSuccess, "M123", uint(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := tx.UpdatePaymentStatus(ctx, 7, PaymentSuccess, "M123")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

// The full reconcile unit against SQL: lock, conditional order update and
// payment update share one transaction.
func TestService_Reconcile_SQL(t *testing.T) {
	ctx := context.Background()

	t.Run("AppliedInOneTransaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdate).WithArgs(uint(1001)).WillReturnRows(orderRow(1001, StatusUnpaid))
		mock.ExpectExec(updateOrder).
			WithArgs(StatusProcessing, uint(1001), StatusUnpaid).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updatePayment).
			WithArgs(PaymentSuccess, "14012345", uint(1001)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, err := NewService(NewRepository(db), nil).Reconcile(ctx, 1001, true, "14012345")

		assert.NoError(t, err)
		assert.Equal(t, OutcomeAppliedSuccess, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PaymentUpdateFailureRollsBackOrderUpdate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdate).WithArgs(uint(1001)).WillReturnRows(orderRow(1001, StatusUnpaid))
		mock.ExpectExec(updateOrder).
			WithArgs(StatusCancelled, uint(1001), StatusUnpaid).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updatePayment).
			WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		outcome, err := NewService(NewRepository(db), nil).Reconcile(ctx, 1001, false, "")

		assert.Error(t, err)
		assert.Equal(t, OutcomeUnknown, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyResolvedWritesNothing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(selectForUpdate).WithArgs(uint(1001)).WillReturnRows(orderRow(1001, StatusProcessing))
		mock.ExpectCommit()

		outcome, err := NewService(NewRepository(db), nil).Reconcile(ctx, 1001, true, "M123")

		assert.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyResolved, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
