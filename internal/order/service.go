package order

import (
	"context"
	"errors"
	"fmt"

	"blankcanvas-be/internal/logger"
	"blankcanvas-be/internal/metrics"

	"go.uber.org/zap"
)

// Service is the reconciliation engine shared by every gateway channel.
type Service interface {
	// Reconcile applies at most one UNPAID -> PROCESSING|CANCELLED transition.
	// A non-nil error always means the store failed and nothing was written.
	Reconcile(ctx context.Context, orderID uint, isSuccess bool, transactionID string) (Outcome, error)
}

type service struct {
	repo  Repository
	cache ResolvedCache
}

func NewService(repo Repository, cache ResolvedCache) Service {
	if cache == nil {
		cache = NopResolvedCache{}
	}
	return &service{
		repo:  repo,
		cache: cache,
	}
}

func (s *service) Reconcile(ctx context.Context, orderID uint, isSuccess bool, transactionID string) (Outcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.Uint("order_id", orderID),
		zap.Bool("success", isSuccess),
		zap.String("transaction_id", transactionID),
	)

	resolved, err := s.cache.IsResolved(ctx, orderID)
	if err != nil {
		log.Warn("resolved cache lookup failed, falling back to store", zap.Error(err))
	} else if resolved {
		log.Info("order already resolved (cached)")
		metrics.ObserveReconcile(OutcomeAlreadyResolved.String())
		return OutcomeAlreadyResolved, nil
	}

	outcome, err := s.apply(ctx, orderID, isSuccess, transactionID)
	if err != nil {
		log.Error("reconcile failed", zap.Error(err))
		metrics.ObserveReconcile("store_fault")
		return OutcomeUnknown, fmt.Errorf("reconcile order %d: %w", orderID, err)
	}

	metrics.ObserveReconcile(outcome.String())

	switch outcome {
	case OutcomeOrderNotFound:
		log.Warn("reconcile: order not found")
		return outcome, nil
	case OutcomeAlreadyResolved:
		log.Info("reconcile: order already resolved")
	default:
		log.Info("reconcile: transition applied", zap.Stringer("outcome", outcome))
	}

	if err := s.cache.MarkResolved(ctx, orderID); err != nil {
		log.Warn("failed to mark order resolved in cache", zap.Error(err))
	}
	return outcome, nil
}

// apply runs the read-check-write as one transaction. The order row stays
// locked from the status read until commit, so two concurrent calls for the
// same order serialize and only the first sees UNPAID.
func (s *service) apply(ctx context.Context, orderID uint, isSuccess bool, transactionID string) (Outcome, error) {
	var outcome Outcome

	err := s.repo.WithinTx(ctx, func(tx TxRepository) error {
		o, err := tx.FindOrderForUpdate(ctx, orderID)
		if errors.Is(err, ErrOrderNotFound) {
			outcome = OutcomeOrderNotFound
			return nil
		}
		if err != nil {
			return err
		}

		if o.Status != StatusUnpaid {
			outcome = OutcomeAlreadyResolved
			return nil
		}

		next := transitionFor(isSuccess)

		err = tx.UpdateOrderStatus(ctx, orderID, StatusUnpaid, next.order)
		if errors.Is(err, ErrStatusConflict) {
			outcome = OutcomeAlreadyResolved
			return nil
		}
		if err != nil {
			return err
		}

		// Returning the error rolls back the order update above.
		if err := tx.UpdatePaymentStatus(ctx, orderID, next.payment, transactionID); err != nil {
			return err
		}

		outcome = next.outcome
		return nil
	})
	if err != nil {
		return OutcomeUnknown, err
	}
	return outcome, nil
}
