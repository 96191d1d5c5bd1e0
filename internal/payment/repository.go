package payment

import (
	"context"
	"database/sql"
	"errors"
)

// Repository is the append-only audit log of received gateway callbacks.
type Repository interface {
	SaveNotification(
		ctx context.Context,
		n *Notification,
		signatureValid bool,
	) (notificationID int64, isDuplicate bool, err error)

	MarkNotificationProcessed(ctx context.Context, notificationID int64, outcome string) error
	MarkNotificationFailed(ctx context.Context, notificationID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveNotification(
	ctx context.Context,
	n *Notification,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		channel,
		event_id,
		external_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	payload := n.RawParams
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		string(n.Provider),
		string(n.Channel),
		n.AuditEventID(signatureValid),
		n.OrderRef,
		signatureValid,
		[]byte(payload),
	).Scan(&id)

	if err != nil {
		// Same event already recorded
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkNotificationProcessed(
	ctx context.Context,
	notificationID int64,
	outcome string,
) error {

	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), outcome = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, notificationID, outcome)
	return err
}

func (r *repository) MarkNotificationFailed(
	ctx context.Context,
	notificationID int64,
	reason string,
) error {

	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, notificationID, reason)
	return err
}
