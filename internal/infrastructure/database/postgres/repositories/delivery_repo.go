package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Email delivery ledger
// ─────────────────────────────────────────────────────────────────────────────

type postgresDeliveryLedger struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewPostgresDeliveryLedger(conn *postgres.Connection, log logging.Logger) notification.DeliveryLedger {
	return &postgresDeliveryLedger{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresDeliveryLedger) Record(ctx context.Context, d *notification.EmailDelivery) (bool, error) {
	query := `
		INSERT INTO email_deliveries (dedupe_key, deadline_id, user_id, recipient, rule, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING
	`
	res, err := r.executor.ExecContext(ctx, query,
		d.DedupeKey, d.DeadlineID, d.UserID, d.Recipient, string(d.Rule), string(d.Status), d.CreatedAt.UTC(),
	)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record email delivery")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	return n == 1, nil
}

func (r *postgresDeliveryLedger) Exists(ctx context.Context, dedupeKey string) (bool, error) {
	var exists bool
	err := r.executor.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_deliveries WHERE dedupe_key = $1)`, dedupeKey,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check email delivery")
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Contact directory
// ─────────────────────────────────────────────────────────────────────────────

type postgresContactDirectory struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewPostgresContactDirectory(conn *postgres.Connection, log logging.Logger) notification.ContactDirectory {
	return &postgresContactDirectory{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresContactDirectory) Upsert(ctx context.Context, userID, email string) error {
	email = strings.TrimSpace(email)
	if userID == "" || email == "" {
		return errors.InvalidParam("user id and email are required")
	}
	query := `
		INSERT INTO user_contacts (user_id, email, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, updated_at = NOW()
		WHERE user_contacts.email <> EXCLUDED.email
	`
	if _, err := r.executor.ExecContext(ctx, query, userID, email); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert contact")
	}
	return nil
}

func (r *postgresContactDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.executor.QueryRowContext(ctx, `SELECT email FROM user_contacts WHERE user_id = $1`, userID).Scan(&email)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", errors.NotFound("no email on file").WithDetail(userID)
		}
		return "", errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to look up contact")
	}
	return email, nil
}
