package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

const notificationColumns = `id, user_id, deadline_id, process_id, rule, severity, title, message,
	dedupe_key, should_open_modal, persistent, read_at, created_at`

type postgresNotificationRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewPostgresNotificationRepo(conn *postgres.Connection, log logging.Logger) notification.Repository {
	return &postgresNotificationRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

// InsertIfAbsent relies on the unique dedupe_key constraint; a conflicting row
// yields no RETURNING row and therefore sql.ErrNoRows.
func (r *postgresNotificationRepo) InsertIfAbsent(ctx context.Context, n *notification.Notification) (bool, error) {
	query := `
		INSERT INTO notifications (
			id, user_id, deadline_id, process_id, rule, severity, title, message,
			dedupe_key, should_open_modal, persistent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING id
	`
	var id string
	err := r.executor.QueryRowContext(ctx, query,
		n.ID, n.UserID, n.DeadlineID, n.ProcessID, string(n.Rule), string(n.Severity), n.Title, n.Message,
		n.DedupeKey, n.ShouldOpenModal, n.Persistent, n.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			r.log.Debug("Notification already exists", logging.String("dedupe_key", n.DedupeKey))
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert notification")
	}
	return true, nil
}

func (r *postgresNotificationRepo) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeNotificationNotFound, "notification not found").WithDetail(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get notification")
	}
	return n, nil
}

func (r *postgresNotificationRepo) ListByUser(ctx context.Context, userID string, filter notification.ListFilter) ([]*notification.Notification, int64, error) {
	where := `user_id = $1`
	if filter.UnreadOnly {
		where += ` AND read_at IS NULL`
	}

	var total int64
	if err := r.executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count notifications")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + where +
		` ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`
	rows, err := r.executor.QueryContext(ctx, query, userID, limit, filter.Offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list notifications")
	}
	defer rows.Close()

	out, err := collectNotifications(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *postgresNotificationRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := r.executor.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, $2) WHERE id = $1`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to mark notification read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	if n == 0 {
		return errors.New(errors.ErrCodeNotificationNotFound, "notification not found").WithDetail(id)
	}
	return nil
}

func (r *postgresNotificationRepo) ListUnreadModal(ctx context.Context, userID string) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND should_open_modal AND read_at IS NULL
		ORDER BY created_at ASC`
	rows, err := r.executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list modal notifications")
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan notification")
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate notifications")
	}
	return out, nil
}

func scanNotification(row scanner) (*notification.Notification, error) {
	var (
		n         notification.Notification
		processID sql.NullString
		readAt    sql.NullTime
		rule      string
		severity  string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.DeadlineID, &processID, &rule, &severity, &n.Title, &n.Message,
		&n.DedupeKey, &n.ShouldOpenModal, &n.Persistent, &readAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if processID.Valid {
		pid := processID.String
		n.ProcessID = &pid
	}
	if readAt.Valid {
		t := readAt.Time.UTC()
		n.ReadAt = &t
	}
	n.Rule = deadline.Rule(rule)
	n.Severity = deadline.Severity(severity)
	return &n, nil
}
