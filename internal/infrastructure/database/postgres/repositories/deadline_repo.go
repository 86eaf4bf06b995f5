package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

const deadlineColumns = `id, user_id, process_id, title, description, deadline_date, status,
	acknowledged_at, alert_status, created_at, updated_at`

type postgresDeadlineRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewPostgresDeadlineRepo(conn *postgres.Connection, log logging.Logger) deadline.Repository {
	return &postgresDeadlineRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresDeadlineRepo) Create(ctx context.Context, d *deadline.Deadline) error {
	query := `
		INSERT INTO deadlines (
			id, user_id, process_id, title, description, deadline_date, status,
			acknowledged_at, alert_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		d.ID, d.UserID, d.ProcessID, d.Title, d.Description, d.DeadlineDate.UTC(), string(d.Status),
		d.AcknowledgedAt, string(d.AlertStatus),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.Wrap(err, errors.ErrCodeConflict, "deadline already exists")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create deadline")
	}
	return nil
}

func (r *postgresDeadlineRepo) GetByID(ctx context.Context, id string) (*deadline.Deadline, error) {
	query := `SELECT ` + deadlineColumns + ` FROM deadlines WHERE id = $1`
	d, err := scanDeadline(r.executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeDeadlineNotFound, "deadline not found").WithDetail(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get deadline")
	}
	return d, nil
}

// updateDeadlineQuery leaves status and acknowledged_at to their own writers.
const updateDeadlineQuery = `
		UPDATE deadlines SET
			process_id = $2, title = $3, description = $4, deadline_date = $5,
			alert_status = CASE WHEN status = 'completed' THEN 'done' ELSE $6 END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

func (r *postgresDeadlineRepo) Update(ctx context.Context, d *deadline.Deadline) error {
	err := r.executor.QueryRowContext(ctx, updateDeadlineQuery,
		d.ID, d.ProcessID, d.Title, d.Description, d.DeadlineDate.UTC(), string(d.AlertStatus),
	).Scan(&d.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.New(errors.ErrCodeDeadlineNotFound, "deadline not found").WithDetail(d.ID)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update deadline")
	}
	return nil
}

func (r *postgresDeadlineRepo) UpdateStatus(ctx context.Context, id string, status deadline.Status, alertStatus deadline.AlertStatus) error {
	query := `
		UPDATE deadlines SET
			status = $2, alert_status = $3,
			acknowledged_at = CASE WHEN $2 = 'completed' THEN acknowledged_at ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.executor.ExecContext(ctx, query, id, string(status), string(alertStatus))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update deadline status")
	}
	return expectOneRow(res, id)
}

func (r *postgresDeadlineRepo) Delete(ctx context.Context, id string) error {
	res, err := r.executor.ExecContext(ctx, `DELETE FROM deadlines WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete deadline")
	}
	return expectOneRow(res, id)
}

func (r *postgresDeadlineRepo) ListByUser(ctx context.Context, userID string, filter deadline.ListFilter) ([]*deadline.Deadline, int64, error) {
	where, args := deadlineFilterClause(userID, filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM deadlines WHERE ` + where
	if err := r.executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count deadlines")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM deadlines WHERE %s ORDER BY deadline_date ASC, id ASC LIMIT $%d OFFSET $%d`,
		deadlineColumns, where, len(args)-1, len(args))

	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list deadlines")
	}
	defer rows.Close()

	out, err := collectDeadlines(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *postgresDeadlineRepo) ListActive(ctx context.Context, afterID string, limit int) ([]*deadline.Deadline, error) {
	query := `SELECT ` + deadlineColumns + ` FROM deadlines
		WHERE (status <> 'completed' OR alert_status <> 'done') AND id > $1
		ORDER BY id ASC
		LIMIT $2`
	rows, err := r.executor.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list active deadlines")
	}
	defer rows.Close()
	return collectDeadlines(rows)
}

func (r *postgresDeadlineRepo) UpdateAlertStatus(ctx context.Context, id string, status deadline.AlertStatus) error {
	res, err := r.executor.ExecContext(ctx, `UPDATE deadlines SET alert_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update alert status")
	}
	return expectOneRow(res, id)
}

func (r *postgresDeadlineRepo) Acknowledge(ctx context.Context, id string, at time.Time) error {
	res, err := r.executor.ExecContext(ctx,
		`UPDATE deadlines SET acknowledged_at = $2, updated_at = NOW() WHERE id = $1`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to acknowledge deadline")
	}
	return expectOneRow(res, id)
}

// deadlineFilterClause builds the WHERE body and its positional args.
func deadlineFilterClause(userID string, f deadline.ListFilter) (string, []interface{}) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Status) > 0 {
		vals := make([]string, len(f.Status))
		for i, s := range f.Status {
			vals[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(vals))
	}
	if len(f.AlertStatus) > 0 {
		vals := make([]string, len(f.AlertStatus))
		for i, s := range f.AlertStatus {
			vals[i] = string(s)
		}
		add("alert_status = ANY($%d)", pq.Array(vals))
	}
	if f.ProcessID != "" {
		add("process_id = $%d", f.ProcessID)
	}
	if f.DueFrom != nil {
		add("deadline_date >= $%d", f.DueFrom.UTC())
	}
	if f.DueTo != nil {
		add("deadline_date < $%d", f.DueTo.UTC())
	}
	return strings.Join(conds, " AND "), args
}

func collectDeadlines(rows *sql.Rows) ([]*deadline.Deadline, error) {
	var out []*deadline.Deadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan deadline")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate deadlines")
	}
	return out, nil
}

func scanDeadline(row scanner) (*deadline.Deadline, error) {
	var (
		d            deadline.Deadline
		processID    sql.NullString
		ackAt        sql.NullTime
		status       string
		alertStatus  string
		deadlineDate time.Time
	)
	err := row.Scan(
		&d.ID, &d.UserID, &processID, &d.Title, &d.Description, &deadlineDate, &status,
		&ackAt, &alertStatus, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if processID.Valid {
		pid := processID.String
		d.ProcessID = &pid
	}
	if ackAt.Valid {
		t := ackAt.Time.UTC()
		d.AcknowledgedAt = &t
	}
	d.DeadlineDate = deadlineDate.UTC()
	d.Status = deadline.Status(status)
	d.AlertStatus = deadline.AlertStatus(alertStatus)
	return &d, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	if n == 0 {
		return errors.New(errors.ErrCodeDeadlineNotFound, "deadline not found").WithDetail(id)
	}
	return nil
}
