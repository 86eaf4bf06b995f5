// Package deadline defines the legal deadline entity and the alert engine that
// decides, for a deadline and an instant, which alert (if any) fires today.
package deadline

import (
	"strings"
	"time"

	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Status enumerations
// ─────────────────────────────────────────────────────────────────────────────

// Status is the user-owned workflow status. The alert engine reads it but
// never writes it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
)

// IsValid reports whether s is a known workflow status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// AlertStatus is the engine-derived display label used for dashboard badges.
// It is recomputed on every dispatch run and is never authoritative for the
// business status.
type AlertStatus string

const (
	AlertStatusDone    AlertStatus = "done"
	AlertStatusOverdue AlertStatus = "overdue"
	AlertStatusUrgent  AlertStatus = "urgent"
	AlertStatusActive  AlertStatus = "active"
)

// IsValid reports whether s is a known alert status.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusDone, AlertStatusOverdue, AlertStatusUrgent, AlertStatusActive:
		return true
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Deadline entity
// ─────────────────────────────────────────────────────────────────────────────

// Deadline is a legal or process obligation with a due instant, tracked per
// user and optionally linked to a case record.
type Deadline struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	ProcessID   *string `json:"process_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`

	// DeadlineDate is the instant the obligation is due.
	DeadlineDate time.Time `json:"deadline_date"`

	Status         Status      `json:"status"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AlertStatus    AlertStatus `json:"alert_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const maxTitleLength = 300

// NewDeadline creates a pending deadline after validating its input.
func NewDeadline(userID, title, description string, due time.Time, processID *string) (*Deadline, error) {
	now := time.Now().UTC()
	d := &Deadline{
		ID:           string(common.NewID()),
		UserID:       strings.TrimSpace(userID),
		ProcessID:    normalizeProcessID(processID),
		Title:        strings.TrimSpace(title),
		Description:  description,
		DeadlineDate: due.UTC(),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.AlertStatus = ComputeAlertStatus(*d, now)
	return d, nil
}

// Validate checks the user-supplied fields.
func (d *Deadline) Validate() error {
	if d.UserID == "" {
		return errors.New(errors.ErrCodeDeadlineInvalid, "user_id is required")
	}
	if d.Title == "" {
		return errors.New(errors.ErrCodeDeadlineInvalid, "title is required")
	}
	if len(d.Title) > maxTitleLength {
		return errors.New(errors.ErrCodeDeadlineInvalid, "title is too long")
	}
	if d.DeadlineDate.IsZero() {
		return errors.New(errors.ErrCodeDeadlineInvalid, "deadline_date is required")
	}
	if !d.Status.IsValid() {
		return errors.Newf(errors.ErrCodeDeadlineInvalid, "unknown status %q", d.Status)
	}
	return nil
}

// IsCompleted reports whether the user closed the deadline.
func (d *Deadline) IsCompleted() bool {
	return d.Status == StatusCompleted
}

// Complete marks the deadline done.
func (d *Deadline) Complete(now time.Time) error {
	if d.IsCompleted() {
		return errors.New(errors.ErrCodeDeadlineCompleted, "deadline already completed")
	}
	d.Status = StatusCompleted
	d.AlertStatus = AlertStatusDone
	d.UpdatedAt = now.UTC()
	return nil
}

// Reopen moves a completed deadline back to pending and clears any previous
// acknowledgement.
func (d *Deadline) Reopen(now time.Time) error {
	if !d.IsCompleted() {
		return errors.InvalidState("only completed deadlines can be reopened")
	}
	d.Status = StatusPending
	d.AcknowledgedAt = nil
	d.AlertStatus = ComputeAlertStatus(*d, now)
	d.UpdatedAt = now.UTC()
	return nil
}

// Acknowledge records that the user has seen a critical alert. Persistent
// overdue emails stop once a deadline is acknowledged.
func (d *Deadline) Acknowledge(now time.Time) error {
	if d.IsCompleted() {
		return errors.New(errors.ErrCodeDeadlineCompleted, "cannot acknowledge a completed deadline")
	}
	at := now.UTC()
	d.AcknowledgedAt = &at
	d.UpdatedAt = at
	return nil
}

// IsAcknowledged reports whether AcknowledgedAt is set.
func (d *Deadline) IsAcknowledged() bool {
	return d.AcknowledgedAt != nil
}

// NeedsAcknowledgement is true while an overdue deadline keeps alerting.
func (d *Deadline) NeedsAcknowledgement(now time.Time) bool {
	return !d.IsCompleted() && !d.IsAcknowledged() && DaysUntil(d.DeadlineDate, now) < 0
}

func normalizeProcessID(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
