package deadline

import (
	"context"
	"time"
)

// ListFilter narrows a per-user listing.
type ListFilter struct {
	Status      []Status
	AlertStatus []AlertStatus
	ProcessID   string
	DueFrom     *time.Time
	DueTo       *time.Time
	Limit       int
	Offset      int
}

// Repository is the persistence port for deadlines.
type Repository interface {
	Create(ctx context.Context, d *Deadline) error
	GetByID(ctx context.Context, id string) (*Deadline, error)

	// Update writes the user-owned fields (title, description, process id,
	// deadline date) and the alert_status derived from them. It never touches
	// status or acknowledged_at, and a completed row keeps alert_status done.
	Update(ctx context.Context, d *Deadline) error

	// UpdateStatus records a Complete or Reopen transition. Moving a row out
	// of completed clears acknowledged_at.
	UpdateStatus(ctx context.Context, id string, status Status, alertStatus AlertStatus) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Deadline, int64, error)

	// ListActive pages, in id order, through deadlines the dispatcher must
	// evaluate: not completed, or completed while alert_status is not yet done.
	ListActive(ctx context.Context, afterID string, limit int) ([]*Deadline, error)

	// UpdateAlertStatus writes the derived alert_status column and nothing else.
	UpdateAlertStatus(ctx context.Context, id string, status AlertStatus) error

	// Acknowledge stamps acknowledged_at.
	Acknowledge(ctx context.Context, id string, at time.Time) error
}
