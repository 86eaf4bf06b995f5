package client

import "time"

// Deadline is a deadline as returned by the API.
type Deadline struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ProcessID      *string    `json:"process_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DeadlineDate   time.Time  `json:"deadline_date"`
	Status         string     `json:"status"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AlertStatus    string     `json:"alert_status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AlertPlan is one alert the engine would fire.
type AlertPlan struct {
	DeadlineID      string  `json:"deadline_id"`
	UserID          string  `json:"user_id"`
	ProcessID       *string `json:"process_id,omitempty"`
	Rule            string  `json:"rule"`
	Severity        string  `json:"severity"`
	DaysRemaining   int     `json:"days_remaining"`
	Title           string  `json:"title"`
	Message         string  `json:"message"`
	DedupeKeyInApp  string  `json:"dedupe_key_in_app"`
	DedupeKeyEmail  string  `json:"dedupe_key_email"`
	ShouldOpenModal bool    `json:"should_open_modal"`
	Persistent      bool    `json:"persistent"`
}

// AlertPreview is the engine output for a deadline at an instant.
type AlertPreview struct {
	DeadlineID           string      `json:"deadline_id"`
	At                   time.Time   `json:"at"`
	DaysRemaining        int         `json:"days_remaining"`
	AlertStatus          string      `json:"alert_status"`
	NeedsAcknowledgement bool        `json:"needs_acknowledgement"`
	Plans                []AlertPlan `json:"plans"`
}

// Notification is an in-app alert row.
type Notification struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	DeadlineID      string     `json:"deadline_id"`
	ProcessID       *string    `json:"process_id,omitempty"`
	Rule            string     `json:"rule"`
	Severity        string     `json:"severity"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	DedupeKey       string     `json:"dedupe_key"`
	ShouldOpenModal bool       `json:"should_open_modal"`
	Persistent      bool       `json:"persistent"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RunReport summarizes a dispatch run.
type RunReport struct {
	Scanned        int       `json:"scanned"`
	StatusUpdated  int       `json:"status_updated"`
	PlansBuilt     int       `json:"plans_built"`
	InAppCreated   int       `json:"in_app_created"`
	InAppDuplicate int       `json:"in_app_duplicate"`
	EmailsSent     int       `json:"emails_sent"`
	EmailsSkipped  int       `json:"emails_skipped"`
	EmailsFailed   int       `json:"emails_failed"`
	Errors         int       `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Page carries one page of results with its position.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int64
}

// HasMore reports whether another page follows.
func (p *Page[T]) HasMore() bool {
	return int64(p.Page*p.PageSize) < p.Total
}
