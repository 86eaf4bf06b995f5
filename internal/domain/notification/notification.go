// Package notification defines in-app notification rows, the email delivery
// ledger and the idempotency contracts the alert dispatcher relies on.
package notification

import (
	"context"
	"time"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// Channel is a delivery channel for an alert.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

// Notification is an in-app alert row. DedupeKey is unique across the store.
type Notification struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	DeadlineID      string            `json:"deadline_id"`
	ProcessID       *string           `json:"process_id,omitempty"`
	Rule            deadline.Rule     `json:"rule"`
	Severity        deadline.Severity `json:"severity"`
	Title           string            `json:"title"`
	Message         string            `json:"message"`
	DedupeKey       string            `json:"dedupe_key"`
	ShouldOpenModal bool              `json:"should_open_modal"`
	Persistent      bool              `json:"persistent"`
	ReadAt          *time.Time        `json:"read_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// FromPlan maps an alert plan to an in-app row keyed by the in-app dedupe key.
func FromPlan(p deadline.AlertPlan, now time.Time) *Notification {
	return &Notification{
		ID:              string(common.NewID()),
		UserID:          p.UserID,
		DeadlineID:      p.DeadlineID,
		ProcessID:       p.ProcessID,
		Rule:            p.Rule,
		Severity:        p.Severity,
		Title:           p.Title,
		Message:         p.Message,
		DedupeKey:       p.DedupeKeyInApp,
		ShouldOpenModal: p.ShouldOpenModal,
		Persistent:      p.Persistent,
		CreatedAt:       now.UTC(),
	}
}

// IsRead reports whether the user has opened the notification.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// ListFilter narrows a per-user notification listing.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Repository persists in-app notifications.
type Repository interface {
	// InsertIfAbsent inserts n unless a row with the same dedupe key exists.
	// It reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, n *Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*Notification, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Notification, int64, error)
	MarkRead(ctx context.Context, id string, at time.Time) error

	// ListUnreadModal returns the unread rows that should block the UI.
	ListUnreadModal(ctx context.Context, userID string) ([]*Notification, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Email delivery
// ─────────────────────────────────────────────────────────────────────────────

// DeliveryStatus tracks an email send in the durable ledger.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryQueued DeliveryStatus = "queued"
)

// EmailDelivery is a ledger row for one email dedupe key.
type EmailDelivery struct {
	DedupeKey  string         `json:"dedupe_key"`
	DeadlineID string         `json:"deadline_id"`
	UserID     string         `json:"user_id"`
	Recipient  string         `json:"recipient"`
	Rule       deadline.Rule  `json:"rule"`
	Status     DeliveryStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DeliveryLedger is the durable record of emails already handed off.
type DeliveryLedger interface {
	// Record inserts d unless its dedupe key exists and reports whether it did.
	Record(ctx context.Context, d *EmailDelivery) (bool, error)
	Exists(ctx context.Context, dedupeKey string) (bool, error)
}

// DeliveryLog guards email sends by dedupe key. A send is attempted only after
// Claim returns true. Confirm makes the claim durable; Release gives it up so
// a later run may retry.
type DeliveryLog interface {
	Claim(ctx context.Context, dedupeKey string, ttl time.Duration) (bool, error)
	Confirm(ctx context.Context, d *EmailDelivery) error
	Release(ctx context.Context, dedupeKey string) error
}

// Email is a rendered alert email and the deadline it is about.
type Email struct {
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	DedupeKey  string            `json:"dedupe_key"`
	Severity   deadline.Severity `json:"severity"`
	DeadlineID string            `json:"deadline_id"`
	UserID     string            `json:"user_id"`
	Rule       deadline.Rule     `json:"rule"`
}

// Delivery returns the ledger row recording e as handed off with status.
func (e Email) Delivery(status DeliveryStatus, at time.Time) *EmailDelivery {
	return &EmailDelivery{
		DedupeKey:  e.DedupeKey,
		DeadlineID: e.DeadlineID,
		UserID:     e.UserID,
		Recipient:  e.To,
		Rule:       e.Rule,
		Status:     status,
		CreatedAt:  at.UTC(),
	}
}

// EmailFromPlan renders the alert email for recipient.
func EmailFromPlan(p deadline.AlertPlan, recipient string) Email {
	return Email{
		To:         recipient,
		Subject:    p.Title,
		Body:       p.Message,
		DedupeKey:  p.DedupeKeyEmail,
		Severity:   p.Severity,
		DeadlineID: p.DeadlineID,
		UserID:     p.UserID,
		Rule:       p.Rule,
	}
}

// ContactDirectory resolves where a user's alert emails go.
type ContactDirectory interface {
	Upsert(ctx context.Context, userID, email string) error
	// EmailFor returns a NotFound error when no address is on file.
	EmailFor(ctx context.Context, userID string) (string, error)
}
