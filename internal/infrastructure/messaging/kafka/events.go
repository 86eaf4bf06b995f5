package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

const (
	EventTypeAlertPlanned = "alert.planned"
	EventTypeEmailQueued  = "notification.email.queued"

	schemaVersion = "v1"
	eventSource   = "lexalert"
)

// EventEnvelope wraps every event payload on the bus.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AlertPlannedPayload is published once per plan produced by a dispatch run.
type AlertPlannedPayload struct {
	DeadlineID     string            `json:"deadline_id"`
	UserID         string            `json:"user_id"`
	ProcessID      *string           `json:"process_id,omitempty"`
	Rule           deadline.Rule     `json:"rule"`
	Severity       deadline.Severity `json:"severity"`
	DaysRemaining  int               `json:"days_remaining"`
	DedupeKeyInApp string            `json:"dedupe_key_in_app"`
	DedupeKeyEmail string            `json:"dedupe_key_email"`
	InAppCreated   bool              `json:"in_app_created"`
	PlannedAt      time.Time         `json:"planned_at"`
}

// AlertPlannedFrom builds the payload for plan p.
func AlertPlannedFrom(p deadline.AlertPlan, inAppCreated bool, at time.Time) AlertPlannedPayload {
	return AlertPlannedPayload{
		DeadlineID:     p.DeadlineID,
		UserID:         p.UserID,
		ProcessID:      p.ProcessID,
		Rule:           p.Rule,
		Severity:       p.Severity,
		DaysRemaining:  p.DaysRemaining,
		DedupeKeyInApp: p.DedupeKeyInApp,
		DedupeKeyEmail: p.DedupeKeyEmail,
		InAppCreated:   inAppCreated,
		PlannedAt:      at.UTC(),
	}
}

// EmailPayload is a queued email awaiting SMTP delivery by the worker.
type EmailPayload struct {
	Email    notification.Email `json:"email"`
	QueuedAt time.Time          `json:"queued_at"`
}

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.InvalidParam("event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

func (e *EventEnvelope) ToMessage(topic string) (*common.ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &common.ProducerMessage{
		Topic: topic,
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"event_id":       e.EventID,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func EnvelopeFromMessage(msg *common.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.InvalidParam("empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}
