package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	pkgerrors "github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

func TestAlertPlannedEnvelope_RoundTripsThroughMessage(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	d := deadline.Deadline{ID: "d-1", UserID: "u-1", Title: "Contestação", DeadlineDate: due, Status: deadline.StatusPending}
	plans := deadline.BuildAlertPlan(d, now)
	require.Len(t, plans, 1)

	env, err := NewEventEnvelope(EventTypeAlertPlanned, AlertPlannedFrom(plans[0], true, now))
	require.NoError(t, err)
	assert.Equal(t, "lexalert", env.Source)
	assert.Equal(t, "v1", env.SchemaVersion)

	pm, err := env.ToMessage(TopicAlertPlanned)
	require.NoError(t, err)

	got, err := EnvelopeFromMessage(&common.Message{Topic: pm.Topic, Value: pm.Value})
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)

	var payload AlertPlannedPayload
	require.NoError(t, got.DecodePayload(&payload))
	assert.Equal(t, deadline.RuleDueToday, payload.Rule)
	assert.Equal(t, deadline.SeverityDanger, payload.Severity)
	assert.Equal(t, "deadline:d-1:DUE_TODAY:2026-03-02", payload.DedupeKeyEmail)
	assert.True(t, payload.InAppCreated)
}

func TestEmailPayload_Decode(t *testing.T) {
	env, err := NewEventEnvelope(EventTypeEmailQueued, EmailPayload{
		Email: notification.Email{
			To: "a@b.c", Subject: "s", Body: "b", DedupeKey: "k",
			DeadlineID: "d-1", UserID: "u-1", Rule: deadline.RuleOverdue,
		},
	})
	require.NoError(t, err)

	var p EmailPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "a@b.c", p.Email.To)
	assert.Equal(t, deadline.RuleOverdue, p.Email.Rule)
}

func TestEnvelopeFromMessage_Errors(t *testing.T) {
	_, err := EnvelopeFromMessage(&common.Message{})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = EnvelopeFromMessage(&common.Message{Value: []byte("{not json")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))

	env := &EventEnvelope{}
	assert.True(t, pkgerrors.IsValidation(env.DecodePayload(&struct{}{})))
}
