package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent("acme", "u1", ActionRagSearch)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "acme", event.TenantID)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, ActionRagSearch, event.Action)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestZapSinkLogsFields(t *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	event := NewEvent("acme", "u1", ActionPolicyDecision)
	event.Resource = "model:gpt-4"
	event.Decision = DecisionDeny
	sink.Log(context.Background(), event)

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit event", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "acme", fields["tenant_id"])
	assert.Equal(t, ActionPolicyDecision, fields["action"])
	assert.Equal(t, DecisionDeny, fields["decision"])
	assert.Equal(t, "model:gpt-4", fields["resource"])
}

func TestZapSinkOmitsEmptyFields(t *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Log(context.Background(), NewEvent("acme", "u1", ActionIngest))

	fields := observed.All()[0].ContextMap()
	_, hasDecision := fields["decision"]
	assert.False(t, hasDecision)
}

func TestNopSink(t *testing.T) {
	var sink Sink = Nop{}
	sink.Log(context.Background(), NewEvent("acme", "u1", ActionIngest))
}
