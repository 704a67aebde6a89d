// Package audit records policy decisions and ingestion/retrieval
// actions. Recording is best-effort: a sink failure never fails the
// operation that produced the event.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the platform.
const (
	ActionPolicyDecision = "policy.decision"
	ActionRagSearch      = "rag.search"
	ActionIngest         = "document.ingest"
	ActionDeleteVersion  = "document.delete_version"
	ActionDeleteDocument = "document.delete"
)

// Decision outcomes for policy-gated events.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Event is a single audit record.
type Event struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Decision  string         `json:"decision,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(tenantID, userID, action string) Event {
	return Event{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// HistoryQuery narrows a tenant history read. Zero-value fields impose
// no restriction.
type HistoryQuery struct {
	UserID string
	Action string
	Limit  int
}

// Sink receives audit events. Log must not block the caller on sink
// failures and must not return an error; implementations report their
// own failures through logging or metrics.
type Sink interface {
	Log(ctx context.Context, event Event)
}

// Nop discards all events. Used in tests and when auditing is
// disabled.
type Nop struct{}

func (Nop) Log(context.Context, Event) {}

var _ Sink = Nop{}
