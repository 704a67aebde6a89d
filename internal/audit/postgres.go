package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresSink persists audit events to the audit_events table and
// serves tenant-scoped history queries. Writes are best-effort: an
// insert failure is logged and dropped.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSink creates a PostgresSink on an existing pool.
func NewPostgresSink(pool *pgxpool.Pool, logger *zap.Logger) *PostgresSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSink{pool: pool, logger: logger.Named("audit")}
}

func (s *PostgresSink) Log(ctx context.Context, event Event) {
	const query = `
		INSERT INTO audit_events (id, tenant_id, user_id, action, resource, decision, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	detail, err := json.Marshal(event.Detail)
	if err != nil {
		s.logger.Warn("failed to encode audit detail",
			zap.String("event_id", event.ID),
			zap.Error(err))
		detail = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, query,
		event.ID, event.TenantID, event.UserID, event.Action,
		event.Resource, event.Decision, detail, event.CreatedAt)
	if err != nil {
		s.logger.Warn("failed to persist audit event",
			zap.String("event_id", event.ID),
			zap.String("action", event.Action),
			zap.Error(err))
	}
}

// FindByTenant returns the tenant's most recent events, newest first,
// optionally narrowed by action and user.
func (s *PostgresSink) FindByTenant(ctx context.Context, tenantID string, q HistoryQuery) ([]Event, error) {
	const query = `
		SELECT id, tenant_id, user_id, action, resource, decision, detail, created_at
		FROM audit_events
		WHERE tenant_id = $1
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR user_id = $3)
		ORDER BY created_at DESC
		LIMIT $4`

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, tenantID, q.Action, q.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event  Event
			detail []byte
		)
		if err := rows.Scan(&event.ID, &event.TenantID, &event.UserID, &event.Action,
			&event.Resource, &event.Decision, &detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("decoding audit detail: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

var _ Sink = (*PostgresSink)(nil)
