package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink writes audit events to the structured log. Suitable for
// deployments that ship logs to a collector instead of keeping an
// audit table.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a ZapSink writing under the "audit" logger name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Log(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("tenant_id", event.TenantID),
		zap.String("user_id", event.UserID),
		zap.String("action", event.Action),
		zap.Time("created_at", event.CreatedAt),
	}
	if event.Resource != "" {
		fields = append(fields, zap.String("resource", event.Resource))
	}
	if event.Decision != "" {
		fields = append(fields, zap.String("decision", event.Decision))
	}
	if len(event.Detail) > 0 {
		fields = append(fields, zap.Any("detail", event.Detail))
	}
	s.logger.Info("audit event", fields...)
}

var _ Sink = (*ZapSink)(nil)
