package audit

import (
	"context"
	"log/slog"
)

// LogStore writes audit events to the structured logger with log_type=audit.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, string(event.Action),
		"log_type", "audit",
		"user_id", event.UserID,
		"outcome", event.Outcome,
		"reason", event.Reason,
		"role", event.Role,
	)
	return nil
}

// MultiStore appends to every store and reports the first error.
type MultiStore []Store

func (m MultiStore) Append(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
