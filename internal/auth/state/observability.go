package state

import (
	"context"
	"errors"
	"time"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/sentinel"
	"fleetdesk/pkg/requestcontext"
)

// Observability helpers for logging, auditing, and metrics.

// logAudit writes the event to the audit log and hands it to the publisher.
func (c *Container) logAudit(ctx context.Context, event audit.Event) {
	attributes := []any{"event", string(event.Action), "log_type", "audit"}
	if event.UserID != "" {
		attributes = append(attributes, "user_id", event.UserID)
	}
	if event.Role != "" {
		attributes = append(attributes, "role", event.Role)
	}
	if event.Reason != "" {
		attributes = append(attributes, "reason", event.Reason)
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	c.logger.InfoContext(ctx, string(event.Action), attributes...)

	if c.auditPublisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	if err := c.auditPublisher.Emit(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
	}
}

// authFailure logs a validation that ended signed out. Outages are logged as
// errors; rejected sessions and bad profiles as warnings.
func (c *Container) authFailure(ctx context.Context, reason Reason, cause error, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", "session_rejected", "reason", string(reason), "log_type", "standard")
	if cause != nil {
		args = append(args, "error", cause)
	}
	if isOutage(cause) {
		c.logger.ErrorContext(ctx, "session rejected", args...)
		return
	}
	c.logger.WarnContext(ctx, "session rejected", args...)
}

func isOutage(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (c *Container) incrementValidation(outcome, reason string) {
	c.metrics.IncrementValidation(outcome, reason)
}

func (c *Container) observeValidationDuration(start time.Time) {
	c.metrics.ObserveValidationDuration(float64(c.now().Sub(start).Milliseconds()))
}

// setAuthenticated must run with c.mu held so the gauge follows the order
// of state writes.
func (c *Container) setAuthenticated(authenticated bool) {
	c.metrics.SetAuthenticated(authenticated)
}
