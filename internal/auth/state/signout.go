package state

import (
	"context"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/platform/tracer"
)

// SignOut clears local state first, then invalidates the session remotely in
// the background. The caller never waits on the network and never sees its
// errors. Signing out twice leaves the same state.
func (c *Container) SignOut(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanSignOut)
	defer span.End(nil)

	c.mu.Lock()
	c.generation++
	var userID string
	if c.state.user != nil {
		userID = c.state.user.ID.String()
	}
	c.clearLocked()
	c.mu.Unlock()

	c.metrics.IncrementSignOuts()
	c.logAudit(ctx, audit.Event{UserID: userID, Action: audit.ActionSignedOut})

	c.invalidateBestEffort(ctx)
}

// clearFromEvent applies a sign-out that already happened in the credential
// store. ended is the session the store reported as finished; when it is
// known and differs from the session held here, the event belongs to an older
// session and is ignored.
func (c *Container) clearFromEvent(ctx context.Context, ended *models.Session) {
	c.mu.Lock()
	current := c.state.session
	switch {
	case current == nil && c.state.isHydrated:
		c.mu.Unlock()
		return
	case current != nil && ended != nil && ended.AccessToken != current.AccessToken:
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "ignoring sign-out of a previous session")
		return
	}
	c.generation++
	var userID string
	if c.state.user != nil {
		userID = c.state.user.ID.String()
	}
	c.clearLocked()
	c.mu.Unlock()

	c.logAudit(ctx, audit.Event{UserID: userID, Action: audit.ActionRemoteSignOut})
}

// invalidateBestEffort ends the session at the credential service on a
// detached goroutine. It is bounded by the invalidate timeout, ignores the
// caller's cancellation, and is never retried. Failures are logged, counted
// and audited.
func (c *Container) invalidateBestEffort(ctx context.Context) {
	done := make(chan struct{})
	c.pendingMu.Lock()
	c.pending[done] = struct{}{}
	c.pendingMu.Unlock()

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.invalidateTimeout)
	go func() {
		defer func() {
			cancel()
			c.pendingMu.Lock()
			delete(c.pending, done)
			c.pendingMu.Unlock()
			close(done)
		}()

		if err := c.credentials.InvalidateSession(detached); err != nil {
			c.metrics.IncrementInvalidationFailures()
			c.logger.WarnContext(detached, "remote session invalidation failed",
				"error", err,
				"log_type", "standard",
			)
			c.logAudit(detached, audit.Event{
				Action:  audit.ActionInvalidationFailed,
				Outcome: "failed",
				Reason:  err.Error(),
			})
		}
	}()
}

// waitPending blocks until the remote invalidations running at call time have
// finished, or ctx is done.
func (c *Container) waitPending(ctx context.Context) error {
	c.pendingMu.Lock()
	waiting := make([]chan struct{}, 0, len(c.pending))
	for done := range c.pending {
		waiting = append(waiting, done)
	}
	c.pendingMu.Unlock()

	for _, done := range waiting {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Wait blocks until every background invalidation started so far has
// finished. Use it on shutdown and in tests.
func (c *Container) Wait() {
	_ = c.waitPending(context.Background())
}
