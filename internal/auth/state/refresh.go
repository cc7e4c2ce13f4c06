package state

import (
	"context"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/platform/tracer"
)

// Refresh re-reads the credential store's session and validates it. A read
// error counts as no session.
func (c *Container) Refresh(ctx context.Context) models.Snapshot {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRefresh)
	defer span.End(nil)

	c.setLoading(true)
	session, err := c.credentials.CurrentSession(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "reading current session failed", "error", err)
		session = nil
	}
	return c.Validate(ctx, session)
}

// Hydrate runs the first Refresh after boot. Once the container is hydrated
// it only returns the snapshot.
func (c *Container) Hydrate(ctx context.Context) models.Snapshot {
	if snap := c.Snapshot(); snap.IsHydrated {
		return snap
	}
	snap := c.Refresh(ctx)
	c.logger.InfoContext(ctx, "auth state hydrated", "authenticated", snap.IsAuthenticated())
	return snap
}
