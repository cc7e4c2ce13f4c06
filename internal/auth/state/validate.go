package state

import (
	"context"
	"fmt"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/platform/tracer"
	"fleetdesk/internal/sentinel"
)

// Reason classifies why a validation ended signed out. Reasons are recorded
// in logs, metrics and audit only; callers just see the snapshot.
type Reason string

const (
	ReasonNoSession      Reason = "no_session"
	ReasonIdentity       Reason = "identity_unresolved"
	ReasonProfileFetch   Reason = "profile_unavailable"
	ReasonInvalidProfile Reason = "invalid_profile"

	// reasonSuperseded means the store has since moved to another user's
	// session. It never signs out; the store's own event follows.
	reasonSuperseded Reason = "superseded"
)

const (
	outcomeAuthenticated = "authenticated"
	outcomeSignedOut     = "signed_out"
	outcomeStale         = "stale"
	outcomeAbandoned     = "abandoned"
)

// Validate turns a candidate session into auth state. The session must
// resolve to an identity, and the identity to a profile with a recognised
// role; any failure signs out fully, remote invalidation included.
//
// Each call takes a new generation. When a newer operation started before
// this one finishes, the result is discarded whole (a failing stale
// validation does not sign out either) and the current snapshot is returned.
// The same happens when the store's identity belongs to another user than
// the session, and when ctx ends before the result is known: a caller that
// went away neither signs in nor signs out.
func (c *Container) Validate(ctx context.Context, session *models.Session) models.Snapshot {
	gen := c.nextGeneration()
	defer c.observeValidationDuration(c.now())

	ctx, span := c.tracer.Start(ctx, tracer.SpanValidate, tracer.Int64(tracer.AttrGeneration, int64(gen)))
	defer span.End(nil)

	identity, record, reason, err := c.resolve(ctx, session)
	switch {
	case ctx.Err() != nil:
		return c.abandon(ctx, gen, span)
	case reason == reasonSuperseded:
		c.logger.InfoContext(ctx, "session superseded by another user's session",
			"session_user_id", session.UserID.String(),
			"user_id", identity.ID.String(),
		)
		return c.discardStale(ctx, gen, span)
	case reason != "":
		return c.reject(ctx, gen, span, reason, err, session)
	}
	return c.commit(ctx, gen, span, session, identity, record)
}

func (c *Container) resolve(ctx context.Context, session *models.Session) (*models.Identity, *models.UserRecord, Reason, error) {
	if session == nil {
		return nil, nil, ReasonNoSession, nil
	}

	identity, err := c.resolveIdentity(ctx)
	if err != nil {
		return nil, nil, ReasonIdentity, err
	}
	if !session.UserID.IsNil() && session.UserID != identity.ID {
		return identity, nil, reasonSuperseded, nil
	}

	record, err := c.fetchProfile(ctx, identity)
	if err != nil {
		return nil, nil, ReasonProfileFetch, err
	}
	if !record.Valid() {
		return nil, nil, ReasonInvalidProfile, fmt.Errorf("profile %s has role %q: %w", record.ID, record.Role, sentinel.ErrInvalidInput)
	}
	return identity, record, "", nil
}

func (c *Container) resolveIdentity(ctx context.Context) (identity *models.Identity, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanResolveIdentity)
	defer func() { span.End(err) }()

	identity, err = c.credentials.CurrentIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	if identity == nil || identity.ID.IsNil() {
		return nil, fmt.Errorf("credential service returned no identity: %w", sentinel.ErrUnauthorized)
	}
	span.SetAttributes(tracer.String(tracer.AttrUserID, identity.ID.String()))
	return identity, nil
}

func (c *Container) fetchProfile(ctx context.Context, identity *models.Identity) (record *models.UserRecord, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanFetchProfile, tracer.String(tracer.AttrUserID, identity.ID.String()))
	defer func() { span.End(err) }()

	record, err = c.profiles.FindByID(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching profile %s: %w", identity.ID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("profile %s: %w", identity.ID, sentinel.ErrNotFound)
	}
	span.SetAttributes(tracer.String(tracer.AttrRole, record.Role))
	return record, nil
}

func (c *Container) commit(ctx context.Context, gen uint64, span tracer.Span, session *models.Session, identity *models.Identity, record *models.UserRecord) models.Snapshot {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return c.discardStale(ctx, gen, span)
	}
	sessionCopy, identityCopy, recordCopy := *session, *identity, *record
	c.state = authState{
		session:    &sessionCopy,
		user:       &identityCopy,
		record:     &recordCopy,
		isLoading:  false,
		isHydrated: true,
	}
	c.notifyLocked()
	c.setAuthenticated(true)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	role := snap.Role()
	span.SetAttributes(
		tracer.String(tracer.AttrOutcome, outcomeAuthenticated),
		tracer.String(tracer.AttrRole, role.String()),
	)
	c.incrementValidation(outcomeAuthenticated, "")
	c.logAudit(ctx, audit.Event{
		UserID:  identity.ID.String(),
		Action:  audit.ActionSessionValidated,
		Outcome: outcomeAuthenticated,
		Role:    role.String(),
	})
	return snap
}

func (c *Container) reject(ctx context.Context, gen uint64, span tracer.Span, reason Reason, cause error, session *models.Session) models.Snapshot {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return c.discardStale(ctx, gen, span)
	}
	c.clearLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	span.SetAttributes(
		tracer.String(tracer.AttrOutcome, outcomeSignedOut),
		tracer.String(tracer.AttrReason, string(reason)),
	)
	c.incrementValidation(outcomeSignedOut, string(reason))

	var userID string
	if session != nil && !session.UserID.IsNil() {
		userID = session.UserID.String()
	}
	if reason == ReasonNoSession {
		c.logger.DebugContext(ctx, "no session to validate")
	} else {
		c.authFailure(ctx, reason, cause, "user_id", userID)
	}
	c.logAudit(ctx, audit.Event{
		UserID:  userID,
		Action:  audit.ActionSessionRejected,
		Outcome: outcomeSignedOut,
		Reason:  string(reason),
	})

	c.invalidateBestEffort(ctx)
	return snap
}

func (c *Container) discardStale(ctx context.Context, gen uint64, span tracer.Span) models.Snapshot {
	span.SetAttributes(tracer.Bool(tracer.AttrStale, true))
	span.AddEvent(tracer.EventStaleDiscarded, tracer.Int64(tracer.AttrGeneration, int64(gen)))
	c.incrementValidation(outcomeStale, "")
	c.metrics.IncrementStaleValidations()
	c.logger.DebugContext(ctx, "discarding stale validation", "generation", gen)
	return c.Snapshot()
}

// abandon drops a validation whose caller went away. Auth state is left as
// it is; only a loading flag this generation raised is lowered again.
func (c *Container) abandon(ctx context.Context, gen uint64, span tracer.Span) models.Snapshot {
	c.mu.Lock()
	if gen == c.generation && c.state.isLoading && c.state.isHydrated {
		c.state.isLoading = false
		c.notifyLocked()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	span.SetAttributes(tracer.String(tracer.AttrOutcome, outcomeAbandoned))
	c.incrementValidation(outcomeAbandoned, "")
	c.logger.DebugContext(ctx, "validation abandoned by caller", "generation", gen, "error", ctx.Err())
	return snap
}
