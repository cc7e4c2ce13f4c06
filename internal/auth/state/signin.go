package state

import (
	"context"
	"errors"
	"strings"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/credentials"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/platform/tracer"
	"fleetdesk/internal/sentinel"
)

const (
	msgMissingCredentials = "Email and password are required"
	msgNoSession          = "No session returned"
	msgServiceUnavailable = "Sign-in is temporarily unavailable, please try again"
	msgSignInFailed       = "Sign-in failed"
)

// SignIn exchanges credentials for a session and validates it. A rejected
// exchange is returned as data and only clears IsLoading. Once a session is
// issued SignIn reports success; whether the user ends up authenticated is
// decided by validation and visible in the snapshot.
func (c *Container) SignIn(ctx context.Context, identifier, secret string) models.SignInResult {
	identifier = strings.TrimSpace(identifier)
	ctx, span := c.tracer.Start(ctx, tracer.SpanSignIn, tracer.String(tracer.AttrEmailHash, tracer.HashEmail(identifier)))
	defer span.End(nil)

	if identifier == "" || secret == "" {
		return c.signInFailed(ctx, span, "missing_credentials", msgMissingCredentials)
	}

	// A sign-out that is still invalidating remotely must finish first, or it
	// could end the session issued here.
	if err := c.waitPending(ctx); err != nil {
		return c.signInFailed(ctx, span, "cancelled", msgSignInFailed)
	}

	c.setLoading(true)
	session, err := c.credentials.ExchangeCredentials(ctx, identifier, secret)
	if err != nil {
		c.setLoading(false)
		c.logger.WarnContext(ctx, "credential exchange failed", "error", err, "email_hash", tracer.HashEmail(identifier))
		return c.signInFailed(ctx, span, "rejected", signInMessage(err))
	}
	if session == nil {
		c.setLoading(false)
		return c.signInFailed(ctx, span, "no_session", msgNoSession)
	}

	snap := c.Validate(ctx, session)
	outcome := outcomeSignedOut
	switch {
	case ctx.Err() != nil:
		outcome = outcomeAbandoned
	case snap.IsAuthenticated():
		outcome = outcomeAuthenticated
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
	c.metrics.IncrementSignIn("succeeded")
	c.logAudit(ctx, audit.Event{
		UserID:  session.UserID.String(),
		Action:  audit.ActionSignInSucceeded,
		Outcome: outcome,
		Role:    snap.Role().String(),
	})
	return models.SignInResult{Success: true}
}

func (c *Container) signInFailed(ctx context.Context, span tracer.Span, reason, message string) models.SignInResult {
	span.SetAttributes(tracer.String(tracer.AttrReason, reason))
	c.metrics.IncrementSignIn("failed")
	c.logAudit(ctx, audit.Event{
		Action:  audit.ActionSignInFailed,
		Outcome: "failed",
		Reason:  reason,
	})
	return models.SignInResult{Success: false, Error: message}
}

// signInMessage surfaces the provider's own text for rejected credentials.
// Outages, including provider 5xx and 429 responses, and every other failure
// get a generic message so transport details never reach the form.
func signInMessage(err error) string {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return msgServiceUnavailable
	}
	var perr *credentials.ProviderError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return msgSignInFailed
}
