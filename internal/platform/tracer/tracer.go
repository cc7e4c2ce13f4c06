// Package tracer provides a small tracing abstraction over OpenTelemetry.
//
// Session validation, sign-in and sign-out open spans through this interface
// so the auth packages never import OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it as failed.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashEmail returns a short SHA-256 prefix of a normalized e-mail address so
// traces can be correlated without carrying the address itself.
func HashEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return hex.EncodeToString(hash[:8])
}

// Span names used by the auth packages.
const (
	SpanValidate        = "auth.validate"
	SpanResolveIdentity = "auth.validate.identity"
	SpanFetchProfile    = "auth.validate.profile"
	SpanSignIn          = "auth.sign_in"
	SpanSignOut         = "auth.sign_out"
	SpanRefresh         = "auth.refresh"
)

// Attribute keys used by the auth packages.
const (
	AttrGeneration = "auth.generation"
	AttrOutcome    = "auth.outcome"
	AttrReason     = "auth.reason"
	AttrRole       = "auth.role"
	AttrUserID     = "auth.user_id"
	AttrEmailHash  = "auth.email_hash"
	AttrStale      = "auth.stale"
)

// Event names used by the auth packages.
const (
	EventStaleDiscarded = "validation.stale_discarded"
	EventAuditEmitted   = "audit.emitted"
)
