package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"fleetdesk/internal/auth/device"
	"fleetdesk/internal/auth/metrics"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/auth/navigation"
	"fleetdesk/internal/sentinel"
	dErrors "fleetdesk/pkg/domain-errors"
	"fleetdesk/pkg/platform/httputil"
	"fleetdesk/pkg/requestcontext"
)

// Reader exposes the auth state read-only.
type Reader interface {
	Snapshot() models.Snapshot
}

type contextKey struct{}

// SnapshotFromContext returns the snapshot a guard admitted the request with.
func SnapshotFromContext(ctx context.Context) (models.Snapshot, bool) {
	snap, ok := ctx.Value(contextKey{}).(models.Snapshot)
	return snap, ok
}

func withSnapshot(ctx context.Context, snap models.Snapshot) context.Context {
	return context.WithValue(ctx, contextKey{}, snap)
}

type options struct {
	metrics *metrics.Metrics
}

type Option func(*options)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// AuthGuard admits authenticated users with a role and redirects the rest to
// the login route.
func AuthGuard(reader Reader, routes Routes, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	return middleware(KindProtected, reader, routes, logger, opts)
}

// GuestGuard admits only signed-out users; signed-in users are sent to the
// home of their client surface.
func GuestGuard(reader Reader, routes Routes, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	return middleware(KindGuestOnly, reader, routes, logger, opts)
}

func middleware(kind Kind, reader Reader, routes Routes, logger *slog.Logger, opts []Option) func(http.Handler) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			snap := reader.Snapshot()
			surface := device.DetectSurface(r.UserAgent())
			decision := Evaluate(kind, snap, routes, surface)
			o.metrics.IncrementGuardDecision(kind.String(), string(decision.Phase))

			switch decision.Phase {
			case PhasePreHydration:
				w.Header().Set("Retry-After", "1")
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"view": "loading"})
			case PhaseRedirecting:
				logger.DebugContext(ctx, "guard redirect",
					"guard", kind.String(),
					"path", r.URL.Path,
					"target", decision.Target,
					"surface", string(surface),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, decision.Target, http.StatusSeeOther)
			case PhaseAllowed:
				next.ServeHTTP(w, r.WithContext(withSnapshot(ctx, snap)))
			}
		})
	}
}

// PageResolver names the dashboard page a request targets.
type PageResolver func(r *http.Request) (navigation.Page, error)

// FixedPage resolves every request to p.
func FixedPage(p navigation.Page) PageResolver {
	return func(*http.Request) (navigation.Page, error) {
		return p, nil
	}
}

// PageGuard runs after AuthGuard and rejects pages the role may not open.
// Unknown pages are 404; pages outside the role's table are 403.
func PageGuard(resolve PageResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			snap, ok := SnapshotFromContext(ctx)
			if !ok {
				logger.ErrorContext(ctx, "page guard used without auth guard",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
				return
			}

			page, err := resolve(r)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "page not found"))
					return
				}
				httputil.WriteError(w, err)
				return
			}

			role := snap.Role()
			if !navigation.Allows(role, page) {
				logger.WarnContext(ctx, "page denied for role",
					"page", string(page),
					"role", role.String(),
					"user_id", snap.User.ID.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "page not available for this role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
