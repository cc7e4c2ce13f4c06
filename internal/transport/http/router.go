// Package httptransport exposes the auth state container and the guarded
// dashboard views over HTTP.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetdesk/internal/auth/guard"
	"fleetdesk/internal/auth/metrics"
	"fleetdesk/internal/platform/health"
	"fleetdesk/pkg/platform/middleware/metadata"
	"fleetdesk/pkg/platform/middleware/request"
	"fleetdesk/pkg/platform/middleware/requesttime"
)

// defaultMaxBody bounds auth request bodies when Dependencies.MaxBodyBytes
// is unset.
const defaultMaxBody = 16 << 10

// Dependencies are the collaborators NewRouter wires together. Health and
// Metrics are optional.
type Dependencies struct {
	Auth           AuthService
	Logger         *slog.Logger
	Routes         guard.Routes
	AuthMetrics    *metrics.Metrics
	RequestMetrics *request.Metrics
	Health         *health.Handler
	Metrics        http.Handler
	TrustedProxies []netip.Prefix
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// SignInRate is in requests per second per client; 0 disables the limit.
	SignInRate     float64
	SignInBurst    int
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(deps.TrustedProxies).Handler)
	r.Use(request.Logger(deps.Logger))
	r.Use(request.Latency(deps.RequestMetrics))

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		if deps.RequestTimeout > 0 {
			r.Use(request.Timeout(deps.RequestTimeout))
		}
		r.Use(request.ContentTypeJSON)
		maxBody := deps.MaxBodyBytes
		if maxBody <= 0 {
			maxBody = defaultMaxBody
		}
		r.Use(request.BodyLimit(maxBody))
		var throttle []func(http.Handler) http.Handler
		if deps.SignInRate > 0 {
			throttle = append(throttle, request.RateLimit(deps.SignInRate, deps.SignInBurst, deps.Logger))
		}
		NewAuthHandler(deps.Auth, deps.Logger).Register(r, throttle...)
	})

	NewPageHandler(deps.Auth, deps.Routes, deps.Logger, deps.AuthMetrics).Register(r)

	return r
}
