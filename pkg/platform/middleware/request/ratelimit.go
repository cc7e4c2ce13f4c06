package request

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "fleetdesk/pkg/domain-errors"
	"fleetdesk/pkg/platform/httputil"
	"fleetdesk/pkg/requestcontext"
)

// visitorTTL is how long an idle client keeps its bucket.
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client IP. Idle entries are swept on
// access, at most once per TTL, so no background goroutine is needed.
type visitors struct {
	mu        sync.Mutex
	byIP      map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newVisitors(perSecond float64, burst int) *visitors {
	return &visitors{
		byIP:  make(map[string]*visitor),
		limit: rate.Limit(perSecond),
		burst: burst,
		ttl:   visitorTTL,
		now:   time.Now,
	}
}

func (v *visitors) allow(ip string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) > v.ttl {
		for key, entry := range v.byIP {
			if now.Sub(entry.lastSeen) > v.ttl {
				delete(v.byIP, key)
			}
		}
		v.lastSweep = now
	}

	entry, ok := v.byIP[ip]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.byIP[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RateLimit allows perSecond requests per client IP with the given burst and
// answers 429 beyond that. The client IP comes from the metadata middleware,
// which must run first.
func RateLimit(perSecond float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimit(newVisitors(perSecond, burst), logger)
}

func rateLimit(v *visitors, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := requestcontext.ClientIP(r.Context())
			if ip == "" {
				ip = r.RemoteAddr
			}
			if !v.allow(ip) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
