// Package state holds the process-wide auth state of the dashboard: the
// current session, the identity behind it and the user's profile row. Only the
// Container mutates it; guards and handlers read Snapshots.
package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/metrics"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/platform/tracer"
	id "fleetdesk/pkg/domain"
)

// CredentialStore is the part of the credential service the container uses.
type CredentialStore interface {
	CurrentSession(ctx context.Context) (*models.Session, error)
	CurrentIdentity(ctx context.Context) (*models.Identity, error)
	ExchangeCredentials(ctx context.Context, identifier, secret string) (*models.Session, error)
	InvalidateSession(ctx context.Context) error
}

// ProfileStore looks up application profiles.
// Error Contract: FindByID returns sentinel.ErrNotFound when the row doesn't exist.
type ProfileStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.UserRecord, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const defaultInvalidateTimeout = 5 * time.Second

// authState is guarded by Container.mu. isAuthenticated is never stored.
type authState struct {
	session    *models.Session
	user       *models.Identity
	record     *models.UserRecord
	isLoading  bool
	isHydrated bool
}

// Container is the injected auth state. Construct one per process (or per
// test) with New; the zero value is not usable.
type Container struct {
	credentials       CredentialStore
	profiles          ProfileStore
	logger            *slog.Logger
	metrics           *metrics.Metrics
	tracer            tracer.Tracer
	auditPublisher    AuditPublisher
	invalidateTimeout time.Duration
	now               func() time.Time

	mu         sync.RWMutex
	state      authState
	generation uint64

	watchMu     sync.Mutex
	watchers    map[int]chan models.Snapshot
	nextWatcher int

	// pending holds one channel per running remote invalidation; each is
	// closed when its invalidation finishes.
	pendingMu sync.Mutex
	pending   map[chan struct{}]struct{}
}

type Option func(*Container)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Container) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Container) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(c *Container) {
		c.auditPublisher = p
	}
}

// WithInvalidateTimeout bounds the detached remote invalidation on sign-out.
func WithInvalidateTimeout(d time.Duration) Option {
	return func(c *Container) {
		if d > 0 {
			c.invalidateTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Container) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a container that is loading and not yet hydrated. Call Hydrate
// (or Refresh) once at start so guards leave their placeholder state.
func New(credentials CredentialStore, profiles ProfileStore, opts ...Option) (*Container, error) {
	if credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}

	c := &Container{
		credentials:       credentials,
		profiles:          profiles,
		logger:            slog.Default(),
		tracer:            tracer.NewNoop(),
		invalidateTimeout: defaultInvalidateTimeout,
		now:               time.Now,
		state:             authState{isLoading: true},
		watchers:          make(map[int]chan models.Snapshot),
		pending:           make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Snapshot returns a copy of the current state.
func (c *Container) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Container) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		IsLoading:  c.state.isLoading,
		IsHydrated: c.state.isHydrated,
	}
	if c.state.session != nil {
		session := *c.state.session
		snap.Session = &session
	}
	if c.state.user != nil {
		user := *c.state.user
		snap.User = &user
	}
	if c.state.record != nil {
		record := *c.state.record
		snap.UserRecord = &record
	}
	return snap
}

// Watch subscribes to state writes. The channel holds at most one snapshot;
// a slow reader only ever sees the latest. The current state is delivered
// immediately.
func (c *Container) Watch() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)

	c.mu.RLock()
	c.watchMu.Lock()
	key := c.nextWatcher
	c.nextWatcher++
	c.watchers[key] = ch
	ch <- c.snapshotLocked()
	c.watchMu.Unlock()
	c.mu.RUnlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.watchMu.Lock()
			delete(c.watchers, key)
			c.watchMu.Unlock()
		})
	}
}

// notifyLocked must run with c.mu held for writing so watchers observe writes
// in order.
func (c *Container) notifyLocked() {
	snap := c.snapshotLocked()
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// nextGeneration starts a new state-changing operation. Results of any
// operation with an older generation are discarded.
func (c *Container) nextGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

func (c *Container) setLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.isLoading == loading {
		return
	}
	c.state.isLoading = loading
	c.notifyLocked()
}

// clearLocked resets to the signed-out state. Hydration is never undone.
func (c *Container) clearLocked() {
	c.state = authState{isLoading: false, isHydrated: true}
	c.setAuthenticated(false)
	c.notifyLocked()
}
