package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "fleetdesk/pkg/domain"
)

// Notice is the message exchanged over the Redis channel. It never carries
// tokens; receivers re-read their own session from the credential store.
type Notice struct {
	Kind   EventKind `json:"kind"`
	UserID string    `json:"user_id,omitempty"`
	Origin string    `json:"origin,omitempty"`
}

// RedisEvents relays session changes between fleetdesk instances, so a
// sign-out or role change made elsewhere reaches this process. A relayed
// sign-out drops the local store session before it is emitted, so listeners
// see a store that has already signed out.
type RedisEvents struct {
	Broadcaster

	client   *redis.Client
	channel  string
	sessions Store
	logger   *slog.Logger
	origin   string

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisEvents(client *redis.Client, channel string, sessions Store, logger *slog.Logger) *RedisEvents {
	return &RedisEvents{
		client:   client,
		channel:  channel,
		sessions: sessions,
		logger:   logger,
		origin:   uuid.NewString(),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once Run has an active subscription.
func (r *RedisEvents) Ready() <-chan struct{} {
	return r.ready
}

// Publish announces a change for userID to the other instances.
func (r *RedisEvents) Publish(ctx context.Context, kind EventKind, userID id.UserID) error {
	payload, err := json.Marshal(Notice{Kind: kind, UserID: userID.String(), Origin: r.origin})
	if err != nil {
		return fmt.Errorf("encoding session notice: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing session notice: %w", err)
	}
	return nil
}

// Forward republishes local sign-outs from src. The user of the last known
// session is remembered for sources that sign out without naming the session.
func (r *RedisEvents) Forward(src EventSource) (unsubscribe func()) {
	var (
		mu       sync.Mutex
		lastUser id.UserID
	)
	return src.OnSessionChange(func(ev Event) {
		mu.Lock()
		if ev.Session != nil {
			lastUser = ev.Session.UserID
		}
		user := lastUser
		mu.Unlock()

		if ev.Kind != EventSignedOut || user.IsNil() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.Publish(ctx, EventSignedOut, user); err != nil {
			r.logger.Warn("failed to forward sign-out", "error", err)
		}
	})
}

// Run subscribes to the channel and blocks until ctx is done.
func (r *RedisEvents) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close() //nolint:errcheck // best-effort cleanup

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("session relay subscribed", "channel", r.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *RedisEvents) handle(ctx context.Context, payload string) {
	var notice Notice
	if err := json.Unmarshal([]byte(payload), &notice); err != nil {
		r.logger.Warn("dropping malformed session notice", "error", err)
		return
	}
	if notice.Origin == r.origin {
		return
	}
	kind, err := ParseEventKind(string(notice.Kind))
	if err != nil {
		r.logger.Warn("dropping session notice", "error", err)
		return
	}

	current, err := r.sessions.CurrentSession(ctx)
	if err != nil {
		r.logger.Warn("session notice ignored: current session unavailable", "kind", kind, "error", err)
		return
	}
	if current == nil {
		return
	}
	if notice.UserID != "" && notice.UserID != current.UserID.String() {
		return
	}
	if kind == EventSignedOut && !r.sessions.DropSession(current) {
		r.logger.Debug("relayed sign-out ignored: session replaced meanwhile", "user_id", notice.UserID)
		return
	}

	r.Emit(Event{Kind: kind, Session: current})
}

var _ EventSource = (*RedisEvents)(nil)
