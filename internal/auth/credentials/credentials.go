// Package credentials adapts the hosted authentication service. It owns the
// credential session; the auth container only ever holds a copy.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/sentinel"
)

// Store is the credential service as seen by the rest of fleetdesk.
type Store interface {
	CurrentSession(ctx context.Context) (*models.Session, error)
	CurrentIdentity(ctx context.Context) (*models.Identity, error)
	ExchangeCredentials(ctx context.Context, identifier, secret string) (*models.Session, error)
	InvalidateSession(ctx context.Context) error
	// DropSession forgets the local session without contacting the service
	// and without emitting an event. It only drops expected, and reports
	// whether it did.
	DropSession(expected *models.Session) bool
}

// EventSource delivers session-change notifications. The returned function
// removes the subscription and is safe to call more than once.
type EventSource interface {
	OnSessionChange(fn func(Event)) (unsubscribe func())
}

type EventKind string

const (
	EventInitialSession EventKind = "initial_session"
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserUpdated    EventKind = "user_updated"
)

// ParseEventKind accepts the wire names above.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventInitialSession, EventSignedIn, EventSignedOut, EventTokenRefreshed, EventUserUpdated:
		return k, nil
	default:
		return "", fmt.Errorf("unknown session event %q: %w", s, sentinel.ErrInvalidInput)
	}
}

// Event is a session change. For EventSignedOut, Session is the session that
// ended when the source knows it, and nil otherwise.
type Event struct {
	Kind    EventKind
	Session *models.Session
}

// ProviderError is an error response from the credential service. Message is
// the provider's own text and is shown to the user verbatim on sign-in.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("credential service returned %d", e.Status)
}

// Unwrap classifies the response so callers can use errors.Is with sentinels.
func (e *ProviderError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return sentinel.ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return sentinel.ErrNotFound
	case e.Status >= http.StatusInternalServerError, e.Status == http.StatusTooManyRequests:
		return sentinel.ErrUnavailable
	case e.Status >= http.StatusBadRequest:
		return sentinel.ErrInvalidInput
	default:
		return nil
	}
}

// Broadcaster fans session events out to subscribers. Emit never runs while
// the caller's locks are held; stores emit after releasing them.
type Broadcaster struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func (b *Broadcaster) OnSessionChange(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(Event))
	}
	key := b.next
	b.next++
	b.subs[key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, key)
			b.mu.Unlock()
		})
	}
}

func (b *Broadcaster) Emit(ev Event) {
	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
