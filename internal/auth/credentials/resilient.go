package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/sentinel"
	"fleetdesk/pkg/platform/circuit"
)

// Resilient puts a circuit breaker in front of a Store. Only outages count
// as failures; rejected credentials and cancelled requests do not.
type Resilient struct {
	inner   Store
	breaker *circuit.Breaker
}

func NewResilient(inner Store, logger *slog.Logger, opts ...circuit.Option) *Resilient {
	opts = append([]circuit.Option{
		circuit.WithFailurePredicate(func(err error) bool {
			return errors.Is(err, sentinel.ErrUnavailable)
		}),
		circuit.WithStateChange(func(name string, from, to circuit.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
		}),
	}, opts...)
	return &Resilient{
		inner:   inner,
		breaker: circuit.New("credential-service", opts...),
	}
}

func (r *Resilient) CurrentSession(ctx context.Context) (*models.Session, error) {
	var session *models.Session
	err := r.call(func() (err error) {
		session, err = r.inner.CurrentSession(ctx)
		return err
	})
	return session, err
}

func (r *Resilient) CurrentIdentity(ctx context.Context) (*models.Identity, error) {
	var identity *models.Identity
	err := r.call(func() (err error) {
		identity, err = r.inner.CurrentIdentity(ctx)
		return err
	})
	return identity, err
}

func (r *Resilient) ExchangeCredentials(ctx context.Context, identifier, secret string) (*models.Session, error) {
	var session *models.Session
	err := r.call(func() (err error) {
		session, err = r.inner.ExchangeCredentials(ctx, identifier, secret)
		return err
	})
	return session, err
}

func (r *Resilient) InvalidateSession(ctx context.Context) error {
	return r.call(func() error {
		return r.inner.InvalidateSession(ctx)
	})
}

// DropSession is local and bypasses the breaker.
func (r *Resilient) DropSession(expected *models.Session) bool {
	return r.inner.DropSession(expected)
}

// Open reports whether calls are currently being rejected.
func (r *Resilient) Open() bool {
	return r.breaker.IsOpen()
}

func (r *Resilient) call(fn func() error) error {
	err := r.breaker.Execute(fn)
	if circuit.IsOpenError(err) {
		return fmt.Errorf("credential service circuit open: %w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
