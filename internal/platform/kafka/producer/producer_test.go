package producer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: " , "}, nil)
	require.ErrorContains(t, err, "kafka brokers not configured")
}

func TestProducer_ClosedRejectsWork(t *testing.T) {
	// franz-go connects lazily, so an unreachable broker is fine here.
	p, err := New(DefaultConfig("127.0.0.1:1"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	err = p.Produce(context.Background(), &Message{Topic: "auth-audit", Value: []byte("{}")})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Ping(context.Background()), ErrClosed)
}
