package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/credentials"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/auth/state"
	"fleetdesk/internal/auth/store/profile"
	jwttoken "fleetdesk/internal/jwt_token"
	"fleetdesk/internal/platform/config"
	"fleetdesk/internal/platform/database"
	"fleetdesk/internal/platform/health"
	"fleetdesk/internal/platform/kafka/producer"
	"fleetdesk/internal/platform/redis"
	"fleetdesk/migrations"
	"fleetdesk/pkg/platform/circuit"
)

const (
	devTokenIssuer  = "fleetdesk-dev"
	auditBufferSize = 256
)

// infra holds the optional backing services. Either field may be nil when
// its URL is not configured.
type infra struct {
	db    *database.Pool
	redis *redis.Client
}

func (i *infra) Close() {
	i.db.Close()
	if i.redis != nil {
		i.redis.Close() //nolint:errcheck // best-effort cleanup on exit
	}
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer, probes *health.Handler) (*infra, error) {
	db, err := database.New(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if db != nil {
		probes.RegisterCheck("postgres", db.Health)
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, db, migrations.FS); err != nil {
				db.Close()
				return nil, err
			}
			log.Info("database migrations applied")
		}
	}

	rdb, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		db.Close()
		return nil, err
	}
	if rdb != nil {
		probes.RegisterCheck("redis", rdb.Health)
	}
	return &infra{db: db, redis: rdb}, nil
}

// buildAudit fans audit events out to the log and, when brokers are set, to
// Kafka. The returned close drains the queue before the producer stops.
func buildAudit(cfg config.Config, log *slog.Logger, probes *health.Handler) (*audit.Publisher, func(), error) {
	sinks := audit.MultiStore{audit.NewLogStore(log)}

	var kafka *producer.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := producer.New(producer.DefaultConfig(strings.Join(cfg.Kafka.Brokers, ",")), log)
		if err != nil {
			return nil, nil, fmt.Errorf("audit producer: %w", err)
		}
		kafka = p
		sinks = append(sinks, audit.NewKafkaStore(p, cfg.Kafka.AuditTopic))
		probes.RegisterCheck("kafka", p.Ping)
	}

	publisher := audit.NewPublisher(sinks,
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
	)
	return publisher, func() {
		publisher.Close()
		if kafka != nil {
			if err := kafka.Close(); err != nil {
				log.Warn("closing audit producer", "error", err)
			}
		}
	}, nil
}

type stores struct {
	credentials credentials.Store
	profiles    state.ProfileStore
	// local is the event source of the credential store itself.
	local   credentials.EventSource
	sources []credentials.EventSource
}

func buildStores(ctx context.Context, cfg config.Config, log *slog.Logger, infra *infra, probes *health.Handler) (*stores, error) {
	var (
		profiles profileStore = profile.New()
		out      stores
	)
	if infra.db != nil {
		profiles = profile.NewPostgres(infra.db)
	}
	out.profiles = profiles

	switch cfg.Auth.Provider {
	case config.ProviderHTTP:
		remote := credentials.NewHTTPStore(credentials.HTTPConfig{
			BaseURL: cfg.Auth.URL,
			APIKey:  cfg.Auth.APIKey,
			Timeout: cfg.Auth.HTTPTimeout,
		})
		out.credentials = credentials.NewResilient(remote, log,
			circuit.WithFailureThreshold(cfg.Auth.BreakerFailures),
			circuit.WithCooldown(cfg.Auth.BreakerCooldown),
		)
		out.local = remote
		probes.RegisterCheck("credential_service", remote.Ping)

	case config.ProviderMemory:
		tokens := jwttoken.NewJWTService(cfg.Auth.DevSigningKey, devTokenIssuer, cfg.Auth.DevTokenTTL)
		mem := credentials.NewMemoryStore(tokens)
		if err := seedDevUsers(ctx, cfg.Auth.DevUsers, mem, profiles); err != nil {
			return nil, err
		}
		out.credentials = mem
		out.local = mem
		log.Warn("using in-memory credential provider; do not use in production")

	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
	}

	out.sources = []credentials.EventSource{out.local}
	return &out, nil
}

// profileStore is a profile backend that can also be seeded.
type profileStore interface {
	state.ProfileStore
	Save(ctx context.Context, record *models.UserRecord) error
}

func seedDevUsers(ctx context.Context, raw string, mem *credentials.MemoryStore, profiles profileStore) error {
	users, err := credentials.ParseSeedUsers(raw)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := mem.AddUser(u.ID, u.Email, u.Password); err != nil {
			return fmt.Errorf("seeding %s: %w", u.Email, err)
		}
		if err := profiles.Save(ctx, &models.UserRecord{ID: u.ID, Email: u.Email, Role: u.Role}); err != nil {
			return fmt.Errorf("seeding profile %s: %w", u.Email, err)
		}
	}
	return nil
}
