// Command dashboard serves the fleetdesk dashboard backend: the auth state
// container, its listeners and the guarded HTTP routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetdesk/internal/auth/credentials"
	"fleetdesk/internal/auth/guard"
	authmetrics "fleetdesk/internal/auth/metrics"
	"fleetdesk/internal/auth/state"
	"fleetdesk/internal/platform/config"
	"fleetdesk/internal/platform/health"
	"fleetdesk/internal/platform/logger"
	"fleetdesk/internal/platform/metrics"
	"fleetdesk/internal/platform/tracer"
	httptransport "fleetdesk/internal/transport/http"
	"fleetdesk/pkg/platform/middleware/metadata"
	"fleetdesk/pkg/platform/middleware/request"
)

const poolStatsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.Service, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing fleetdesk dashboard",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"auth_provider", string(cfg.Auth.Provider),
	)

	shutdownTracing, err := tracer.InitProvider(ctx, tracer.ProviderConfig{
		ServiceName:    cfg.Server.Service,
		ServiceVersion: health.Version,
		Environment:    cfg.Server.Environment,
		Endpoint:       cfg.Server.OTLPEndpoint,
		Insecure:       cfg.Server.OTLPInsecure,
		SampleRate:     cfg.Server.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flushing traces", "error", err)
		}
	}()

	registry := metrics.New(cfg.Server.Service, health.Version)
	authMetrics := authmetrics.New(registry.Registerer())
	probes := health.New(cfg.Server.Environment)

	infra, err := openInfra(ctx, cfg, log, registry.Registerer(), probes)
	if err != nil {
		return err
	}
	defer infra.Close()

	auditPublisher, closeAudit, err := buildAudit(cfg, log, probes)
	if err != nil {
		return err
	}
	defer closeAudit()

	stores, err := buildStores(ctx, cfg, log, infra, probes)
	if err != nil {
		return err
	}

	container, err := state.New(stores.credentials, stores.profiles,
		state.WithLogger(log),
		state.WithMetrics(authMetrics),
		state.WithTracer(tracer.NewOTel()),
		state.WithAuditPublisher(auditPublisher),
		state.WithInvalidateTimeout(cfg.Auth.InvalidateTimeout),
	)
	if err != nil {
		return fmt.Errorf("auth container: %w", err)
	}
	probes.RegisterCheck("auth_state", func(context.Context) error {
		if !container.Snapshot().IsHydrated {
			return errors.New("auth state not hydrated")
		}
		return nil
	})

	trusted, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(httptransport.Dependencies{
		Auth:           container,
		Logger:         log,
		Routes:         guard.DefaultRoutes(),
		AuthMetrics:    authMetrics,
		RequestMetrics: request.NewMetrics(registry.Registerer()),
		Health:         probes,
		Metrics:        registry.Handler(),
		TrustedProxies: trusted,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		SignInRate:     cfg.Auth.SignInRate,
		SignInBurst:    cfg.Auth.SignInBurst,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	sources := stores.sources
	if infra.redis != nil {
		relay := credentials.NewRedisEvents(infra.redis.Client, cfg.Redis.EventsChannel, stores.credentials, log)
		unforward := relay.Forward(stores.local)
		defer unforward()
		sources = append(sources, relay)
		g.Go(func() error { return relay.Run(gctx) })
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					infra.redis.RecordPoolStats()
				}
			}
		})
	}

	g.Go(func() error { return state.Listen(gctx, container, sources...) })
	g.Go(func() error {
		container.Hydrate(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		container.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("dashboard stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
