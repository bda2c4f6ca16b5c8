package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/provio-systems/provio/internal/audit"
	"github.com/provio-systems/provio/internal/config"
	"github.com/provio-systems/provio/internal/crypto"
	"github.com/provio-systems/provio/internal/handlers"
	"github.com/provio-systems/provio/internal/metrics"
	authmw "github.com/provio-systems/provio/internal/middleware"
	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/namepool"
	"github.com/provio-systems/provio/internal/provisioning"
	"github.com/provio-systems/provio/internal/ratelimit"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/internal/server"
	"github.com/provio-systems/provio/internal/synth"
	"github.com/provio-systems/provio/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	logger.Info("starting provio",
		"port", cfg.Server.Port,
		"database", cfg.Database.Type,
		"log_level", cfg.Logging.Level,
	)

	// Persistence
	var store repository.Store
	var db *repository.PostgresStore
	if cfg.Database.Type == "postgres" {
		connString := cfg.Database.Postgres.ConnString()

		db, err = repository.NewPostgresStore(context.Background(), connString)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		store = db

		if err := runMigrations(connString, logger); err != nil {
			return err
		}
	} else {
		logger.Warn("using in-memory store (development only)")
		store = repository.NewInMemoryStore()
	}

	// Credential encryption
	cipher, err := crypto.NewCipher(cfg.Crypto.Key, cfg.Crypto.FallbackSecret)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	if cipher.UsesDerivedKey() {
		logger.Warn("crypto key derived from fallback secret, not suitable for production")
	}

	// Audit trail and async emitter
	signer := audit.NewSigner(cfg.Audit.SigningSecret)
	trail := audit.NewTrail(store, signer, logger, audit.WithRetention(cfg.Audit.Retention))

	registry := prometheus.NewRegistry()
	var emitter *audit.Emitter
	m := metrics.New(registry, func() float64 {
		if emitter == nil {
			return 0
		}
		return float64(emitter.QueueDepth())
	})

	emitterOpts := []audit.EmitterOption{
		audit.WithQueueSize(cfg.Audit.QueueSize),
		audit.WithErrorHook(func(_ *models.AuditEvent, _ error) {
			m.AuditEmitFailures.Inc()
		}),
	}
	if cfg.NATS.Enabled {
		forwarder, err := audit.NewNATSForwarder(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer forwarder.Close()
		emitterOpts = append(emitterOpts, audit.WithForwarder(forwarder))
		logger.Info("audit event forwarding enabled", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}
	emitter = audit.NewEmitter(trail, logger, emitterOpts...)
	defer emitter.Close()

	// Retention sweeper
	sweeper := audit.NewSweeper(trail, cfg.Audit.SweepInterval, logger)
	if err := sweeper.Start(context.Background()); err != nil {
		return fmt.Errorf("start retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Synthesis pipeline
	pool := namepool.New(store, logger)
	synthesizer := synth.New(pool, logger)

	service := provisioning.New(store, synthesizer, cipher, emitter, logger,
		provisioning.WithMetrics(m),
		provisioning.WithBatchDelay(cfg.Batch.Delay),
	)

	// Rate limiting
	var rateLimitMW func(http.HandlerFunc) http.HandlerFunc
	if cfg.RateLimit.Enabled {
		var limiter ratelimit.Limiter
		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()
			limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			logger.Info("rate limiting via redis", "addr", cfg.Redis.Addr)
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
		rateLimitMW = authmw.RateLimit(limiter, m.RateLimitRejects, logger)
	}

	// HTTP surface
	router := server.NewRouter(server.RouterDeps{
		Accounts:  handlers.NewAccountHandler(service, logger),
		Audit:     handlers.NewAuditHandler(trail, logger),
		Names:     handlers.NewNamesHandler(pool, store, logger),
		Health:    handlers.NewHealthHandler(pingerOrNil(db)),
		Auth:      authmw.NewAuthMiddleware(cfg.Auth.JWTSecret),
		RateLimit: rateLimitMW,
		Registry:  registry,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("provio listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped gracefully")
	return nil
}

// pingerOrNil avoids handing the health handler a typed nil.
func pingerOrNil(db *repository.PostgresStore) handlers.Pinger {
	if db == nil {
		return nil
	}
	return db
}

func runMigrations(connString string, logger *logging.Logger) error {
	logger.Info("running database migrations")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.Warn("could not read migration version", "error", err)
		return nil
	}
	logger.Info("database migration complete", "version", version, "dirty", dirty)
	return nil
}
