// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/TennisBuddy/internal/api/auth"
	"github.com/codr1/TennisBuddy/internal/api/buddies"
	"github.com/codr1/TennisBuddy/internal/api/courts"
	"github.com/codr1/TennisBuddy/internal/api/reservations"
	"github.com/codr1/TennisBuddy/internal/api/users"
	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/config"
	"github.com/codr1/TennisBuddy/internal/db"
	"github.com/codr1/TennisBuddy/internal/email"
	"github.com/codr1/TennisBuddy/internal/events"
	"github.com/codr1/TennisBuddy/internal/ratelimit"
	"github.com/codr1/TennisBuddy/internal/scheduler"
	"github.com/codr1/TennisBuddy/internal/telemetry"
)

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Features.EnableDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = log.With().Str("app", cfg.App.Name).Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
		Endpoint:    cfg.Features.OTLPEndpoint,
		Tracing:     cfg.Features.EnableTracing,
		Metrics:     cfg.Features.EnableMetrics,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	stores := database.Stores()

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	registry := events.NewRegistry()
	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return fmt.Errorf("connect event broker: %w", err)
		}
		defer publisher.Close()
		registry.SubscribeAll(publisher.Listener())
		log.Info().Str("exchange", cfg.Events.Exchange).Msg("Publishing booking events to AMQP")
	}

	bookingService, err := booking.NewService(booking.Config{
		Store:    stores.Reservations,
		Courts:   stores.Courts,
		Users:    stores.Users,
		Locker:   locker,
		Notifier: registry,
	})
	if err != nil {
		return fmt.Errorf("create booking service: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.App.SecretKey, cfg.App.TokenTTL)
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}

	auth.InitHandlers(stores.Users, tokens)
	reservations.InitHandlers(bookingService)
	courts.InitHandlers(stores.Courts, registry)
	users.InitHandlers(stores.Users)
	buddies.InitHandlers(stores.Buddies)

	if cfg.Reminders.Enabled {
		if err := startReminders(ctx, cfg, stores.Reservations); err != nil {
			return err
		}
		defer func() {
			if err := scheduler.Stop(); err != nil {
				log.Warn().Err(err).Msg("Failed to stop scheduler")
			}
		}()
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Window: cfg.RateLimit.Window,
		Limits: map[string]int{
			ratelimit.BucketGlobal: cfg.RateLimit.MaxGlobal,
			ratelimit.BucketAuth:   cfg.RateLimit.MaxAuth,
		},
		TrustProxy: cfg.RateLimit.TrustProxy,
	})
	defer limiter.Close()

	server := newServer(cfg, limiter)

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("environment", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newLocker returns Redis leases when a Redis URL is configured and
// in-process locks otherwise.
func newLocker(ctx context.Context, cfg *config.Config) (booking.Locker, func(), error) {
	if cfg.Locks.RedisURL == "" {
		return booking.NewKeyedLocker(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Locks.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	locker, err := booking.NewRedisLocker(client, cfg.Locks.TTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info().Dur("ttl", cfg.Locks.TTL).Msg("Using Redis slot locks")
	return locker, func() { _ = client.Close() }, nil
}

func startReminders(ctx context.Context, cfg *config.Config, source scheduler.ReminderSource) error {
	var sender email.Sender = email.LoggingSender{}
	if cfg.EmailConfigured() {
		client, err := email.NewSESClient(ctx, cfg.Email.AccessKeyID, cfg.Email.SecretAccessKey, cfg.Email.Region, cfg.Email.Sender)
		if err != nil {
			return fmt.Errorf("create ses client: %w", err)
		}
		sender = client
	} else {
		log.Warn().Msg("SES not configured; reminder emails will be logged only")
	}

	if err := scheduler.Init(); err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if err := scheduler.RegisterReminderJobs(cfg.Reminders.Schedule, scheduler.NewReminders(source, sender)); err != nil {
		return err
	}
	return scheduler.Start()
}
