package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotelkalsubai/backend/internal/auth"
	"github.com/hotelkalsubai/backend/internal/config"
	"github.com/hotelkalsubai/backend/internal/event"
	handler "github.com/hotelkalsubai/backend/internal/handler/http"
	"github.com/hotelkalsubai/backend/internal/notifier"
	"github.com/hotelkalsubai/backend/internal/repository/postgres"
	"github.com/hotelkalsubai/backend/internal/service"
	"github.com/hotelkalsubai/backend/internal/social"
	"github.com/hotelkalsubai/backend/migrations"
	"github.com/hotelkalsubai/backend/pkg/database"
	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
	"github.com/hotelkalsubai/backend/pkg/health"
	pkgkafka "github.com/hotelkalsubai/backend/pkg/kafka"
	"github.com/hotelkalsubai/backend/pkg/tracing"
)

// App wires together all dependencies and runs the account service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "account",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SampleRate:     cfg.TracingSampler,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		DBName:   cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	userRepo := postgres.NewUserRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	authService := service.NewAuthService(
		userRepo,
		jwtManager,
		emailSender(cfg, logger),
		smsSender(cfg, logger),
		social.NewGoogleVerifier(),
		social.NewFacebookVerifier(),
		eventProducer,
		logger,
		cfg.ResetBaseURL,
	)
	userService := service.NewUserService(userRepo, eventProducer, logger)

	// Seed the default admin account.
	if err := seedAdmin(ctx, cfg, authService, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seed admin user: %w", err)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(authService, userService, jwtManager, healthHandler, logger,
		handler.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// emailSender picks the SMTP sender when configured, falling back to the
// logging sender for local development.
func emailSender(cfg *config.Config, logger *slog.Logger) notifier.EmailSender {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP not configured, reset emails will be logged only")
		return notifier.NewLogSender(logger)
	}
	return notifier.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}

// smsSender picks the gateway sender when configured, falling back to the
// logging sender for local development.
func smsSender(cfg *config.Config, logger *slog.Logger) notifier.SMSSender {
	if cfg.SMSGatewayEndpoint == "" {
		logger.Warn("SMS gateway not configured, OTP codes will be logged only")
		return notifier.NewLogSender(logger)
	}
	return notifier.NewGatewaySMSSender(cfg.SMSGatewayEndpoint, cfg.SMSGatewayAPIKey)
}

// seedAdmin creates the default administrative account on first startup.
// An empty seed password disables seeding outside development.
func seedAdmin(ctx context.Context, cfg *config.Config, authService *service.AuthService, logger *slog.Logger) error {
	password := cfg.SeedAdminPassword
	if password == "" {
		if cfg.Environment != "development" {
			logger.Info("no seed admin password configured, skipping admin seeding")
			return nil
		}
		password = "admin123"
	}

	_, err := authService.CreateAdminUser(ctx, service.RegisterInput{
		Username: cfg.SeedAdminUsername,
		Email:    cfg.SeedAdminEmail,
		Password: password,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEmail) || errors.Is(err, apperrors.ErrDuplicateUsername) {
			return nil
		}
		return err
	}

	logger.Info("seeded default admin account",
		slog.String("username", cfg.SeedAdminUsername),
		slog.String("email", cfg.SeedAdminEmail),
	)
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application stopped")
	return errors.Join(errs...)
}
