package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spartak030506-hash/shop-backend/internal/auth"
	"github.com/spartak030506-hash/shop-backend/internal/config"
	"github.com/spartak030506-hash/shop-backend/internal/event"
	httphandler "github.com/spartak030506-hash/shop-backend/internal/handler/http"
	"github.com/spartak030506-hash/shop-backend/internal/repository/postgres"
	"github.com/spartak030506-hash/shop-backend/internal/service"
	"github.com/spartak030506-hash/shop-backend/migrations"
	"github.com/spartak030506-hash/shop-backend/pkg/database"
	"github.com/spartak030506-hash/shop-backend/pkg/health"
	"github.com/spartak030506-hash/shop-backend/pkg/kafka"
	"github.com/spartak030506-hash/shop-backend/pkg/logger"
	"github.com/spartak030506-hash/shop-backend/pkg/middleware"
)

// App owns the service's long-lived resources and its HTTP server.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	producer *kafka.Producer
	auth     *service.AuthService
	server   *http.Server
}

// noopPublisher drops events when Kafka is disabled.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, *kafka.Event) error { return nil }

// New builds the application: connects to PostgreSQL, runs migrations and
// wires repositories, services and the HTTP router.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	pool, err := database.NewPostgresPoolWithLogger(ctx, cfg.PostgresPoolConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	var producer *kafka.Producer
	var publisher event.Publisher = noopPublisher{}
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(kafka.DefaultProducerConfig(cfg.Kafka.Brokers), log)
		publisher = producer
	}
	events := event.NewProducer(publisher, log)

	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewRefreshSessionRepository(pool)

	tokens := auth.NewTokenManager(
		cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL,
		cfg.JWT.Issuer,
	)

	authSvc := service.NewAuthService(userRepo, sessionRepo, tokens, events, log)
	userSvc := service.NewUserService(userRepo, sessionRepo, events, log)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if producer != nil {
		healthHandler.Register("kafka", producer.Ping)
	}

	router := httphandler.NewRouter(httphandler.RouterConfig{
		AuthHandler: httphandler.NewAuthHandler(authSvc, log),
		UserHandler: httphandler.NewUserHandler(userSvc, log),
		Health:      healthHandler,
		ValidateToken: func(token string) (*middleware.Claims, error) {
			claims, err := authSvc.ValidateAccessToken(token)
			if err != nil {
				return nil, err
			}
			return &middleware.Claims{
				UserID: claims.UserID.String(),
				Email:  claims.Email,
				Role:   claims.Role,
			}, nil
		},
		Logger:      log,
		ServiceName: cfg.ServiceName,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		producer: producer,
		auth:     authSvc,
		server:   server,
	}, nil
}

// Run starts the HTTP server and the session pruning loop, then blocks until
// ctx is cancelled and shutdown completes.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting",
			slog.String("addr", a.server.Addr),
			slog.String("environment", a.cfg.Environment),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go a.pruneLoop(ctx)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close failed", slog.String("error", err.Error()))
		}
	}

	a.pool.Close()
	a.logger.Info("shutdown complete")
	return nil
}

// pruneLoop periodically removes expired refresh sessions.
func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.auth.PruneExpiredSessions(ctx); err != nil {
				a.logger.Error("session pruning failed", slog.String("error", err.Error()))
			}
		}
	}
}
