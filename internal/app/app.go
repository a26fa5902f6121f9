package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"go-rbac-auth/internal/config"
	"go-rbac-auth/internal/database"
	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/handler"
	"go-rbac-auth/internal/mailer"
	"go-rbac-auth/internal/metrics"
	"go-rbac-auth/internal/middleware"
	"go-rbac-auth/internal/repository"
	"go-rbac-auth/internal/router"
	"go-rbac-auth/internal/scheduler"
	"go-rbac-auth/internal/service"
)

type App struct {
	server       *http.Server
	scheduler    *scheduler.Scheduler
	cleanupFuncs []func(ctx context.Context)
}

func New(cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	permissionRepo := repository.NewPermissionRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	slog.Info("database ready")

	var appMetrics *metrics.Metrics
	if cfg.MetricsEnabled {
		appMetrics = metrics.New(prometheus.NewRegistry())
		appMetrics.ObservePool(pool)
	}

	bus := event.NewBus()
	busCtx, busCancel := context.WithCancel(context.Background())
	var observers []event.Observer
	if appMetrics != nil {
		observers = append(observers, appMetrics)
	}
	go event.Consume(busCtx, bus, observers...)

	opts := []service.Option{
		service.WithEvents(bus),
		service.WithBcryptCost(cfg.BcryptCost),
		service.WithTokenTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		service.WithResetWindow(cfg.PasswordResetTTL),
		service.WithResetURL(cfg.PasswordResetURL),
		service.WithDebug(cfg.AppDebug),
	}

	sessionService, err := service.NewSessionService(sessionRepo, userRepo, cfg.TokenSecret, opts...)
	if err != nil {
		busCancel()
		db.Close()
		return nil, fmt.Errorf("failed to initialize session service: %w", err)
	}
	credentialService := service.NewCredentialService(userRepo, roleRepo, sessionService, opts...)
	rbacService := service.NewRBACService(roleRepo, permissionRepo, userRepo, opts...)
	authorizer := service.NewAuthorizer(rbacService, opts...)
	authService := service.NewAuthService(credentialService, sessionService, rbacService, opts...)
	resetService := service.NewResetService(resetRepo, credentialService, sessionService, newNotifier(cfg), opts...)

	if cfg.SeedAdminEmail != "" {
		created, err := credentialService.SeedAdmin(context.Background(), cfg.SeedAdminName, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
		if err != nil {
			busCancel()
			db.Close()
			return nil, fmt.Errorf("failed to seed admin user: %w", err)
		}
		if created {
			slog.Info("seeded admin user", "email", cfg.SeedAdminEmail)
		}
	}

	var recorder scheduler.ReapRecorder
	if appMetrics != nil {
		recorder = appMetrics
	}
	reaper, err := scheduler.New(cfg.ReaperSchedule, recorder,
		scheduler.Job{Kind: "sessions", Reaper: sessionService},
		scheduler.Job{Kind: "password_resets", Reaper: resetService},
	)
	if err != nil {
		busCancel()
		db.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	rateLimitOpts := []middleware.RateLimitOption{}
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			busCancel()
			db.Close()
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		rateLimitOpts = append(rateLimitOpts, middleware.WithSharedAuthCounter(middleware.NewRedisCounter(redisClient, "rbac-auth")))
		slog.Info("auth rate limit shared through redis")
	}
	if appMetrics != nil {
		rateLimitOpts = append(rateLimitOpts, middleware.WithOnLimited(appMetrics.RateLimited))
	}
	rateLimiter := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM, rateLimitOpts...)

	handler.SetDebug(cfg.AppDebug)
	authMiddleware := middleware.NewAuthMiddleware(sessionService, authorizer)

	appRouter := router.New(cfg, authMiddleware, rateLimiter, appMetrics, router.Handlers{
		Auth:       handler.NewAuthHandler(authService, credentialService),
		Password:   handler.NewPasswordHandler(resetService),
		Role:       handler.NewRoleHandler(rbacService),
		Permission: handler.NewPermissionHandler(rbacService),
		User:       handler.NewUserHandler(credentialService, rbacService),
		Example:    handler.NewExampleHandler(),
		Health:     handler.NewHealthHandler(db),
		Docs:       handler.NewDocsHandler(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:    server,
		scheduler: reaper,
		cleanupFuncs: []func(ctx context.Context){
			func(ctx context.Context) {
				if err := reaper.Stop(ctx); err != nil {
					slog.Warn("scheduler did not stop in time", "error", err)
				}
			},
			func(context.Context) {
				resetService.Wait()
			},
			func(context.Context) {
				busCancel()
			},
			func(context.Context) {
				if redisClient != nil {
					_ = redisClient.Close()
				}
			},
			func(context.Context) {
				db.Close()
			},
		},
	}, nil
}

func newNotifier(cfg *config.Config) service.Notifier {
	if cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST not set, password reset mail will only be logged")
		return mailer.LogMailer{}
	}
	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

func (a *App) Run() error {
	a.scheduler.RunOnce(context.Background())
	a.scheduler.Start()

	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	// Handlers are drained before their dependencies go away.
	for _, cleanup := range a.cleanupFuncs {
		cleanup(ctx)
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
