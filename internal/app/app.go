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

	"go-auth-service/internal/cache"
	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/event"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
	tokenRepo := repository.NewTokenRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	slog.Info("database ready")

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	cleanups := []func(){backgroundCancel, db.Close}

	// Revocation checks must be visible to every instance, so a shared Redis
	// backs the blacklist whenever one is configured.
	var revocations cache.RevocationList
	if cfg.RedisURL != "" {
		redisList, err := cache.NewRedisRevocationList(context.Background(), cfg.RedisURL)
		if err != nil {
			backgroundCancel()
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cleanups = append(cleanups, func() { _ = redisList.Close() })
		revocations = redisList
		slog.Info("revocation list backed by redis")
	} else {
		memoryList := cache.NewMemoryRevocationList()
		go memoryList.StartSweeper(backgroundCtx, time.Minute)
		revocations = memoryList
		slog.Warn("revocation list is process-local; configure REDIS_URL for multi-instance deployments")
	}

	secret := []byte(cfg.JWTSecret)
	issuer := token.NewIssuer(secret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL, cfg.JWTVerifyTTL)
	validator := token.NewValidator(secret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTClockSkew, revocations)

	bus := event.NewBus()
	auditService := service.NewAuditService(auditRepo, bus)
	go auditService.Run(backgroundCtx)

	credentialService := service.NewCredentialService(userRepo, bus, cfg.LockoutMaxAttempts, cfg.LockoutDuration)
	authService := service.NewAuthService(credentialService, userRepo, tokenRepo, issuer, validator, revocations, bus, cfg.JWTRefreshTTL)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	handlers := router.Handlers{
		Auth:  handler.NewAuthHandler(authService),
		User:  handler.NewUserHandler(credentialService, authService),
		Audit: handler.NewAuditHandler(auditService),
	}

	go runTokenRetentionSweep(backgroundCtx, tokenRepo, cfg.TokenRetention, cfg.TokenSweepInterval)

	health := func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}

	appRouter := router.New(cfg, authMiddleware, handlers, health)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		db:           db,
		cleanupFuncs: cleanups,
	}, nil
}

// runTokenRetentionSweep deletes refresh-token rows that expired longer than
// the retention window ago. Recently expired rows stay so reuse incidents
// remain traceable through the replaced-by chain.
func runTokenRetentionSweep(ctx context.Context, tokens *repository.TokenRepository, retention time.Duration, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			removed, err := tokens.DeleteExpiredBefore(ctx, cutoff)
			if err != nil {
				slog.Warn("token retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("token retention sweep", "removed", removed)
			}
		}
	}
}

func (a *App) Run() error {
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

	if err := a.server.Shutdown(ctx); err != nil {
		for _, cleanup := range a.cleanupFuncs {
			cleanup()
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
