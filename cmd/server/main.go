// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/gamesite/internal/auth"
	"github.com/jason-s-yu/gamesite/internal/cache"
	"github.com/jason-s-yu/gamesite/internal/config"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/handlers"
	"github.com/jason-s-yu/gamesite/internal/lobby"
	"github.com/jason-s-yu/gamesite/internal/realtime"
	"github.com/jason-s-yu/gamesite/internal/views"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Log)

	ttl, err := cfg.Auth.TokenTTL()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.Auth.JWTPrivateKeyPath != "" && cfg.Auth.JWTPublicKeyPath != "" {
		err = auth.InitFromPath(cfg.Auth.JWTPrivateKeyPath, cfg.Auth.JWTPublicKeyPath, ttl)
	} else {
		logger.Warn("JWT key paths not set, generating ephemeral signing keys")
		err = auth.Init(ttl)
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Backend.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	store := database.NewStore(pool)
	if cfg.Server.MigrateOnStart {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		logger.Info("database schema applied")
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	renderer, err := views.New()
	if err != nil {
		logger.Fatalf("views: %v", err)
	}

	policy := realtime.DefaultPolicy()
	transport := realtime.NewRedisTransport(rdb, logger, policy.SubscribeTimeout)
	rooms := lobby.NewService(store, realtime.NewRedisPublisher(rdb), logger)

	srv := handlers.NewServer(handlers.Options{
		Logger:       logger,
		Views:        renderer,
		Users:        store,
		Rooms:        rooms,
		BackendURL:   cfg.Backend.BackendURL,
		PublicAPIKey: cfg.Backend.PublicAPIKey,
		NewTransport: func() realtime.Transport { return transport },
		Policy:       policy,
		HealthChecks: map[string]handlers.HealthCheck{
			"database": store.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})
	router := srv.Routes()
	srv.LogRoutes(router)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("invalid LOG_LEVEL %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
