package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retrolearn/retrolearn/internal/gateway/cache"
	"github.com/retrolearn/retrolearn/internal/gateway/handlers"
	"github.com/retrolearn/retrolearn/internal/gateway/ledger"
	"github.com/retrolearn/retrolearn/internal/gateway/providers"
	"github.com/retrolearn/retrolearn/internal/shared/config"
	"github.com/retrolearn/retrolearn/internal/shared/database"
	"github.com/retrolearn/retrolearn/internal/shared/logging"
	"github.com/retrolearn/retrolearn/internal/shared/redis"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	log.Infof("Starting RetroLearn functions on port %s (env: %s)", cfg.Port, cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Info("Connected to PostgreSQL")

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Connected to Redis")

	// Usage ledger and provider chains
	usage := ledger.New(db)
	registry := providers.NewRegistry(cfg)
	orchestrator := providers.NewOrchestrator(usage, cfg.AttemptTimeout)
	for _, op := range config.Operations {
		chain := registry.Chain(op)
		names := make([]string, len(chain))
		for i, a := range chain {
			names[i] = a.Name() + "/" + a.Model()
		}
		log.WithField("chain", names).Infof("Configured %s", op)
	}

	// Initialize cache
	var cacheTTL time.Duration
	if cfg.CacheEnabled {
		cacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	resultCache := cache.New(redisClient, cacheTTL)

	// Initialize handlers
	functions := handlers.NewFunctionsHandler(db, registry, orchestrator, resultCache, redisClient, cfg.TranscribeDailyLimit)
	middleware := handlers.NewMiddleware(cfg.JWTSecret, redisClient, cfg.RateLimitPerMinute)

	// The write deadline outlives the handler budget so timeouts are reported.
	budget := cfg.RequestBudget()
	log.Infof("Request budget %s (%s per attempt)", budget, cfg.AttemptTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(middleware, functions, budget),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: budget + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("Server listening on http://localhost:%s%s", cfg.Port, handlers.BasePath)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}

	// Flush pending usage records before closing the database.
	usage.Wait()

	log.Info("Server stopped")
}
