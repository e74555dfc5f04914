package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inboxagent/sync-worker/internal/config"
	"github.com/inboxagent/sync-worker/internal/database"
	"github.com/inboxagent/sync-worker/internal/gmail"
	"github.com/inboxagent/sync-worker/internal/handlers"
	"github.com/inboxagent/sync-worker/internal/llm"
	"github.com/inboxagent/sync-worker/internal/repository"
	"github.com/inboxagent/sync-worker/internal/scheduler"
	"github.com/inboxagent/sync-worker/internal/syncer"
	"github.com/inboxagent/sync-worker/internal/watch"
	"github.com/inboxagent/sync-worker/internal/webhook"
	"github.com/inboxagent/sync-worker/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	jobRepo := repository.NewJobRepository(sqlDB, cfg.ClaimMode, cfg.MaxAttempts)
	userRepo := repository.NewUserRepository(db)
	stateRepo := repository.NewSyncStateRepository(db)
	labelRepo := repository.NewUserLabelRepository(db)

	// Initialize clients
	oauthClient := gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret)
	llmClient := llm.NewClient(cfg.OpenRouterAPIKey)

	router, err := syncer.LoadRuleRouter(cfg.RouteRulesPath)
	if err != nil {
		return err
	}

	// Register job handlers
	dispatcher := worker.NewDispatcher()
	h := handlers.New(cfg, jobRepo, userRepo, stateRepo, labelRepo, oauthClient, llmClient, router)
	h.Register(dispatcher)

	// Worker pool
	pool := worker.NewPool(cfg.WorkerConcurrency, jobRepo, userRepo, dispatcher)
	if err := pool.Start(); err != nil {
		return err
	}

	// Scheduler
	watchManager := watch.NewManager(userRepo, stateRepo, oauthClient, cfg.PubSubTopic)
	sched := scheduler.New(userRepo, jobRepo, watchManager, scheduler.Intervals{
		FallbackSync: time.Duration(cfg.FallbackSyncMinutes) * time.Minute,
		FullSync:     time.Duration(cfg.FullSyncHours) * time.Hour,
		WatchRenewal: time.Duration(cfg.WatchRenewalHours) * time.Hour,
	})
	if err := sched.Start(); err != nil {
		return err
	}

	// HTTP surface: webhook + admin endpoints
	srv := webhook.NewServer(userRepo, jobRepo, stateRepo, watchManager)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
	case err := <-httpErr:
		log.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	sched.Stop()
	pool.Stop()

	log.Println("Application stopped")
	return nil
}
