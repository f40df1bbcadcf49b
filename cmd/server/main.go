package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poer2023/uptime-sync/internal/api"
	"github.com/poer2023/uptime-sync/internal/cache"
	"github.com/poer2023/uptime-sync/internal/config"
	"github.com/poer2023/uptime-sync/internal/database"
	"github.com/poer2023/uptime-sync/internal/incident"
	"github.com/poer2023/uptime-sync/internal/jobs"
	"github.com/poer2023/uptime-sync/internal/kuma"
	"github.com/poer2023/uptime-sync/internal/stats"
	"github.com/poer2023/uptime-sync/internal/store"
	"github.com/poer2023/uptime-sync/internal/syncer"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Get underlying SQL database for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Wire the pipeline: source client -> store -> sync job
	st := store.New(db)
	source := kuma.NewClient(cfg.Kuma)
	syncJob := syncer.NewJob(source, st, cfg.Sync)

	// Read path: aggregator and detector behind the shared cache
	readCache := cache.New(cache.DefaultTTL)
	aggregator := stats.New(st)
	detector := incident.NewDetector(st)

	// In-process scheduler; disable it when an external cron drives the
	// trigger endpoint instead.
	if cfg.Sync.SchedulerEnabled {
		scheduler := jobs.NewScheduler(syncJob, readCache, cfg.Sync.Schedule)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		defer scheduler.Stop()
	}

	// Setup API router
	router := api.NewRouter(cfg, api.Deps{
		Syncer:    syncJob,
		Stats:     aggregator,
		Incidents: detector,
		Cache:     readCache,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
