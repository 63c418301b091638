package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/tubefeed/internal/api"
	"github.com/ignite/tubefeed/internal/config"
	"github.com/ignite/tubefeed/internal/evaluation"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/store"
)

func main() {
	log.Println("Starting tubefeed API server...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url (DATABASE_URL) is required")
	}

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
	}

	st := store.New(db)
	jobs := queue.New(db, cfg.Queues.EmailProcess.BackoffBase())
	harness := evaluation.NewHarness(st)
	health := api.NewHealthChecker(db, redisClient, jobs)

	server := api.NewServer(cfg.Server, api.NewHandlers(st, harness, health))

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
