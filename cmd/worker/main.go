package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/tubefeed/internal/config"
	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/gmail"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/ranking"
	"github.com/ignite/tubefeed/internal/store"
	"github.com/ignite/tubefeed/internal/worker"
	"github.com/ignite/tubefeed/internal/youtube"
)

func main() {
	log.Println("Starting tubefeed pipeline worker...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateForWorker(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid redis URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("WARNING: redis unreachable at startup: %v (caches and limits fail open)", err)
	} else {
		log.Println("Connected to redis")
	}
	cancel()

	st := store.New(db)
	jobs := queue.New(db, cfg.Queues.EmailProcess.BackoffBase())
	limiter := queue.NewRateLimiter(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Gmail: one mailbox per user credential, built on demand.
	oauthCfg := gmail.OAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, "")
	mailboxFactory := func(ctx context.Context, user *domain.User) (gmail.Mailbox, error) {
		return gmail.NewGoogleMailbox(ctx, oauthCfg, user)
	}
	synchronizer := gmail.NewSynchronizer(st, jobs, mailboxFactory,
		cfg.Sync.QueryFilter, int64(cfg.Sync.InitialSyncLimit), cfg.Queues.EmailProcess.MaxAttempts)

	// YouTube enrichment client.
	lister, err := youtube.NewAPILister(ctx, cfg.YouTube.APIKey)
	if err != nil {
		log.Fatalf("Failed to create youtube client: %v", err)
	}
	ytClient := youtube.NewClient(lister, redisClient, youtube.Options{
		BatchSize:         cfg.YouTube.BatchSize,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		QuotaUnitsPerDay:  cfg.YouTube.QuotaUnitsPerDay,
		FailureThreshold:  cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:      cfg.CircuitBreaker.ResetTimeout(),
		CacheTTL:          cfg.YouTube.CacheTTL(),
	})

	ranker := ranking.NewRanker(ranking.Weights{
		Sender:       cfg.Ranking.Weights.Sender,
		Thread:       cfg.Ranking.Weights.Thread,
		Freshness:    cfg.Ranking.Weights.Freshness,
		Topic:        cfg.Ranking.Weights.Topic,
		NoisePenalty: cfg.Ranking.Weights.NoisePenalty,
	}, cfg.Ranking.WatchNowThreshold, cfg.Ranking.SaveThreshold)

	// Stage handlers.
	syncHandler := worker.NewInboxSyncHandler(st, synchronizer, redisClient, db)
	processor := worker.NewEmailProcessor(st, jobs, mailboxFactory,
		cfg.Queues.Enrich.MaxAttempts, cfg.Queues.RankCompute.MaxAttempts)
	enricher := worker.NewMetadataEnricher(st, jobs, ytClient, cfg.Queues.RankCompute.MaxAttempts)
	scorer := worker.NewLinkScorer(st, ranker, cfg.Ranking.FreshnessHalfLifeDays)

	runner := worker.NewRunner(jobs, limiter)
	runner.Register(worker.Registration{
		Queue:       domain.QueueInboxSync,
		Concurrency: cfg.Queues.InboxSync.Concurrency,
		Handler:     syncHandler.Handle,
	})
	runner.Register(worker.Registration{
		Queue:       domain.QueueEmailProcess,
		Concurrency: cfg.Queues.EmailProcess.Concurrency,
		Handler:     processor.Handle,
	})
	runner.Register(worker.Registration{
		Queue:       domain.QueueEnrich,
		Concurrency: cfg.Queues.Enrich.Concurrency,
		Handler:     enricher.Handle,
		RateLimit:   cfg.Queues.Enrich.RatePerWindow,
		RateWindow:  cfg.Queues.Enrich.RateWindow(),
	})
	runner.Register(worker.Registration{
		Queue:       domain.QueueRankCompute,
		Concurrency: cfg.Queues.RankCompute.Concurrency,
		Handler:     scorer.Handle,
	})

	// Background maintenance.
	scheduler := worker.NewSyncScheduler(st, jobs, cfg.Sync.Interval(), cfg.Queues.InboxSync.MaxAttempts)
	recovery := queue.NewRecoveryWorker(db)
	retention := queue.NewRetentionWorker(db)

	go scheduler.Start(ctx)
	go recovery.Start(ctx)
	go retention.Start(ctx)

	log.Println("Worker pools starting")
	runner.Start(ctx)
	log.Println("Worker shut down")
}
