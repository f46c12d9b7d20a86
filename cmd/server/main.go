package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ZulAmi/proofwork-reputation/internal/app"
	"github.com/ZulAmi/proofwork-reputation/internal/cache"
	"github.com/ZulAmi/proofwork-reputation/internal/config"
	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/events"
	"github.com/ZulAmi/proofwork-reputation/internal/hub"
	"github.com/ZulAmi/proofwork-reputation/internal/logging"
	"github.com/ZulAmi/proofwork-reputation/internal/redis"
	"github.com/ZulAmi/proofwork-reputation/internal/reviews"
	"github.com/ZulAmi/proofwork-reputation/internal/scoring"
	"github.com/ZulAmi/proofwork-reputation/internal/sentiment"
	"github.com/ZulAmi/proofwork-reputation/internal/server"
)

const evictionInterval = time.Minute

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupReviewSource(cfg *config.Config) (domain.ReviewSource, func(), *reviews.PostgresSource) {
	if cfg.ReviewSource == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		source, err := reviews.NewPostgresSource(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to review database", "error", err)
			os.Exit(1)
		}
		return source, source.Close, source
	}
	source := reviews.NewHTTPSource(cfg.ReviewsAPIURL, 10*time.Second)
	return source, func() {}, nil
}

func setupRedis(cfg *config.Config) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Reputation engine starting", "env", cfg.AppEnv, "port", cfg.Port)

	source, closeSource, pgSource := setupReviewSource(cfg)
	defer closeSource()

	localTier := cache.NewLocalTier(clock)
	stopEviction := localTier.StartEvictionTimer(evictionInterval)
	defer stopEviction()

	var (
		redisClient     *redis.Client
		distributedTier domain.CacheTier
	)
	if cfg.RedisURL != "" {
		redisClient = setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
		distributedTier = cache.NewRedisTier(redisClient.Underlying(), cfg.CacheOpTimeout)
	} else {
		slog.Warn("REDIS_URL not set, running with local cache tier only")
	}

	classifier := sentiment.NewClient(cfg.SentimentAPIURL, cfg.SentimentAPIToken, cfg.SentimentTimeout, cfg.SentimentRPS)

	svc := app.NewService(
		source,
		classifier,
		reviews.NoDisputes{},
		scoring.NewCredibilityEstimator(cfg.BaseCredibility, cfg.DefaultCredibility),
		scoring.NewScorer(scoring.Params{
			DecayFactor:     cfg.DecayFactor,
			TimeUnit:        cfg.TimeUnit,
			SentimentWeight: cfg.SentimentWeight,
			RecentWindow:    cfg.RecentWindow,
		}),
		localTier,
		distributedTier,
		cfg.LocalCacheTTL,
		cfg.DistributedCacheTTL,
		clock,
	)

	h := hub.NewHub(svc.GetReputation, clock, cfg.MaxClientsPerSubject)
	svc.SetBroadcaster(h)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if redisClient != nil {
		fanout := redis.NewFanout(redisClient, h)
		svc.SetPublisher(fanout)
		go fanout.Run(rootCtx)
	}

	listener := events.NewListener(cfg.EventQueueSize, svc.HandleReviewSubmitted)
	listener.Start(rootCtx)

	var consumer *events.KafkaConsumer
	if len(cfg.KafkaBrokers) > 0 {
		consumer = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, listener)
		go consumer.Run(rootCtx)
		slog.Info("Review feed consumer started", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	} else {
		slog.Warn("KAFKA_BROKERS not set, review events arrive via webhook only")
	}

	srv := server.NewServer(cfg, svc, h, listener)
	if redisClient != nil {
		srv.AddHealthCheck("redis", redisClient.Ping)
	}
	if pgSource != nil {
		srv.AddHealthCheck("postgres", pgSource.HealthCheck)
	}

	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelRoot()
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				slog.Error("Feed consumer close error", "error", err)
			}
		}
		listener.Stop()
		h.Stop()

		close(done)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
