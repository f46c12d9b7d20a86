package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all environment-driven settings, including the scoring
// tunables the engine exposes for operational adjustment.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Collaborators
	RedisURL      string `env:"REDIS_URL"`
	ReviewSource  string `env:"REVIEW_SOURCE" envDefault:"http"`
	ReviewsAPIURL string `env:"REVIEWS_API_URL"`
	DatabaseURL   string `env:"DATABASE_URL"`
	APIKey        string `env:"API_KEY"`

	// Sentiment classifier
	SentimentAPIURL   string        `env:"SENTIMENT_API_URL"`
	SentimentAPIToken string        `env:"SENTIMENT_API_TOKEN"`
	SentimentTimeout  time.Duration `env:"SENTIMENT_TIMEOUT" envDefault:"3s"`
	SentimentRPS      float64       `env:"SENTIMENT_RPS" envDefault:"20"`

	// Scoring tunables
	DecayFactor        float64       `env:"DECAY_FACTOR" envDefault:"0.1"`
	TimeUnit           time.Duration `env:"TIME_UNIT" envDefault:"720h"`
	SentimentWeight    float64       `env:"SENTIMENT_WEIGHT" envDefault:"0.3"`
	RecentWindow       time.Duration `env:"RECENT_WINDOW" envDefault:"2160h"`
	BaseCredibility    float64       `env:"BASE_CREDIBILITY" envDefault:"70"`
	DefaultCredibility float64       `env:"DEFAULT_CREDIBILITY" envDefault:"50"`

	// Cache tiers
	LocalCacheTTL       time.Duration `env:"LOCAL_CACHE_TTL" envDefault:"5m"`
	DistributedCacheTTL time.Duration `env:"DISTRIBUTED_CACHE_TTL" envDefault:"60m"`
	CacheOpTimeout      time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"2s"`

	// Websocket fan-out
	MaxClientsPerSubject int `env:"MAX_CLIENTS_PER_SUBJECT" envDefault:"100"`

	// Ledger event feed
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"ledger.review.submitted"`
	KafkaGroupID   string   `env:"KAFKA_GROUP_ID" envDefault:"reputation-engine"`
	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"256"`
}

// Load parses and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.ReviewSource {
	case "http":
		if cfg.ReviewsAPIURL == "" {
			return nil, fmt.Errorf("REVIEWS_API_URL is required when REVIEW_SOURCE=http")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when REVIEW_SOURCE=postgres")
		}
	default:
		return nil, fmt.Errorf("REVIEW_SOURCE must be \"http\" or \"postgres\", got %q", cfg.ReviewSource)
	}

	if cfg.DecayFactor <= 0 {
		return nil, fmt.Errorf("DECAY_FACTOR must be positive")
	}
	if cfg.TimeUnit <= 0 {
		return nil, fmt.Errorf("TIME_UNIT must be positive")
	}
	if cfg.SentimentWeight < 0 || cfg.SentimentWeight > 1 {
		return nil, fmt.Errorf("SENTIMENT_WEIGHT must be in [0, 1]")
	}
	if cfg.LocalCacheTTL <= 0 || cfg.DistributedCacheTTL <= 0 {
		return nil, fmt.Errorf("cache TTLs must be positive")
	}
	if cfg.EventQueueSize < 1 {
		return nil, fmt.Errorf("EVENT_QUEUE_SIZE must be at least 1")
	}
	if cfg.MaxClientsPerSubject < 1 {
		return nil, fmt.Errorf("MAX_CLIENTS_PER_SUBJECT must be at least 1")
	}

	return cfg, nil
}
