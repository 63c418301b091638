package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Gmail          GmailConfig          `yaml:"gmail"`
	YouTube        YouTubeConfig        `yaml:"youtube"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Ranking        RankingConfig        `yaml:"ranking"`
	Queues         QueuesConfig         `yaml:"queues"`
	Sync           SyncConfig           `yaml:"sync"`
	Evaluation     EvaluationConfig     `yaml:"evaluation"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the configured server host; SERVER_HOST overrides it for
// deployments that need to listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig holds the key-value store settings. Redis owns the metadata
// cache, the shared rate-limit counters, and the circuit-breaker state.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// GmailConfig holds Gmail API OAuth credentials and client settings.
type GmailConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c GmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// YouTubeConfig holds YouTube Data API settings for the enrichment client.
type YouTubeConfig struct {
	APIKey            string `yaml:"api_key"`
	BatchSize         int    `yaml:"batch_size"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	QuotaUnitsPerDay  int    `yaml:"quota_units_per_day"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c YouTubeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns the metadata cache TTL as a duration
func (c YouTubeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// CircuitBreakerConfig holds breaker tuning for the enrichment client.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	ResetTimeoutMS   int `yaml:"reset_timeout_ms"`
}

// ResetTimeout returns the open → half-open delay as a duration
func (c CircuitBreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMS) * time.Millisecond
}

// FeatureWeights holds the linear ranker weights. They should sum to 1.0
// but the ranker clamps the final score regardless.
type FeatureWeights struct {
	Sender       float64 `yaml:"sender"`
	Thread       float64 `yaml:"thread"`
	Freshness    float64 `yaml:"freshness"`
	Topic        float64 `yaml:"topic"`
	NoisePenalty float64 `yaml:"noise_penalty"`
}

// RankingConfig holds scoring and classification tuning.
type RankingConfig struct {
	FreshnessHalfLifeDays float64        `yaml:"freshness_half_life_days"`
	WatchNowThreshold     float64        `yaml:"watch_now_threshold"`
	SaveThreshold         float64        `yaml:"save_threshold"`
	Weights               FeatureWeights `yaml:"feature_weights"`
}

// QueueConfig holds per-queue delivery tuning.
type QueueConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	Concurrency    int `yaml:"concurrency"`
	BackoffBaseSec int `yaml:"backoff_base_sec"`

	// RatePerWindow/RateWindowSec express "max N jobs per window W".
	// Zero disables rate limiting for the queue.
	RatePerWindow int `yaml:"rate_per_window"`
	RateWindowSec int `yaml:"rate_window_sec"`
}

// BackoffBase returns the exponential backoff base as a duration
func (c QueueConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSec) * time.Second
}

// RateWindow returns the rate-limit window as a duration
func (c QueueConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSec) * time.Second
}

// QueuesConfig holds the tuning for each pipeline queue.
type QueuesConfig struct {
	InboxSync    QueueConfig `yaml:"inbox_sync"`
	EmailProcess QueueConfig `yaml:"email_process"`
	Enrich       QueueConfig `yaml:"enrich"`
	RankCompute  QueueConfig `yaml:"rank_compute"`
}

// SyncConfig holds inbox synchronizer scheduling and bounds.
type SyncConfig struct {
	IntervalSeconds  int    `yaml:"interval_seconds"`
	InitialSyncLimit int    `yaml:"initial_sync_limit"`
	QueryFilter      string `yaml:"query_filter"`
}

// Interval returns the sync scheduling interval as a duration
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// EvaluationConfig holds offline evaluation defaults.
type EvaluationConfig struct {
	KValues []int `yaml:"k_values"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero values with production defaults.
func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Gmail.TimeoutSeconds == 0 {
		cfg.Gmail.TimeoutSeconds = 30
	}
	if cfg.YouTube.BatchSize == 0 {
		cfg.YouTube.BatchSize = 50
	}
	if cfg.YouTube.RequestsPerSecond == 0 {
		cfg.YouTube.RequestsPerSecond = 10
	}
	if cfg.YouTube.QuotaUnitsPerDay == 0 {
		cfg.YouTube.QuotaUnitsPerDay = 10000
	}
	if cfg.YouTube.CacheTTLSeconds == 0 {
		cfg.YouTube.CacheTTLSeconds = 604800 // 7 days
	}
	if cfg.YouTube.TimeoutSeconds == 0 {
		cfg.YouTube.TimeoutSeconds = 30
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = 3
	}
	if cfg.CircuitBreaker.ResetTimeoutMS == 0 {
		cfg.CircuitBreaker.ResetTimeoutMS = 60000
	}
	if cfg.Ranking.FreshnessHalfLifeDays == 0 {
		cfg.Ranking.FreshnessHalfLifeDays = 30
	}
	if cfg.Ranking.WatchNowThreshold == 0 {
		cfg.Ranking.WatchNowThreshold = 0.7
	}
	if cfg.Ranking.SaveThreshold == 0 {
		cfg.Ranking.SaveThreshold = 0.4
	}
	if cfg.Ranking.Weights == (FeatureWeights{}) {
		cfg.Ranking.Weights = FeatureWeights{
			Sender:       0.3,
			Thread:       0.2,
			Freshness:    0.2,
			Topic:        0.2,
			NoisePenalty: 0.1,
		}
	}

	applyQueueDefaults(&cfg.Queues.InboxSync, 2)
	applyQueueDefaults(&cfg.Queues.EmailProcess, 5)
	applyQueueDefaults(&cfg.Queues.Enrich, 3)
	applyQueueDefaults(&cfg.Queues.RankCompute, 1)
	// The enrich queue stays inside the upstream request rate.
	if cfg.Queues.Enrich.RatePerWindow == 0 {
		cfg.Queues.Enrich.RatePerWindow = 10
		cfg.Queues.Enrich.RateWindowSec = 1
	}

	if cfg.Sync.IntervalSeconds == 0 {
		cfg.Sync.IntervalSeconds = 300
	}
	if cfg.Sync.InitialSyncLimit == 0 {
		cfg.Sync.InitialSyncLimit = 50
	}
	if cfg.Sync.QueryFilter == "" {
		cfg.Sync.QueryFilter = "youtube.com OR youtu.be"
	}
	if len(cfg.Evaluation.KValues) == 0 {
		cfg.Evaluation.KValues = []int{5, 10, 20}
	}
}

func applyQueueDefaults(q *QueueConfig, concurrency int) {
	if q.MaxAttempts == 0 {
		q.MaxAttempts = 3
	}
	if q.Concurrency == 0 {
		q.Concurrency = concurrency
	}
	if q.BackoffBaseSec == 0 {
		q.BackoffBaseSec = 2
	}
	if q.RateWindowSec == 0 && q.RatePerWindow > 0 {
		q.RateWindowSec = 1
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Gmail.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Gmail.ClientSecret = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}

	return cfg, nil
}

// ValidateForWorker checks that the credentials the pipeline process needs
// are present. Missing required values are fatal at startup.
func (cfg *Config) ValidateForWorker() error {
	var missing []string
	if cfg.Database.URL == "" {
		missing = append(missing, "database.url (DATABASE_URL)")
	}
	if cfg.Redis.URL == "" {
		missing = append(missing, "redis.url (REDIS_URL)")
	}
	if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
		missing = append(missing, "gmail client credentials (GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)")
	}
	if cfg.YouTube.APIKey == "" {
		missing = append(missing, "youtube.api_key (YOUTUBE_API_KEY)")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return nil
}
