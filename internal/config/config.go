package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the sitescope server.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Vision    VisionConfig
	Queue     QueueConfig
	Pricing   PricingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL        string
	SummaryTTL time.Duration
}

// VisionConfig selects and tunes the two vision providers and the embedder.
type VisionConfig struct {
	LabelProvider     string
	VisionProvider    string
	EmbeddingProvider string
	Timeout           time.Duration
	DefaultConfidence float64
	RatePerSec        float64
	FetchTimeout      time.Duration
	MaxRedirects      int
	GCV               GCVConfig
	OpenAI            OpenAIConfig
}

type GCVConfig struct {
	APIKey   string
	Endpoint string
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	VisionModel    string
	EmbeddingModel string
}

type QueueConfig struct {
	LockExpiry    time.Duration
	MaxAttempts   int
	BatchSize     int
	WorkerID      string
	SweepSchedule string
}

// PricingConfig overrides the headline pricing constants. Zero leaves the default.
type PricingConfig struct {
	LaborMinLow   float64
	LaborMinHigh  float64
	PaintBaseRate float64
}

type RateLimitConfig struct {
	PerMinute int
}

var validLabelProviders = map[string]bool{
	"gcv":  true,
	"mock": true,
}

var validVisionProviders = map[string]bool{
	"openai": true,
	"mock":   true,
}

var validEmbeddingProviders = validVisionProviders

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file (or the file named by ENV_FILE) is loaded first when present;
// variables already set in the environment win.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	if err := loadDotEnv(envString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PORT", 8080),
			Env:  envString("APP_ENV", "development"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "json")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:        os.Getenv("REDIS_URL"),
			SummaryTTL: envDuration("SUMMARY_CACHE_TTL", 5*time.Minute),
		},
		Vision: VisionConfig{
			LabelProvider:     envString("LABEL_PROVIDER", "gcv"),
			VisionProvider:    envString("VISION_PROVIDER", "openai"),
			EmbeddingProvider: envString("EMBEDDING_PROVIDER", "openai"),
			Timeout:           envDurationSecs("VISION_TIMEOUT_SECS", 60*time.Second),
			DefaultConfidence: envFloat("VISION_DEFAULT_CONFIDENCE", 0.5),
			RatePerSec:        envFloat("VISION_RATE_PER_SEC", 2),
			FetchTimeout:      envDuration("IMAGE_FETCH_TIMEOUT", 20*time.Second),
			MaxRedirects:      envInt("IMAGE_MAX_REDIRECTS", 5),
			GCV: GCVConfig{
				APIKey:   os.Getenv("GCV_API_KEY"),
				Endpoint: envString("GCV_ENDPOINT", "https://vision.googleapis.com/v1/images:annotate"),
			},
			OpenAI: OpenAIConfig{
				APIKey:         os.Getenv("OPENAI_API_KEY"),
				BaseURL:        os.Getenv("OPENAI_BASE_URL"),
				VisionModel:    envString("OPENAI_VISION_MODEL", "gpt-4o"),
				EmbeddingModel: envString("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			},
		},
		Queue: QueueConfig{
			LockExpiry:    envDuration("QUEUE_LOCK_EXPIRY", 2*time.Minute),
			MaxAttempts:   envInt("QUEUE_MAX_ATTEMPTS", 5),
			BatchSize:     envInt("QUEUE_BATCH_SIZE", 10),
			WorkerID:      os.Getenv("QUEUE_WORKER_ID"),
			SweepSchedule: os.Getenv("QUEUE_SWEEP_SCHEDULE"),
		},
		Pricing: PricingConfig{
			LaborMinLow:   envFloat("PRICING_LABOR_MIN_LOW", 150),
			LaborMinHigh:  envFloat("PRICING_LABOR_MIN_HIGH", 200),
			PaintBaseRate: envFloat("PRICING_PAINT_BASE_RATE", 4),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MIN", 120),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	if !validLabelProviders[c.Vision.LabelProvider] {
		return fmt.Errorf("LABEL_PROVIDER must be one of gcv, mock; got %q", c.Vision.LabelProvider)
	}
	if c.Vision.LabelProvider == "gcv" && c.Vision.GCV.APIKey == "" {
		return fmt.Errorf("GCV_API_KEY is required when LABEL_PROVIDER is gcv")
	}
	if !strings.HasPrefix(c.Vision.GCV.Endpoint, "http://") && !strings.HasPrefix(c.Vision.GCV.Endpoint, "https://") {
		return fmt.Errorf("GCV_ENDPOINT must start with http:// or https://, got %q", c.Vision.GCV.Endpoint)
	}

	if !validVisionProviders[c.Vision.VisionProvider] {
		return fmt.Errorf("VISION_PROVIDER must be one of openai, mock; got %q", c.Vision.VisionProvider)
	}
	if c.Vision.VisionProvider == "openai" && c.Vision.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when VISION_PROVIDER is openai")
	}
	if !validEmbeddingProviders[c.Vision.EmbeddingProvider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of openai, mock; got %q", c.Vision.EmbeddingProvider)
	}
	if c.Vision.EmbeddingProvider == "openai" && c.Vision.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER is openai")
	}

	if c.Vision.DefaultConfidence < 0 || c.Vision.DefaultConfidence > 1 {
		return fmt.Errorf("VISION_DEFAULT_CONFIDENCE must be within [0, 1], got %v", c.Vision.DefaultConfidence)
	}
	if c.Vision.MaxRedirects < 0 {
		return fmt.Errorf("IMAGE_MAX_REDIRECTS must not be negative, got %d", c.Vision.MaxRedirects)
	}

	if c.Queue.LockExpiry <= 0 {
		return fmt.Errorf("QUEUE_LOCK_EXPIRY must be positive, got %s", c.Queue.LockExpiry)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be at least 1, got %d", c.Queue.BatchSize)
	}
	if c.Queue.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Queue.SweepSchedule); err != nil {
			return fmt.Errorf("QUEUE_SWEEP_SCHEDULE is not a valid cron spec: %w", err)
		}
	}

	if c.Pricing.LaborMinLow < 0 || c.Pricing.LaborMinHigh < c.Pricing.LaborMinLow {
		return fmt.Errorf("PRICING_LABOR_MIN_HIGH (%v) must be >= PRICING_LABOR_MIN_LOW (%v) >= 0",
			c.Pricing.LaborMinHigh, c.Pricing.LaborMinLow)
	}
	if c.Pricing.PaintBaseRate <= 0 {
		return fmt.Errorf("PRICING_PAINT_BASE_RATE must be positive, got %v", c.Pricing.PaintBaseRate)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
