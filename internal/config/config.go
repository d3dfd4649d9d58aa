package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PainScope server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Reddit   RedditConfig
	Analysis AnalysisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// LLMConfig points at a local OpenAI-compatible endpoint (LM Studio, vLLM,
// ollama's compatibility server). Local inference on large batches is slow,
// hence the long default request timeout.
type LLMConfig struct {
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

type RedditConfig struct {
	BaseURL   string
	UserAgent string
}

type AnalysisConfig struct {
	BatchSize int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PAINSCOPE_PORT", 8080),
			Env:  envString("PAINSCOPE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		LLM: LLMConfig{
			BaseURL:        envString("LLM_BASE_URL", "http://localhost:1234"),
			Model:          envString("LLM_MODEL", "local-model"),
			RequestTimeout: envDuration("LLM_REQUEST_TIMEOUT", 30*time.Minute),
			HealthTimeout:  envDuration("LLM_HEALTH_TIMEOUT", 5*time.Second),
		},
		Reddit: RedditConfig{
			BaseURL:   envString("REDDIT_BASE_URL", "https://www.reddit.com"),
			UserAgent: envString("REDDIT_USER_AGENT", "painscope/1.0 (by /u/painscope)"),
		},
		Analysis: AnalysisConfig{
			BatchSize: envInt("ANALYSIS_BATCH_SIZE", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("LLM_BASE_URL must start with http:// or https://, got %q", c.LLM.BaseURL)
	}

	if c.Analysis.BatchSize <= 0 {
		return fmt.Errorf("ANALYSIS_BATCH_SIZE must be positive, got %d", c.Analysis.BatchSize)
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
