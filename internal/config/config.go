package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the JobScout server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Scraper  ScraperConfig
	Scorer   ScorerConfig
	Notify   NotifyConfig
	Sweep    SweepConfig
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

type ScraperConfig struct {
	Timeout       time.Duration
	UserAgent     string
	MaxCandidates int
}

type ScorerConfig struct {
	Provider  string
	Timeout   time.Duration
	CallDelay time.Duration
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type NotifyConfig struct {
	SlackWebhookURL string
	MaxDigestItems  int
}

type SweepConfig struct {
	TickInterval     time.Duration
	ToleranceMinutes int
}

var validProviders = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("JOBSCOUT_PORT", 8080),
			Env:  envString("JOBSCOUT_ENV", "development"),
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
		Scraper: ScraperConfig{
			Timeout:       envDuration("SCRAPER_TIMEOUT", 20*time.Second),
			UserAgent:     envString("SCRAPER_USER_AGENT", "jobscout/1.0"),
			MaxCandidates: envInt("SCRAPER_MAX_CANDIDATES", 100),
		},
		Scorer: ScorerConfig{
			Provider:  os.Getenv("SCORER_PROVIDER"),
			Timeout:   envDurationSecs("SCORER_TIMEOUT_SECS", 60*time.Second),
			CallDelay: envDuration("SCORER_CALL_DELAY", 3*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Notify: NotifyConfig{
			SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
			MaxDigestItems:  envInt("NOTIFY_MAX_DIGEST_ITEMS", 10),
		},
		Sweep: SweepConfig{
			TickInterval:     envDuration("SWEEP_TICK_INTERVAL", 5*time.Minute),
			ToleranceMinutes: envInt("SWEEP_TOLERANCE_MINUTES", 4),
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

	if c.Scorer.Provider == "" {
		return fmt.Errorf("SCORER_PROVIDER is required")
	}
	if !validProviders[c.Scorer.Provider] {
		return fmt.Errorf("SCORER_PROVIDER must be one of ollama, openai, anthropic, mock; got %q", c.Scorer.Provider)
	}

	if c.Scorer.Provider == "openai" && c.Scorer.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when SCORER_PROVIDER is openai")
	}
	if c.Scorer.Provider == "anthropic" && c.Scorer.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when SCORER_PROVIDER is anthropic")
	}

	if c.Notify.SlackWebhookURL != "" &&
		!strings.HasPrefix(c.Notify.SlackWebhookURL, "http://") &&
		!strings.HasPrefix(c.Notify.SlackWebhookURL, "https://") {
		return fmt.Errorf("SLACK_WEBHOOK_URL must start with http:// or https://, got %q", c.Notify.SlackWebhookURL)
	}

	if c.Sweep.TickInterval < time.Minute {
		return fmt.Errorf("SWEEP_TICK_INTERVAL must be at least 1m, got %s", c.Sweep.TickInterval)
	}
	if c.Sweep.ToleranceMinutes < 0 || c.Sweep.ToleranceMinutes > 30 {
		return fmt.Errorf("SWEEP_TOLERANCE_MINUTES must be between 0 and 30, got %d", c.Sweep.ToleranceMinutes)
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
