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
)

// Config contains all runtime settings for the discussion service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	LogLevel                 string
	LogFormat                string

	AllowAnyOrigin bool

	AgentMode            string
	AgentModel           string
	SentimentModel       string
	AgentHTTPURL         string
	AgentTimeout         time.Duration
	AgentMaxOutputTokens int
	OpenAIAPIKey         string
	OpenAIBaseURL        string

	ScrapeMode       string
	FirecrawlAPIKey  string
	FirecrawlBaseURL string
	ScrapeTimeout    time.Duration
	ChromePath       string

	ContextMaxChars int
	MemoryTurns     int
}

// LoadDotEnv populates the process environment from a dotenv file. Variables
// already present in the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "roundtable"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "text"),
		AllowAnyOrigin:   false,

		AgentMode:            envOrDefault("AGENT_MODE", "auto"),
		AgentModel:           envOrDefault("AGENT_MODEL", "gpt-5-mini"),
		SentimentModel:       stringsTrimSpace("SENTIMENT_MODEL"),
		AgentHTTPURL:         stringsTrimSpace("AGENT_HTTP_URL"),
		AgentMaxOutputTokens: 1200,
		OpenAIAPIKey:         stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:        stringsTrimSpace("OPENAI_BASE_URL"),

		ScrapeMode:       envOrDefault("SCRAPE_MODE", "firecrawl"),
		FirecrawlAPIKey:  stringsTrimSpace("FIRECRAWL_API_KEY"),
		FirecrawlBaseURL: envOrDefault("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
		ChromePath:       stringsTrimSpace("CHROME_PATH"),

		// Upstream calls block without a deadline unless one is configured.
		AgentTimeout:  0,
		ScrapeTimeout: 0,

		ContextMaxChars:          500,
		MemoryTurns:              10,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentTimeout, err = durationFromEnv("AGENT_TIMEOUT", cfg.AgentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ScrapeTimeout, err = durationFromEnv("SCRAPE_TIMEOUT", cfg.ScrapeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentMaxOutputTokens, err = intFromEnv("AGENT_MAX_OUTPUT_TOKENS", cfg.AgentMaxOutputTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextMaxChars, err = intFromEnv("CONTEXT_MAX_CHARS", cfg.ContextMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryTurns, err = intFromEnv("DISCUSSION_MEMORY_TURNS", cfg.MemoryTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SentimentModel == "" {
		cfg.SentimentModel = cfg.AgentModel
	}
	cfg.AgentMode = strings.ToLower(cfg.AgentMode)
	cfg.ScrapeMode = strings.ToLower(cfg.ScrapeMode)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot produce a working service.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.AgentTimeout < 0 || c.ScrapeTimeout < 0 {
		return fmt.Errorf("AGENT_TIMEOUT and SCRAPE_TIMEOUT must be >= 0")
	}
	if c.AgentMaxOutputTokens <= 0 {
		return fmt.Errorf("AGENT_MAX_OUTPUT_TOKENS must be positive")
	}
	if c.ContextMaxChars <= 0 {
		return fmt.Errorf("CONTEXT_MAX_CHARS must be positive")
	}
	if c.MemoryTurns < 0 {
		return fmt.Errorf("DISCUSSION_MEMORY_TURNS must be >= 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	switch c.AgentMode {
	case "auto", "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("AGENT_MODE=openai requires OPENAI_API_KEY")
		}
	case "http":
		if c.AgentHTTPURL == "" {
			return fmt.Errorf("AGENT_MODE=http requires AGENT_HTTP_URL")
		}
	default:
		return fmt.Errorf("invalid AGENT_MODE: %q (expected auto|openai|http|mock)", c.AgentMode)
	}

	switch c.ScrapeMode {
	case "browser", "mock":
	case "firecrawl":
		if c.FirecrawlAPIKey == "" {
			return fmt.Errorf("FIRECRAWL_API_KEY is not set (required when SCRAPE_MODE=firecrawl)")
		}
	default:
		return fmt.Errorf("invalid SCRAPE_MODE: %q (expected firecrawl|browser|mock)", c.ScrapeMode)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
