// Package common provides shared utilities for ETF Compass
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for ETF Compass
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Clients     ClientsConfig   `toml:"clients"`
	AI          AIConfig        `toml:"ai"`
	Fetch       FetchConfig     `toml:"fetch"`
	Market      MarketConfig    `toml:"market"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
	Auth        AuthConfig      `toml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	WriteTimeout string `toml:"write_timeout"` // must cover a full synchronous tier run
	ShutdownWait string `toml:"shutdown_wait"`
}

// GetWriteTimeout returns the HTTP write timeout.
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 30*time.Minute)
}

// GetShutdownWait returns how long in-flight requests get on shutdown.
func (c *ServerConfig) GetShutdownWait() time.Duration {
	return parseDuration(c.ShutdownWait, 10*time.Second)
}

// StorageConfig holds the SurrealDB connection settings.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "surrealdb" (default) or "memory"
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ClientsConfig holds upstream API client configurations
type ClientsConfig struct {
	Polygon PolygonConfig  `toml:"polygon"`
	OpenAI  ProviderConfig `toml:"openai"`
	Claude  ProviderConfig `toml:"claude"`
	XAI     ProviderConfig `toml:"xai"`
	Gemini  ProviderConfig `toml:"gemini"`
}

// PolygonConfig holds market data API configuration
type PolygonConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	RateLimit  int    `toml:"rate_limit"` // requests per minute
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
}

// GetTimeout parses and returns the timeout duration
func (c *PolygonConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// ProviderConfig holds credentials and model selection for one AI provider.
type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}

// AIConfig selects the routing mode and the provider assigned to each role.
type AIConfig struct {
	Mode             string `toml:"mode"` // "hybrid" or "single"
	Scoring          string `toml:"scoring"`
	Explanation      string `toml:"explanation"`
	Sentiment        string `toml:"sentiment"`
	Fallback         string `toml:"fallback"`
	BatchConcurrency int    `toml:"batch_concurrency"`
	EnableFake       bool   `toml:"enable_fake"`
	ScoreTopPicks    bool   `toml:"score_top_picks"`
}

// FetchConfig controls the orchestrator pacing and the configured tiers.
type FetchConfig struct {
	CallDelay       string       `toml:"call_delay"`
	BatchDelay      string       `toml:"batch_delay"`
	LeaseTTL        string       `toml:"lease_ttl"`
	FirstFetchDays  int          `toml:"first_fetch_days"`
	IncrementalDays int          `toml:"incremental_days"`
	Tiers           []TierConfig `toml:"tiers"`
}

// GetCallDelay returns the pause between consecutive symbols.
func (c *FetchConfig) GetCallDelay() time.Duration {
	return parseDuration(c.CallDelay, 12*time.Second)
}

// GetBatchDelay returns the pause between batches.
func (c *FetchConfig) GetBatchDelay() time.Duration {
	return parseDuration(c.BatchDelay, 5*time.Second)
}

// GetLeaseTTL returns how long a tier lease is held before it lapses.
func (c *FetchConfig) GetLeaseTTL() time.Duration {
	return parseDuration(c.LeaseTTL, DefaultLeaseTTL)
}

// TierConfig describes one symbol tier.
type TierConfig struct {
	Name          string   `toml:"name"`
	SymbolSet     string   `toml:"symbol_set"` // tracked, top50, all
	Symbols       []string `toml:"symbols"`    // explicit list, overrides SymbolSet
	Cadence       string   `toml:"cadence"`    // intraday or daily
	BatchSize     int      `toml:"batch_size"`
	Collections   []string `toml:"collections"`
	QuoteTTL      string   `toml:"quote_ttl"`
	HistoricalTTL string   `toml:"historical_ttl"`
	TopPicksTTL   string   `toml:"top_picks_ttl"`
}

// GetQuoteTTL returns the TTL for quotes written by the tier.
func (t *TierConfig) GetQuoteTTL() time.Duration {
	return parseDuration(t.QuoteTTL, TTLIntraday)
}

// GetHistoricalTTL returns the TTL for historical series written by the tier.
func (t *TierConfig) GetHistoricalTTL() time.Duration {
	return parseDuration(t.HistoricalTTL, TTLIntraday)
}

// GetTopPicksTTL returns the TTL for the ranked snapshot.
func (t *TierConfig) GetTopPicksTTL() time.Duration {
	return parseDuration(t.TopPicksTTL, TTLIntraday)
}

// MarketConfig describes the exchange session used by the market hours gate.
type MarketConfig struct {
	Timezone  string   `toml:"timezone"`
	OpenHour  int      `toml:"open_hour"`
	CloseHour int      `toml:"close_hour"`
	Holidays  []string `toml:"holidays"` // YYYY-MM-DD
}

// SchedulerConfig enables the in-process cron trigger. Keys of Tiers are tier
// names, values are cron specs with a seconds field.
type SchedulerConfig struct {
	Enabled  bool              `toml:"enabled"`
	Timezone string            `toml:"timezone"`
	Tiers    map[string]string `toml:"tiers"`
	Cleanup  string            `toml:"cleanup"`
}

// AuthConfig holds the trigger credentials.
type AuthConfig struct {
	CronSecret     string `toml:"cron_secret"`
	CronSecretHash string `toml:"cron_secret_hash"` // bcrypt hash, alternative to cron_secret
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   "surrealdb",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "etf",
			Database:  "compass",
			Username:  "root",
			Password:  "root",
		},
		Clients: ClientsConfig{
			Polygon: PolygonConfig{
				BaseURL:    "https://api.polygon.io/v2",
				RateLimit:  5,
				Timeout:    "30s",
				MaxRetries: 3,
			},
			OpenAI: ProviderConfig{Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1", Timeout: "60s"},
			Claude: ProviderConfig{Model: "claude-3-5-sonnet-latest", BaseURL: "https://api.anthropic.com", Timeout: "60s"},
			XAI:    ProviderConfig{Model: "grok-2", BaseURL: "https://api.x.ai/v1", Timeout: "60s"},
			Gemini: ProviderConfig{Model: "gemini-2.0-flash", Timeout: "60s"},
		},
		AI: AIConfig{
			Mode:             "hybrid",
			Scoring:          "openai",
			Explanation:      "claude",
			Sentiment:        "xai",
			Fallback:         "openai",
			BatchConcurrency: 5,
		},
		Fetch: FetchConfig{
			CallDelay:       "12s",
			BatchDelay:      "5s",
			LeaseTTL:        "15m",
			FirstFetchDays:  90,
			IncrementalDays: 1,
			Tiers:           DefaultTiers(),
		},
		Market: MarketConfig{
			Timezone:  "America/New_York",
			OpenHour:  8,
			CloseHour: 18,
			Holidays: []string{
				"2025-01-01", "2025-01-20", "2025-02-17", "2025-04-18", "2025-05-26",
				"2025-07-04", "2025-09-01", "2025-11-27", "2025-11-28", "2025-12-25",
			},
		},
		Scheduler: SchedulerConfig{
			Timezone: "America/New_York",
			Tiers: map[string]string{
				"realtime": "0 */30 8-17 * * MON-FRI",
				"top":      "0 15,45 8-17 * * MON-FRI",
				"all":      "0 0 6 * * *",
			},
			Cleanup: "0 30 2 * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Outputs:    []string{"console"},
			FilePath:   "./logs/etf-compass.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// DefaultTiers returns the built-in realtime, top and all tiers.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{
			Name:          "realtime",
			SymbolSet:     "tracked",
			Cadence:       "intraday",
			BatchSize:     5,
			Collections:   []string{"quotes", "historical", "top_picks"},
			QuoteTTL:      "35m",
			HistoricalTTL: "35m",
			TopPicksTTL:   "35m",
		},
		{
			Name:        "top",
			SymbolSet:   "top50",
			Cadence:     "intraday",
			BatchSize:   5,
			Collections: []string{"quotes"},
			QuoteTTL:    "35m",
		},
		{
			Name:          "all",
			SymbolSet:     "all",
			Cadence:       "daily",
			BatchSize:     10,
			Collections:   []string{"quotes", "historical"},
			QuoteTTL:      "25h",
			HistoricalTTL: "25h",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Tiers come from files when any declare them; defaults are restored below
	config.Fetch.Tiers = nil

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if len(config.Fetch.Tiers) == 0 {
		config.Fetch.Tiers = DefaultTiers()
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ETF_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("ETF_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("ETF_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("ETF_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("ETF_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ETF_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("ETF_STORAGE_NAMESPACE"); v != "" {
		config.Storage.Namespace = v
	}
	if v := os.Getenv("ETF_STORAGE_DATABASE"); v != "" {
		config.Storage.Database = v
	}
	if v := os.Getenv("ETF_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("ETF_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := firstEnv("POLYGON_API_KEY", "ETF_POLYGON_API_KEY"); v != "" {
		config.Clients.Polygon.APIKey = v
	}
	if v := firstEnv("OPENAI_API_KEY", "ETF_OPENAI_API_KEY"); v != "" {
		config.Clients.OpenAI.APIKey = v
	}
	if v := firstEnv("ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "ETF_CLAUDE_API_KEY"); v != "" {
		config.Clients.Claude.APIKey = v
	}
	if v := firstEnv("XAI_API_KEY", "ETF_XAI_API_KEY"); v != "" {
		config.Clients.XAI.APIKey = v
	}
	if v := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY", "ETF_GEMINI_API_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}

	if v := os.Getenv("AI_MODE"); v != "" {
		config.AI.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("AI_SCORING_PROVIDER"); v != "" {
		config.AI.Scoring = strings.ToLower(v)
	}
	if v := os.Getenv("AI_EXPLANATION_PROVIDER"); v != "" {
		config.AI.Explanation = strings.ToLower(v)
	}
	if v := os.Getenv("AI_SENTIMENT_PROVIDER"); v != "" {
		config.AI.Sentiment = strings.ToLower(v)
	}
	if v := os.Getenv("AI_FALLBACK_PROVIDER"); v != "" {
		config.AI.Fallback = strings.ToLower(v)
	}

	if v := firstEnv("CRON_SECRET", "ETF_CRON_SECRET"); v != "" {
		config.Auth.CronSecret = v
	}

	if v := os.Getenv("ETF_SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Scheduler.Enabled = b
		}
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Tier returns the named tier configuration.
func (c *Config) Tier(name string) (TierConfig, bool) {
	for _, t := range c.Fetch.Tiers {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TierConfig{}, false
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of settings that must be present for a
// production deployment.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Clients.Polygon.APIKey == "" {
		missing = append(missing, "clients.polygon.api_key")
	}
	if c.Auth.CronSecret == "" && c.Auth.CronSecretHash == "" {
		missing = append(missing, "auth.cron_secret")
	}
	if c.Clients.OpenAI.APIKey == "" && c.Clients.Claude.APIKey == "" &&
		c.Clients.XAI.APIKey == "" && c.Clients.Gemini.APIKey == "" && !c.AI.EnableFake {
		missing = append(missing, "clients.<provider>.api_key")
	}
	return missing
}
