// Package config loads run settings from the environment and the source
// list from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Selection
	ItemMin           int `envconfig:"ITEM_MIN" default:"8"`
	ItemMax           int `envconfig:"ITEM_MAX" default:"12"`
	MixMinEach        int `envconfig:"MIX_MIN_EACH" default:"2"`
	MaxItemsPerSource int `envconfig:"MAX_ITEMS_PER_SOURCE" default:"2"`

	// Windows
	LookbackHours    int `envconfig:"LOOKBACK_HOURS" default:"24"`
	SeenWindowDays   int `envconfig:"SEEN_WINDOW_DAYS" default:"7"`
	RelaxWindowHours int `envconfig:"RELAX_WINDOW_HOURS" default:"24"`

	// Collection
	SourcesPath          string        `envconfig:"SOURCES_PATH" default:"configs/sources.yaml"`
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	HTTPProxyURL         string        `envconfig:"HTTP_PROXY_URL"`
	NearbyDateDepth      int           `envconfig:"NEARBY_DATE_DEPTH" default:"5"`
	ContainerSearchDepth int           `envconfig:"CONTAINER_SEARCH_DEPTH" default:"8"`
	PageFetchInterval    time.Duration `envconfig:"PAGE_FETCH_INTERVAL" default:"250ms"`
	PageCacheSize        int           `envconfig:"PAGE_CACHE_SIZE" default:"512"`
	PlatformCookie       string        `envconfig:"PLATFORM_COOKIE"`

	TitleSimilarity float64 `envconfig:"TITLE_SIMILARITY" default:"0.92"`

	// Ledger
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"data/state.db"`

	// Collaborators
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	MaxGeminiRequests int           `envconfig:"MAX_GEMINI_REQUESTS" default:"50"`
	DeliveryEnabled   bool          `envconfig:"DELIVERY_ENABLED" default:"false"`
	HandoffURL        string        `envconfig:"HANDOFF_URL"`
	RetryAttempts     int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay        time.Duration `envconfig:"RETRY_DELAY" default:"2s"`

	// App
	LogLevel             string `envconfig:"LOG_LEVEL" default:"info"`
	EnableHTTPMonitoring bool   `envconfig:"ENABLE_HTTP_MONITORING" default:"false"`
	MonitoringPort       string `envconfig:"MONITORING_PORT" default:"8080"`
}

// LoadEnv reads .env files from the working directory and next to
// refPath (its directory and that directory's parent). Variables already
// set in the environment win. Unreadable files are logged and skipped.
func LoadEnv(refPath string) {
	candidates := []string{".env"}
	if refPath != "" {
		dir := filepath.Dir(refPath)
		candidates = append(candidates, filepath.Join(dir, ".env"), filepath.Join(filepath.Dir(dir), ".env"))
	}

	seen := make(map[string]bool)
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			slog.Warn("failed to load env file", "path", abs, "error", err)
		}
	}
}

// Load reads settings from the environment (after LoadEnv) and validates
// them.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks bounds and lifts ItemMax to ItemMin when it is lower.
func (c *Config) Validate() error {
	if c.ItemMin < 0 {
		return fmt.Errorf("ITEM_MIN must be >= 0")
	}
	if c.ItemMax < c.ItemMin {
		c.ItemMax = c.ItemMin
	}
	if c.MixMinEach < 0 {
		return fmt.Errorf("MIX_MIN_EACH must be >= 0")
	}
	if c.LookbackHours < 1 {
		return fmt.Errorf("LOOKBACK_HOURS must be >= 1")
	}
	if c.TitleSimilarity <= 0 || c.TitleSimilarity > 1 {
		return fmt.Errorf("TITLE_SIMILARITY must be in (0, 1]")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be 'sqlite' or 'postgres'")
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

func (c *Config) SeenWindow() time.Duration {
	return time.Duration(c.SeenWindowDays) * 24 * time.Hour
}

func (c *Config) RelaxWindow() time.Duration {
	return time.Duration(c.RelaxWindowHours) * time.Hour
}
