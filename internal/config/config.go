package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds everything the assistant needs from the environment.
type Config struct {
	// Store backend
	Backend      string // "memory", "sqlite" or "bigquery"
	SQLiteDBPath string

	// BigQuery backend
	GCPProject string
	BQDataset  string

	// Oracle
	GeminiModel string

	// Dialog tuning
	HistoryWindow  int // conversation turns re-injected into oracle prompts
	MaxResponseLen int // hard cap applied by the output sanitizer
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Backend:      getEnv("JARVIS_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("JARVIS_SQLITE_PATH", "./data/jarvis.db"),

		GCPProject: getEnv("JARVIS_GCP_PROJECT", ""),
		BQDataset:  getEnv("JARVIS_BQ_DATASET", "jarvis"),

		GeminiModel: getEnv("JARVIS_GEMINI_MODEL", "gemini-2.0-flash"),

		HistoryWindow:  getEnvInt("JARVIS_HISTORY_WINDOW", 5),
		MaxResponseLen: getEnvInt("JARVIS_MAX_RESPONSE_LEN", 8000),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "sqlite database path cannot be empty when using the sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create sqlite database directory '%s': %v", dir, err))
				}
			}
		}
	case "bigquery":
		if c.GCPProject == "" {
			errs = append(errs, "JARVIS_GCP_PROJECT is required when using the bigquery backend")
		}
		if c.BQDataset == "" {
			errs = append(errs, "JARVIS_BQ_DATASET cannot be empty when using the bigquery backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid backend '%s': must be one of [memory sqlite bigquery]", c.Backend))
	}

	if c.GeminiModel == "" {
		errs = append(errs, "gemini model name cannot be empty")
	}
	if c.HistoryWindow < 0 || c.HistoryWindow > 50 {
		errs = append(errs, fmt.Sprintf("invalid history window %d: must be between 0 and 50", c.HistoryWindow))
	}
	if c.MaxResponseLen < 100 {
		errs = append(errs, fmt.Sprintf("invalid max response length %d: must be at least 100", c.MaxResponseLen))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
