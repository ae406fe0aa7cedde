package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JARVIS_SQLITE_PATH", filepath.Join(t.TempDir(), "jarvis.db"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend != "sqlite" {
		t.Errorf("default backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.HistoryWindow != 5 {
		t.Errorf("default history window = %d, want 5", cfg.HistoryWindow)
	}
	if cfg.MaxResponseLen != 8000 {
		t.Errorf("default max response len = %d, want 8000", cfg.MaxResponseLen)
	}
}

func baseConfig() *Config {
	return &Config{
		Backend:        "memory",
		SQLiteDBPath:   "jarvis.db",
		BQDataset:      "jarvis",
		GeminiModel:    "gemini-2.0-flash",
		HistoryWindow:  5,
		MaxResponseLen: 8000,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid memory backend",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend = "redis" },
			wantErr: "invalid backend",
		},
		{
			name: "bigquery without project",
			mutate: func(c *Config) {
				c.Backend = "bigquery"
				c.GCPProject = ""
			},
			wantErr: "JARVIS_GCP_PROJECT",
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.GeminiModel = "" },
			wantErr: "gemini model",
		},
		{
			name:    "negative history window",
			mutate:  func(c *Config) { c.HistoryWindow = -1 },
			wantErr: "history window",
		},
		{
			name:    "tiny response cap",
			mutate:  func(c *Config) { c.MaxResponseLen = 10 },
			wantErr: "max response length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
