// Package backend selects the persistence implementation from configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/config"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store/bigquery"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store/memory"
	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/store/sqlite"
)

// New returns the store named by cfg.Backend: "memory", "sqlite" or "bigquery".
func New(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("backend.New: sqlite: %w", err)
		}
		return s, nil
	case "bigquery":
		s, err := bigquery.New(ctx, cfg.GCPProject, cfg.BQDataset)
		if err != nil {
			return nil, fmt.Errorf("backend.New: bigquery: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("backend.New: unknown backend %q", cfg.Backend)
	}
}
