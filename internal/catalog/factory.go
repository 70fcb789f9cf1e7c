package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/garimto81/archive-analyzer/internal/config"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// NewCatalogFromConfig creates a Catalog implementation based on the
// database config type.
func NewCatalogFromConfig(cfg config.DatabaseConfig) (tracker.Catalog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		dbPath := filepath.Join(cfg.DataDir, "catalog.db")
		return NewSQLiteCatalog(dbPath)
	case "memory":
		return NewSQLiteCatalog(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
