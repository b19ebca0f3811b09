// Package storage opens the rewrite audit store selected by configuration.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
	"github.com/tjfontaine/frenet-gateway/internal/storage/memory"
	"github.com/tjfontaine/frenet-gateway/internal/storage/sqldb"
)

// Open returns the store described by cfg. A "none" store yields a nil
// provider and no error; rewrites are then only logged.
func Open(cfg config.StorageConfig) (ports.StorageProvider, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "./data/gateway.db"
		}
		if err := EnsureDir(path); err != nil {
			return nil, err
		}
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		dsn := cfg.Database.DSN
		if dsn == "" {
			return nil, fmt.Errorf("storage: postgres requires database.dsn")
		}
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "database":
		store, err := sqldb.New(sqldb.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("storage: unknown type %q", cfg.Type)
	}
}

// EnsureDir creates the parent directory of a SQLite database file.
// In-memory DSNs are left alone.
func EnsureDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return nil
}
