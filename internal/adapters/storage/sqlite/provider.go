// Package sqlite provides SQLite storage adapter for the gateway.
package sqlite

import (
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/storage"
	"github.com/tjfontaine/frenet-gateway/internal/storage/sqldb"
)

// Provider implements ports.StorageProvider using SQLite.
// It wraps the sqldb implementation.
type Provider struct {
	*sqldb.Store
}

// NewProvider creates a new SQLite storage provider, creating the database
// directory when needed.
func NewProvider(path string) (*Provider, error) {
	if err := storage.EnsureDir(path); err != nil {
		return nil, err
	}

	store, err := sqldb.NewSQLite(path)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Store: store,
	}, nil
}

// Ensure Provider implements ports.StorageProvider at compile time.
var _ ports.StorageProvider = (*Provider)(nil)
