// Package store defines the aggregate persistence interface for ident.
// Backends: Memory, Postgres, SQLite and MongoDB.
package store

import (
	"context"

	"github.com/xraph/ident/principal"
)

// Store is the aggregate persistence interface a backend implements.
type Store interface {
	principal.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
