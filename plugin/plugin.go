// Package plugin defines the plugin system for ident.
// Plugins are notified of lifecycle events (principal created, partitions
// updated, principal deleted, operation failed) and can react: audit
// logging, metrics, outbound notifications.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/ident/principal"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Principal lifecycle hooks
// ──────────────────────────────────────────────────

// PrincipalCreated is called after a principal and all of its partitions
// have been committed.
type PrincipalCreated interface {
	OnPrincipalCreated(ctx context.Context, p *principal.Principal) error
}

// PartitionsUpdated is called after a batch of connector-local id changes
// has been committed. localIDs maps connectorID -> new connectorLocalID.
type PartitionsUpdated interface {
	OnPartitionsUpdated(ctx context.Context, kind principal.Kind, principalID string, localIDs map[string]string) error
}

// PrincipalDeleted is called after a delete, including deletes of
// principals that did not exist.
type PrincipalDeleted interface {
	OnPrincipalDeleted(ctx context.Context, kind principal.Kind, principalID string) error
}

// PrincipalResolved is called after a connector-local record was resolved
// to its principal.
type PrincipalResolved interface {
	OnPrincipalResolved(ctx context.Context, connectorID string, p *principal.Principal) error
}

// ──────────────────────────────────────────────────
// Operation hooks
// ──────────────────────────────────────────────────

// OperationCompleted is called once per resolver operation, successful or
// not. err is the classified error returned to the caller.
type OperationCompleted interface {
	OnOperationCompleted(ctx context.Context, kind principal.Kind, op string, elapsed time.Duration, err error) error
}

// OperationFailed is called when a resolver operation returns an error.
type OperationFailed interface {
	OnOperationFailed(ctx context.Context, kind principal.Kind, op string, err error) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
