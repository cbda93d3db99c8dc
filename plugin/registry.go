package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/ident/principal"
)

// Named entry types pair a hook with the plugin name for logging.

type principalCreatedEntry struct {
	name string
	hook PrincipalCreated
}
type partitionsUpdatedEntry struct {
	name string
	hook PartitionsUpdated
}
type principalDeletedEntry struct {
	name string
	hook PrincipalDeleted
}
type principalResolvedEntry struct {
	name string
	hook PrincipalResolved
}
type operationCompletedEntry struct {
	name string
	hook OperationCompleted
}
type operationFailedEntry struct {
	name string
	hook OperationFailed
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
//
// Registration happens during engine construction; emits are safe for
// concurrent use afterwards.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	principalCreated   []principalCreatedEntry
	partitionsUpdated  []partitionsUpdatedEntry
	principalDeleted   []principalDeletedEntry
	principalResolved  []principalResolvedEntry
	operationCompleted []operationCompletedEntry
	operationFailed    []operationFailedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(PrincipalCreated); ok {
		r.principalCreated = append(r.principalCreated, principalCreatedEntry{name, h})
	}
	if h, ok := p.(PartitionsUpdated); ok {
		r.partitionsUpdated = append(r.partitionsUpdated, partitionsUpdatedEntry{name, h})
	}
	if h, ok := p.(PrincipalDeleted); ok {
		r.principalDeleted = append(r.principalDeleted, principalDeletedEntry{name, h})
	}
	if h, ok := p.(PrincipalResolved); ok {
		r.principalResolved = append(r.principalResolved, principalResolvedEntry{name, h})
	}
	if h, ok := p.(OperationCompleted); ok {
		r.operationCompleted = append(r.operationCompleted, operationCompletedEntry{name, h})
	}
	if h, ok := p.(OperationFailed); ok {
		r.operationFailed = append(r.operationFailed, operationFailedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Principal event emitters
// ──────────────────────────────────────────────────

// EmitPrincipalCreated notifies all plugins that implement PrincipalCreated.
func (r *Registry) EmitPrincipalCreated(ctx context.Context, p *principal.Principal) {
	for _, e := range r.principalCreated {
		if err := e.hook.OnPrincipalCreated(ctx, p); err != nil {
			r.logHookError("OnPrincipalCreated", e.name, err)
		}
	}
}

// EmitPartitionsUpdated notifies all plugins that implement PartitionsUpdated.
func (r *Registry) EmitPartitionsUpdated(ctx context.Context, kind principal.Kind, principalID string, localIDs map[string]string) {
	for _, e := range r.partitionsUpdated {
		if err := e.hook.OnPartitionsUpdated(ctx, kind, principalID, localIDs); err != nil {
			r.logHookError("OnPartitionsUpdated", e.name, err)
		}
	}
}

// EmitPrincipalDeleted notifies all plugins that implement PrincipalDeleted.
func (r *Registry) EmitPrincipalDeleted(ctx context.Context, kind principal.Kind, principalID string) {
	for _, e := range r.principalDeleted {
		if err := e.hook.OnPrincipalDeleted(ctx, kind, principalID); err != nil {
			r.logHookError("OnPrincipalDeleted", e.name, err)
		}
	}
}

// EmitPrincipalResolved notifies all plugins that implement PrincipalResolved.
func (r *Registry) EmitPrincipalResolved(ctx context.Context, connectorID string, p *principal.Principal) {
	for _, e := range r.principalResolved {
		if err := e.hook.OnPrincipalResolved(ctx, connectorID, p); err != nil {
			r.logHookError("OnPrincipalResolved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Operation event emitters
// ──────────────────────────────────────────────────

// EmitOperationCompleted notifies all plugins that implement OperationCompleted.
func (r *Registry) EmitOperationCompleted(ctx context.Context, kind principal.Kind, op string, elapsed time.Duration, opErr error) {
	for _, e := range r.operationCompleted {
		if err := e.hook.OnOperationCompleted(ctx, kind, op, elapsed, opErr); err != nil {
			r.logHookError("OnOperationCompleted", e.name, err)
		}
	}
}

// EmitOperationFailed notifies all plugins that implement OperationFailed.
func (r *Registry) EmitOperationFailed(ctx context.Context, kind principal.Kind, op string, opErr error) {
	for _, e := range r.operationFailed {
		if err := e.hook.OnOperationFailed(ctx, kind, op, opErr); err != nil {
			r.logHookError("OnOperationFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
