package extension

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/ident"
	"github.com/xraph/ident/observability"
	"github.com/xraph/ident/plugin"
	"github.com/xraph/ident/store"
)

// ExtOption configures the ident Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.identOpts = append(e.identOpts, ident.WithStore(s))
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...ident.Option) ExtOption {
	return func(e *Extension) {
		e.identOpts = append(e.identOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithMetrics registers the Prometheus metrics plugin against reg.
func WithMetrics(reg prometheus.Registerer) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, observability.NewMetrics(reg))
	}
}

// WithAudit registers the audit plugin. The extension logger is used.
func WithAudit() ExtOption {
	return func(e *Extension) {
		e.audit = true
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
