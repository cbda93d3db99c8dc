// Package extension provides a Forge extension entry point for ident.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/ident"
	"github.com/xraph/ident/api"
	"github.com/xraph/ident/observability"
	"github.com/xraph/ident/plugin"
	"github.com/xraph/ident/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "ident"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Unique identity federation across user and group connectors"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts ident as a Forge extension.
type Extension struct {
	config     Config
	eng        *ident.Engine
	apiHandler *api.API
	logger     *slog.Logger
	identOpts  []ident.Option
	plugins    []plugin.Plugin
	audit      bool
}

// New creates an ident Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying ident engine.
func (e *Extension) Engine() *ident.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*ident.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("ident: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	eng, err := e.buildEngine(func() (store.Store, error) {
		return forge.Inject[store.Store](fapp.Container())
	})
	if err != nil {
		return err
	}
	e.eng = eng

	e.apiHandler = api.New(eng, fapp.Router(), api.WithBasePath(e.config.BasePath))

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("ident: register routes: %w", err)
		}
	}

	return nil
}

// buildEngine assembles the engine from the extension settings. A store
// found through lookup is used unless an option supplies one.
func (e *Extension) buildEngine(lookup func() (store.Store, error)) (*ident.Engine, error) {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := e.config.engineConfig()
	if err != nil {
		return nil, fmt.Errorf("ident: extension config: %w", err)
	}

	opts := make([]ident.Option, 0, len(e.identOpts)+len(e.plugins)+5)
	opts = append(opts,
		ident.WithLogger(logger),
		ident.WithConfig(cfg),
		ident.WithDomainAssigner(ident.ScopeDomainAssigner{Fallback: e.config.DefaultDomain}),
	)

	var lookupErr error
	if lookup != nil {
		s, err := lookup()
		if err == nil {
			opts = append(opts, ident.WithStore(s))
		}
		lookupErr = err
	}

	opts = append(opts, e.identOpts...)

	for _, x := range e.plugins {
		opts = append(opts, ident.WithPlugin(x))
	}
	if e.audit {
		opts = append(opts, ident.WithPlugin(observability.NewAudit(logger)))
	}

	eng, err := ident.NewEngine(opts...)
	if errors.Is(err, ident.ErrNoStore) && lookupErr != nil {
		return nil, fmt.Errorf("ident: create engine: %w: resolve store: %w", err, lookupErr)
	}
	if err != nil {
		return nil, fmt.Errorf("ident: create engine: %w", err)
	}
	return eng, nil
}

// Start runs migrations if enabled and verifies the store is reachable.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("ident: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("ident: migration failed: %w", err)
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the ident engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("ident: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all ident API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
