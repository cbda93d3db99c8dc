package ident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/ident/plugin"
	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store"
)

// Engine owns the store, plugins and configuration shared by the user and
// group resolvers. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	domains DomainAssigner

	pending []plugin.Plugin

	users  *Resolver
	groups *Resolver
}

// ErrNoStore is returned by NewEngine when no option supplies a store.
var ErrNoStore = errors.New("ident: store is required")

// NewEngine creates a new ident engine with the given options.
// A store is required.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:  slog.Default(),
		config:  DefaultConfig(),
		domains: ScopeDomainAssigner{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if err := e.config.validate(); err != nil {
		return nil, err
	}

	e.plugins = plugin.NewRegistry(e.logger)
	for _, p := range e.pending {
		e.plugins.Register(p)
	}
	e.pending = nil

	e.users = &Resolver{kind: principal.KindUser, eng: e}
	e.groups = &Resolver{kind: principal.KindGroup, eng: e}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Users returns the resolver for user principals.
func (e *Engine) Users() *Resolver { return e.users }

// Groups returns the resolver for group principals.
func (e *Engine) Groups() *Resolver { return e.groups }

// Resolver returns the resolver for kind.
func (e *Engine) Resolver(kind principal.Kind) (*Resolver, error) {
	switch kind {
	case principal.KindUser:
		return e.users, nil
	case principal.KindGroup:
		return e.groups, nil
	default:
		return nil, fmt.Errorf("%w: unknown principal kind %q", ErrValidation, kind)
	}
}

// AssignDomain asks the configured DomainAssigner for the domain of p.
func (e *Engine) AssignDomain(ctx context.Context, kind principal.Kind, p *principal.Principal) (string, error) {
	d, err := e.domains.AssignDomain(ctx, kind, p)
	if err != nil {
		return "", &Error{Op: OpCreate, Kind: kind, PrincipalID: p.ID, Class: ErrValidation, Err: err}
	}
	return d, nil
}

// Start verifies the store is reachable.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("ident: ping store: %w", err)
	}
	return nil
}

// Stop notifies plugins of shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return nil
}
