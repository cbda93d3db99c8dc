package ident

import (
	"log/slog"

	"github.com/xraph/ident/plugin"
	"github.com/xraph/ident/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithDomainAssigner sets the collaborator that picks a domain for principals
// created without one. Defaults to ScopeDomainAssigner.
func WithDomainAssigner(d DomainAssigner) Option { return func(e *Engine) { e.domains = d } }

// WithPlugin registers a plugin with the engine.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) { e.pending = append(e.pending, x) }
}
