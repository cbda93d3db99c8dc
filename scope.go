package ident

import (
	"context"
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/ident/principal"
)

// DomainAssigner supplies the domain label of a principal at creation. The
// resolver stores the label but never computes it.
type DomainAssigner interface {
	AssignDomain(ctx context.Context, kind principal.Kind, p *principal.Principal) (string, error)
}

// DomainAssignerFunc adapts a function to DomainAssigner.
type DomainAssignerFunc func(ctx context.Context, kind principal.Kind, p *principal.Principal) (string, error)

// AssignDomain calls f.
func (f DomainAssignerFunc) AssignDomain(ctx context.Context, kind principal.Kind, p *principal.Principal) (string, error) {
	return f(ctx, kind, p)
}

// ScopeDomainAssigner uses the organization of the forge.Scope on the
// context, then a domain set with WithDomain, then Fallback.
type ScopeDomainAssigner struct {
	Fallback string
}

var errNoDomain = errors.New("no domain in scope or context")

// AssignDomain implements DomainAssigner.
func (a ScopeDomainAssigner) AssignDomain(ctx context.Context, _ principal.Kind, _ *principal.Principal) (string, error) {
	if s, ok := forge.ScopeFrom(ctx); ok && s.OrgID() != "" {
		return s.OrgID(), nil
	}
	if d := domainFromContext(ctx); d != "" {
		return d, nil
	}
	if a.Fallback != "" {
		return a.Fallback, nil
	}
	return "", errNoDomain
}
