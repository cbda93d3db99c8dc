// Package middleware provides HTTP middleware that gates requests on the
// caller being a known ident principal.
package middleware

import (
	"encoding/json"
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/ident"
	"github.com/xraph/ident/principal"
)

// RequirePrincipal resolves the authenticated forge user id as a
// connector-local id of connectorID and rejects the request with 403 when it
// maps to no principal of kind. Storage failures are returned to forge.
func RequirePrincipal(eng *ident.Engine, kind principal.Kind, connectorID string) forge.Middleware {
	return requirePrincipal(eng, kind, connectorID, func(*principal.Principal) bool { return true })
}

// RequireDomain is RequirePrincipal restricted to principals of domain.
func RequireDomain(eng *ident.Engine, kind principal.Kind, connectorID, domain string) forge.Middleware {
	return requirePrincipal(eng, kind, connectorID, func(p *principal.Principal) bool {
		return p.Domain == domain
	})
}

func requirePrincipal(eng *ident.Engine, kind principal.Kind, connectorID string, allow func(*principal.Principal) bool) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			localID := forge.UserIDFromContext(ctx.Context())
			if localID == "" {
				return denyResponse(ctx)
			}

			res, err := eng.Resolver(kind)
			if err != nil {
				return err
			}
			p, err := res.Resolve(ctx.Context(), localID, connectorID)
			switch {
			case err == nil:
			case errors.Is(err, ident.ErrNotFound), errors.Is(err, ident.ErrValidation):
				return denyResponse(ctx)
			default:
				return err
			}

			if !allow(p) {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(403)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "unknown principal"})
}
