package ident

import "context"

type contextKey int

const (
	ctxKeyDomain contextKey = iota
)

// WithDomain returns a context carrying the domain new principals are
// assigned to. Use this for standalone mode (without Forge).
func WithDomain(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, ctxKeyDomain, domain)
}

func domainFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyDomain).(string)
	if !ok {
		return ""
	}
	return v
}
