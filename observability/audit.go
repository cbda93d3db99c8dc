package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/xraph/ident/plugin"
	"github.com/xraph/ident/principal"
)

// Compile-time interface checks.
var (
	_ plugin.PrincipalCreated  = (*Audit)(nil)
	_ plugin.PartitionsUpdated = (*Audit)(nil)
	_ plugin.PrincipalDeleted  = (*Audit)(nil)
)

// Audit writes one structured record per committed mutation.
type Audit struct {
	logger *slog.Logger
}

// NewAudit returns an audit plugin writing to logger, or slog.Default when
// logger is nil.
func NewAudit(logger *slog.Logger) *Audit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Audit{logger: logger.With(slog.String("component", "ident.audit"))}
}

// Name implements plugin.Plugin.
func (a *Audit) Name() string { return "audit" }

// OnPrincipalCreated implements plugin.PrincipalCreated.
func (a *Audit) OnPrincipalCreated(ctx context.Context, p *principal.Principal) error {
	connectors := make([]string, len(p.Partitions))
	for i, part := range p.Partitions {
		connectors[i] = part.ConnectorID
	}
	a.logger.InfoContext(ctx, "principal created",
		slog.String("kind", string(p.Kind)),
		slog.String("principal_id", p.ID),
		slog.String("domain", p.Domain),
		slog.Any("connectors", connectors),
	)
	return nil
}

// OnPartitionsUpdated implements plugin.PartitionsUpdated. Only connector ids
// are recorded; connector-local ids may be personal data.
func (a *Audit) OnPartitionsUpdated(ctx context.Context, kind principal.Kind, principalID string, localIDs map[string]string) error {
	a.logger.InfoContext(ctx, "partitions updated",
		slog.String("kind", string(kind)),
		slog.String("principal_id", principalID),
		slog.Any("connectors", slices.Sorted(maps.Keys(localIDs))),
	)
	return nil
}

// OnPrincipalDeleted implements plugin.PrincipalDeleted.
func (a *Audit) OnPrincipalDeleted(ctx context.Context, kind principal.Kind, principalID string) error {
	a.logger.InfoContext(ctx, "principal deleted",
		slog.String("kind", string(kind)),
		slog.String("principal_id", principalID),
	)
	return nil
}
