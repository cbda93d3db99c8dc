package ident

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/ident/principal"
)

// Resolver is the identity resolver for one principal kind. Every method is
// one unit of work against the store: it either completes or leaves nothing
// behind. Failures are *Error values classified into ErrNotFound,
// ErrConflict, ErrValidation or ErrStorage.
type Resolver struct {
	kind principal.Kind
	eng  *Engine
}

// Kind returns the principal kind this resolver serves.
func (r *Resolver) Kind() principal.Kind { return r.kind }

// Resolve finds the principal owning (connectorID, connectorLocalID) and
// returns it with all of its partitions, not just the queried one.
func (r *Resolver) Resolve(ctx context.Context, connectorLocalID, connectorID string) (p *principal.Principal, err error) {
	defer r.observe(ctx, OpResolve, time.Now(), &err)

	if connectorID == "" {
		return nil, r.invalid(OpResolve, "", "", errMissingConnectorID)
	}
	if connectorLocalID == "" {
		return nil, r.invalid(OpResolve, "", connectorID, errMissingLocalID)
	}

	p, err = r.eng.store.ResolvePrincipal(ctx, r.kind, connectorID, connectorLocalID)
	if err != nil {
		return nil, r.wrap(OpResolve, "", connectorID, err)
	}
	if len(p.Partitions) == 0 {
		return nil, &Error{
			Op: OpResolve, Kind: r.kind, PrincipalID: p.ID, ConnectorID: connectorID,
			Class: ErrStorage, Err: errors.New("owner found but partition set is empty"),
		}
	}

	r.eng.plugins.EmitPrincipalResolved(ctx, connectorID, p)
	return p, nil
}

// Exists reports whether at least one partition is owned by principalID.
// An unknown principal is (false, nil).
func (r *Resolver) Exists(ctx context.Context, principalID string) (ok bool, err error) {
	defer r.observe(ctx, OpExists, time.Now(), &err)

	if principalID == "" {
		return false, r.invalid(OpExists, "", "", errMissingPrincipalID)
	}
	ok, err = r.eng.store.PrincipalExists(ctx, r.kind, principalID)
	if err != nil {
		return false, r.wrap(OpExists, principalID, "", err)
	}
	return ok, nil
}

// ConnectorLocalID returns the id principalID holds in connectorID. It fails
// with ErrNotFound both when the principal is unknown and when it has no
// partition for the connector; the two are not told apart.
func (r *Resolver) ConnectorLocalID(ctx context.Context, principalID, connectorID string) (localID string, err error) {
	defer r.observe(ctx, OpConnectorLocalID, time.Now(), &err)

	if principalID == "" {
		return "", r.invalid(OpConnectorLocalID, "", connectorID, errMissingPrincipalID)
	}
	if connectorID == "" {
		return "", r.invalid(OpConnectorLocalID, principalID, "", errMissingConnectorID)
	}
	localID, err = r.eng.store.GetConnectorLocalID(ctx, r.kind, principalID, connectorID)
	if err != nil {
		return "", r.wrap(OpConnectorLocalID, principalID, connectorID, err)
	}
	return localID, nil
}

// Create writes p with all of its partitions, stamped with domain, in one
// atomic step. p.Kind may be empty; otherwise it must match the resolver.
// A connector-local record already owned by another principal, or a
// principal id that already has partitions, is ErrConflict.
func (r *Resolver) Create(ctx context.Context, p *principal.Principal, domain string) (err error) {
	defer r.observe(ctx, OpCreate, time.Now(), &err)
	return r.create(ctx, OpCreate, p, domain)
}

// CreateMany creates each principal in its own unit of work, up to
// Config.BulkConcurrency at a time. Successful principals stay committed when
// others fail; the failures are reported in a *BulkError.
func (r *Resolver) CreateMany(ctx context.Context, ps []*principal.Principal, domain string) (err error) {
	defer r.observe(ctx, OpCreateMany, time.Now(), &err)

	if len(ps) == 0 {
		return nil
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []BulkFailure
	)
	g.SetLimit(r.eng.config.BulkConcurrency)

	for i, p := range ps {
		g.Go(func() error {
			if cerr := r.create(ctx, OpCreateMany, p, domain); cerr != nil {
				f := BulkFailure{Index: i, Err: cerr}
				if p != nil {
					f.PrincipalID = p.ID
				}
				mu.Lock()
				failures = append(failures, f)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // workers record failures instead of returning them

	if len(failures) == 0 {
		return nil
	}
	slices.SortFunc(failures, func(a, b BulkFailure) int { return cmp.Compare(a.Index, b.Index) })
	return &BulkError{Total: len(ps), Failures: failures}
}

func (r *Resolver) create(ctx context.Context, op string, p *principal.Principal, domain string) error {
	if p == nil {
		return r.invalid(op, "", "", errors.New("principal is nil"))
	}
	if p.Kind != "" && p.Kind != r.kind {
		return r.invalid(op, p.ID, "", fmt.Errorf("principal kind %q does not match resolver kind %q", p.Kind, r.kind))
	}

	c := p.Clone()
	c.Kind = r.kind
	c.Domain = domain
	if err := validatePrincipal(c); err != nil {
		return r.invalid(op, c.ID, "", err)
	}

	if err := r.eng.store.CreatePrincipal(ctx, c); err != nil {
		return r.wrap(op, c.ID, "", err)
	}

	r.eng.logger.Debug("ident: principal created",
		slog.String("kind", string(r.kind)),
		slog.String("principal_id", c.ID),
		slog.String("domain", c.Domain),
		slog.Int("partitions", len(c.Partitions)),
	)
	r.eng.plugins.EmitPrincipalCreated(ctx, c)
	return nil
}

// UpdatePartitions changes the connector-local ids of principalID, keyed by
// connector id, as one atomic batch. A connector the principal holds no
// partition for is handled by Config.UpdatePolicy: strict fails the whole
// batch with ErrNotFound; upsert inserts it with the principal's existing
// domain. The domain is never changed. An empty mapping is a no-op.
func (r *Resolver) UpdatePartitions(ctx context.Context, principalID string, mapping map[string]string) (err error) {
	defer r.observe(ctx, OpUpdatePartitions, time.Now(), &err)

	if principalID == "" {
		return r.invalid(OpUpdatePartitions, "", "", errMissingPrincipalID)
	}
	if err := validateMapping(mapping); err != nil {
		return r.invalid(OpUpdatePartitions, principalID, "", err)
	}
	if len(mapping) == 0 {
		return nil
	}

	localIDs := maps.Clone(mapping)
	err = r.eng.store.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        r.kind,
		PrincipalID: principalID,
		LocalIDs:    localIDs,
		Mode:        r.eng.config.updateMode(),
		InsertAs:    r.eng.config.UpsertStoreKind,
	})
	if err != nil {
		return r.wrap(OpUpdatePartitions, principalID, "", err)
	}

	r.eng.logger.Debug("ident: partitions updated",
		slog.String("kind", string(r.kind)),
		slog.String("principal_id", principalID),
		slog.Int("connectors", len(localIDs)),
	)
	r.eng.plugins.EmitPartitionsUpdated(ctx, r.kind, principalID, localIDs)
	return nil
}

// Delete removes every partition of principalID. Deleting an unknown
// principal succeeds.
func (r *Resolver) Delete(ctx context.Context, principalID string) (err error) {
	defer r.observe(ctx, OpDelete, time.Now(), &err)

	if principalID == "" {
		return r.invalid(OpDelete, "", "", errMissingPrincipalID)
	}
	if err := r.eng.store.DeletePrincipal(ctx, r.kind, principalID); err != nil {
		return r.wrap(OpDelete, principalID, "", err)
	}

	r.eng.logger.Debug("ident: principal deleted",
		slog.String("kind", string(r.kind)),
		slog.String("principal_id", principalID),
	)
	r.eng.plugins.EmitPrincipalDeleted(ctx, r.kind, principalID)
	return nil
}

// ConnectorMappings returns connectorID -> connectorLocalID for every
// partition of principalID. An unknown principal yields an empty map.
func (r *Resolver) ConnectorMappings(ctx context.Context, principalID string) (m map[string]string, err error) {
	defer r.observe(ctx, OpConnectorMappings, time.Now(), &err)

	if principalID == "" {
		return nil, r.invalid(OpConnectorMappings, "", "", errMissingPrincipalID)
	}
	m, err = r.eng.store.ListConnectorMappings(ctx, r.kind, principalID)
	if err != nil {
		return nil, r.wrap(OpConnectorMappings, principalID, "", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

// DomainOf returns the domain principalID was created with.
func (r *Resolver) DomainOf(ctx context.Context, principalID string) (domain string, err error) {
	defer r.observe(ctx, OpDomainOf, time.Now(), &err)

	if principalID == "" {
		return "", r.invalid(OpDomainOf, "", "", errMissingPrincipalID)
	}
	domain, err = r.eng.store.GetDomain(ctx, r.kind, principalID)
	if err != nil {
		return "", r.wrap(OpDomainOf, principalID, "", err)
	}
	return domain, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (r *Resolver) invalid(op, principalID, connectorID string, err error) *Error {
	return &Error{Op: op, Kind: r.kind, PrincipalID: principalID, ConnectorID: connectorID, Class: ErrValidation, Err: err}
}

func (r *Resolver) wrap(op, principalID, connectorID string, err error) *Error {
	return &Error{Op: op, Kind: r.kind, PrincipalID: principalID, ConnectorID: connectorID, Class: classify(err), Err: err}
}

// observe logs storage failures and reports the outcome to plugins.
func (r *Resolver) observe(ctx context.Context, op string, start time.Time, errp *error) {
	err := *errp
	elapsed := time.Since(start)

	if err != nil {
		if ClassOf(err) == ErrStorage {
			attrs := []any{
				slog.String("op", op),
				slog.String("kind", string(r.kind)),
				slog.String("error", err.Error()),
			}
			var ie *Error
			if errors.As(err, &ie) {
				attrs = append(attrs,
					slog.String("principal_id", ie.PrincipalID),
					slog.String("connector_id", ie.ConnectorID),
				)
			}
			r.eng.logger.Error("ident: storage failure", attrs...)
		}
		r.eng.plugins.EmitOperationFailed(ctx, r.kind, op, err)
	}
	r.eng.plugins.EmitOperationCompleted(ctx, r.kind, op, elapsed, err)
}

