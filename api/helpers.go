package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/ident"
	"github.com/xraph/ident/observability"
	"github.com/xraph/ident/principal"
)

// mapError maps resolver errors to Forge HTTP errors. Storage failures are
// returned as-is and surface as 500.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch ident.ClassOf(err) {
	case ident.ErrNotFound:
		return forge.NotFound(err.Error())
	case ident.ErrValidation, ident.ErrConflict:
		return forge.BadRequest(err.Error())
	default:
		return err
	}
}

// bulkFailures flattens a *ident.BulkError into response rows.
func bulkFailures(err error) ([]BulkFailure, bool) {
	var be *ident.BulkError
	if !errors.As(err, &be) {
		return nil, false
	}
	out := make([]BulkFailure, len(be.Failures))
	for i, f := range be.Failures {
		out[i] = BulkFailure{
			Index:       f.Index,
			PrincipalID: f.PrincipalID,
			Class:       observability.Outcome(f.Err),
			Error:       f.Err.Error(),
		}
	}
	return out, true
}

// toPartitions converts request partitions, defaulting an empty store kind
// to IDENTITY.
func toPartitions(in []PartitionInput) []principal.Partition {
	out := make([]principal.Partition, len(in))
	for i, p := range in {
		sk := principal.StoreKind(p.StoreKind)
		if sk == "" {
			sk = principal.StoreIdentity
		}
		out[i] = principal.Partition{
			ConnectorID:      p.ConnectorID,
			ConnectorLocalID: p.ConnectorLocalID,
			StoreKind:        sk,
		}
	}
	return out
}
