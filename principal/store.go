package principal

import "context"

// Store defines persistence operations for principals and their partitions.
//
// Every method is a single unit of work: multi-row writes commit all rows or
// none, and no transaction outlives the call.
type Store interface {
	// CreatePrincipal inserts one row per partition, all stamped with the
	// principal's id, kind and domain. Returns ErrExists when the id already
	// has rows and ErrDuplicate on a uniqueness violation.
	CreatePrincipal(ctx context.Context, p *Principal) error

	// ResolvePrincipal finds the owner of (connectorID, connectorLocalID) and
	// returns it with all of its partitions, in one query.
	ResolvePrincipal(ctx context.Context, kind Kind, connectorID, connectorLocalID string) (*Principal, error)

	// PrincipalExists reports whether at least one row is owned by principalID.
	PrincipalExists(ctx context.Context, kind Kind, principalID string) (bool, error)

	// GetConnectorLocalID returns the local id the principal holds in connectorID.
	GetConnectorLocalID(ctx context.Context, kind Kind, principalID, connectorID string) (string, error)

	// UpdatePartitions applies a batch of connector-local id changes atomically.
	UpdatePartitions(ctx context.Context, u *PartitionUpdate) error

	// DeletePrincipal removes every row owned by principalID. Deleting an
	// unknown principal is not an error.
	DeletePrincipal(ctx context.Context, kind Kind, principalID string) error

	// ListConnectorMappings returns connectorID -> connectorLocalID for the
	// principal; empty when the principal is unknown.
	ListConnectorMappings(ctx context.Context, kind Kind, principalID string) (map[string]string, error)

	// GetDomain returns the domain stamped on the principal's rows.
	GetDomain(ctx context.Context, kind Kind, principalID string) (string, error)
}
