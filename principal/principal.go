// Package principal defines the unique principal, its connector partitions,
// and the persistence contract that maps one to the other.
package principal

import "errors"

// Kind distinguishes the two principal namespaces. Users and groups never
// share partitions: every uniqueness rule is scoped to a kind.
type Kind string

const (
	// KindUser is a human or service user.
	KindUser Kind = "user"

	// KindGroup is a group of users.
	KindGroup Kind = "group"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindUser || k == KindGroup }

// StoreKind records whether a connector is authoritative for identity
// attributes or for credentials.
type StoreKind string

const (
	// StoreIdentity marks an identity-store connector.
	StoreIdentity StoreKind = "IDENTITY"

	// StoreCredential marks a credential-store connector.
	StoreCredential StoreKind = "CREDENTIAL"
)

// Valid reports whether s is a known store kind.
func (s StoreKind) Valid() bool { return s == StoreIdentity || s == StoreCredential }

// Partition is one connector-local projection of a principal.
type Partition struct {
	ConnectorID      string    `json:"connector_id"`
	ConnectorLocalID string    `json:"connector_local_id"`
	StoreKind        StoreKind `json:"store_kind"`
}

// IsIdentity reports whether the partition belongs to an identity store.
func (p Partition) IsIdentity() bool { return p.StoreKind == StoreIdentity }

// Principal is the canonical identity of a user or group, independent of any
// single connector.
type Principal struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	Domain     string      `json:"domain"`
	Partitions []Partition `json:"partitions"`
}

// Partition returns the partition held in connectorID, if any.
func (p *Principal) Partition(connectorID string) (Partition, bool) {
	for _, part := range p.Partitions {
		if part.ConnectorID == connectorID {
			return part, true
		}
	}
	return Partition{}, false
}

// ConnectorMappings returns connectorID -> connectorLocalID for every partition.
func (p *Principal) ConnectorMappings() map[string]string {
	m := make(map[string]string, len(p.Partitions))
	for _, part := range p.Partitions {
		m[part.ConnectorID] = part.ConnectorLocalID
	}
	return m
}

// Clone returns a deep copy of p.
func (p *Principal) Clone() *Principal {
	cp := *p
	cp.Partitions = append([]Partition(nil), p.Partitions...)
	return &cp
}

// UpdateMode selects what UpdatePartitions does with a connector the principal
// has no partition for.
type UpdateMode int

const (
	// UpdateStrict fails the whole batch when a targeted row is missing.
	UpdateStrict UpdateMode = iota

	// UpdateUpsert inserts missing rows, stamped with the principal's domain.
	UpdateUpsert
)

// PartitionUpdate is one batched change of connector-local ids.
type PartitionUpdate struct {
	Kind        Kind
	PrincipalID string

	// LocalIDs maps connectorID -> new connectorLocalID.
	LocalIDs map[string]string

	Mode UpdateMode

	// InsertAs is the store kind given to rows inserted by UpdateUpsert.
	InsertAs StoreKind
}

// Storage facts reported by Store implementations. Callers classify them.
var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write hits the uniqueness constraint
	// on (kind, connector, connector-local id) or (kind, principal, connector).
	ErrDuplicate = errors.New("duplicate connector record")

	// ErrExists is returned when creating a principal id that already has rows.
	ErrExists = errors.New("principal already exists")
)
