// Package memory provides an in-memory implementation of the ident composite
// store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store"
)

// Compile-time interface checks.
var (
	_ principal.Store = (*Store)(nil)
	_ store.Store     = (*Store)(nil)
)

// row mirrors one persisted partition row of the SQL backends.
type row struct {
	id        string
	partition principal.Partition
	createdAt time.Time
	updatedAt time.Time
}

// record is everything owned by one principal.
type record struct {
	domain string
	rows   []*row // insertion order
}

// Store is a thread-safe in-memory store for principals and partitions.
// One lock acquisition per method is the unit of work.
type Store struct {
	mu sync.RWMutex

	principals map[string]*record  // kind|principalID -> record
	owners     map[ownerKey]string // connector-local record -> principalID
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		principals: make(map[string]*record),
		owners:     make(map[ownerKey]string),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func principalKey(kind principal.Kind, principalID string) string {
	return string(kind) + "|" + principalID
}

// ownerKey identifies one connector-local record. Ids may contain any
// character, so the parts stay separate fields.
type ownerKey struct {
	kind      principal.Kind
	connector string
	local     string
}

func ownerOf(kind principal.Kind, connectorID, localID string) ownerKey {
	return ownerKey{kind: kind, connector: connectorID, local: localID}
}

// ──────────────────────────────────────────────────
// Principal Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(_ context.Context, p *principal.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := principalKey(p.Kind, p.ID)
	if _, ok := s.principals[pk]; ok {
		return fmt.Errorf("principal %s: %w", p.ID, principal.ErrExists)
	}

	// Check every row before writing any.
	seen := make(map[string]struct{}, len(p.Partitions))
	for _, part := range p.Partitions {
		if _, dup := seen[part.ConnectorID]; dup {
			return fmt.Errorf("principal %s connector %s: %w", p.ID, part.ConnectorID, principal.ErrDuplicate)
		}
		seen[part.ConnectorID] = struct{}{}
		if _, taken := s.owners[ownerOf(p.Kind, part.ConnectorID, part.ConnectorLocalID)]; taken {
			return fmt.Errorf("connector %s local id %q: %w", part.ConnectorID, part.ConnectorLocalID, principal.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	rec := &record{domain: p.Domain, rows: make([]*row, 0, len(p.Partitions))}
	for _, part := range p.Partitions {
		rec.rows = append(rec.rows, &row{
			id:        id.NewPartitionID().String(),
			partition: part,
			createdAt: now,
			updatedAt: now,
		})
		s.owners[ownerOf(p.Kind, part.ConnectorID, part.ConnectorLocalID)] = p.ID
	}
	s.principals[pk] = rec
	return nil
}

func (s *Store) ResolvePrincipal(_ context.Context, kind principal.Kind, connectorID, connectorLocalID string) (*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[ownerOf(kind, connectorID, connectorLocalID)]
	if !ok {
		return nil, fmt.Errorf("connector %s local id %q: %w", connectorID, connectorLocalID, principal.ErrNotFound)
	}
	rec := s.principals[principalKey(kind, owner)]
	return toPrincipal(kind, owner, rec), nil
}

func (s *Store) PrincipalExists(_ context.Context, kind principal.Kind, principalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.principals[principalKey(kind, principalID)]
	return ok, nil
}

func (s *Store) GetConnectorLocalID(_ context.Context, kind principal.Kind, principalID, connectorID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.principals[principalKey(kind, principalID)]; ok {
		if r := rec.find(connectorID); r != nil {
			return r.partition.ConnectorLocalID, nil
		}
	}
	return "", fmt.Errorf("principal %s connector %s: %w", principalID, connectorID, principal.ErrNotFound)
}

func (s *Store) UpdatePartitions(_ context.Context, u *principal.PartitionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.principals[principalKey(u.Kind, u.PrincipalID)]
	if !ok {
		return fmt.Errorf("principal %s: %w", u.PrincipalID, principal.ErrNotFound)
	}

	// Validate the whole batch first so a failure leaves nothing applied.
	for connectorID, localID := range u.LocalIDs {
		if rec.find(connectorID) == nil && u.Mode != principal.UpdateUpsert {
			return fmt.Errorf("principal %s connector %s: %w", u.PrincipalID, connectorID, principal.ErrNotFound)
		}
		if owner, taken := s.owners[ownerOf(u.Kind, connectorID, localID)]; taken && owner != u.PrincipalID {
			return fmt.Errorf("connector %s local id %q: %w", connectorID, localID, principal.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	for connectorID, localID := range u.LocalIDs {
		r := rec.find(connectorID)
		if r == nil {
			r = &row{
				id: id.NewPartitionID().String(),
				partition: principal.Partition{
					ConnectorID: connectorID,
					StoreKind:   u.InsertAs,
				},
				createdAt: now,
			}
			rec.rows = append(rec.rows, r)
		} else {
			delete(s.owners, ownerOf(u.Kind, connectorID, r.partition.ConnectorLocalID))
		}
		r.partition.ConnectorLocalID = localID
		r.updatedAt = now
		s.owners[ownerOf(u.Kind, connectorID, localID)] = u.PrincipalID
	}
	return nil
}

func (s *Store) DeletePrincipal(_ context.Context, kind principal.Kind, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := principalKey(kind, principalID)
	rec, ok := s.principals[pk]
	if !ok {
		return nil
	}
	for _, r := range rec.rows {
		delete(s.owners, ownerOf(kind, r.partition.ConnectorID, r.partition.ConnectorLocalID))
	}
	delete(s.principals, pk)
	return nil
}

func (s *Store) ListConnectorMappings(_ context.Context, kind principal.Kind, principalID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.principals[principalKey(kind, principalID)]
	if !ok {
		return map[string]string{}, nil
	}
	m := make(map[string]string, len(rec.rows))
	for _, r := range rec.rows {
		m[r.partition.ConnectorID] = r.partition.ConnectorLocalID
	}
	return m, nil
}

func (s *Store) GetDomain(_ context.Context, kind principal.Kind, principalID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.principals[principalKey(kind, principalID)]
	if !ok {
		return "", fmt.Errorf("principal %s: %w", principalID, principal.ErrNotFound)
	}
	return rec.domain, nil
}

// Len returns the number of partition rows held for kind. Used by tests to
// assert that failed writes left nothing behind.
func (s *Store) Len(kind principal.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	prefix := string(kind) + "|"
	for k, rec := range s.principals {
		if strings.HasPrefix(k, prefix) {
			n += len(rec.rows)
		}
	}
	return n
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (rec *record) find(connectorID string) *row {
	for _, r := range rec.rows {
		if r.partition.ConnectorID == connectorID {
			return r
		}
	}
	return nil
}

func toPrincipal(kind principal.Kind, principalID string, rec *record) *principal.Principal {
	p := &principal.Principal{
		ID:         principalID,
		Kind:       kind,
		Domain:     rec.domain,
		Partitions: make([]principal.Partition, 0, len(rec.rows)),
	}
	for _, r := range rec.rows {
		p.Partitions = append(p.Partitions, r.partition)
	}
	return p
}
