package mongo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store"
)

// Collection name constants.
const (
	colPrincipals = "ident_principals"
)

// maxUpdateAttempts bounds the optimistic read-modify-write loop in
// UpdatePartitions.
const maxUpdateAttempts = 3

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// errVersionConflict is returned when the version guard keeps losing.
var errVersionConflict = errors.New("ident/mongo: concurrent modification")

// Store is a MongoDB implementation of the composite ident store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all ident collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("ident/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all ident collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colPrincipals: {
			{
				Keys:    bson.D{{Key: "partition_keys", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "principal_id", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Principal operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal) error {
	// The multikey index does not reject repeats inside one document.
	seen := make(map[string]struct{}, len(p.Partitions))
	for _, part := range p.Partitions {
		if _, dup := seen[part.ConnectorID]; dup {
			return fmt.Errorf("principal %s connector %s: %w", p.ID, part.ConnectorID, principal.ErrDuplicate)
		}
		seen[part.ConnectorID] = struct{}{}
	}

	m := principalToModel(p, now())
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return s.classifyDuplicate(ctx, p)
		}
		return fmt.Errorf("ident: create principal: %w", err)
	}
	return nil
}

// classifyDuplicate tells an existing principal id apart from a claimed
// connector-local record after a duplicate key error.
func (s *Store) classifyDuplicate(ctx context.Context, p *principal.Principal) error {
	count, err := s.mdb.NewFind((*principalModel)(nil)).
		Filter(bson.M{"_id": docID(p.Kind, p.ID)}).
		Count(ctx)
	if err == nil && count > 0 {
		return fmt.Errorf("principal %s: %w", p.ID, principal.ErrExists)
	}
	return fmt.Errorf("principal %s: %w", p.ID, principal.ErrDuplicate)
}

func (s *Store) ResolvePrincipal(ctx context.Context, kind principal.Kind, connectorID, connectorLocalID string) (*principal.Principal, error) {
	var m principalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"partition_keys": partitionKey(kind, connectorID, connectorLocalID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("connector %s local id %q: %w", connectorID, connectorLocalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("ident: resolve principal: %w", err)
	}
	if len(m.Partitions) == 0 || m.find(connectorID) == nil {
		return nil, fmt.Errorf("ident: resolve principal %s: partition set lacks queried row", m.PrincipalID)
	}
	return principalFromModel(&m), nil
}

func (s *Store) PrincipalExists(ctx context.Context, kind principal.Kind, principalID string) (bool, error) {
	count, err := s.mdb.NewFind((*principalModel)(nil)).
		Filter(bson.M{"_id": docID(kind, principalID)}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("ident: principal exists: %w", err)
	}
	return count > 0, nil
}

func (s *Store) GetConnectorLocalID(ctx context.Context, kind principal.Kind, principalID, connectorID string) (string, error) {
	m, err := s.getPrincipal(ctx, kind, principalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return "", fmt.Errorf("principal %s connector %s: %w", principalID, connectorID, principal.ErrNotFound)
		}
		return "", err
	}
	part := m.find(connectorID)
	if part == nil {
		return "", fmt.Errorf("principal %s connector %s: %w", principalID, connectorID, principal.ErrNotFound)
	}
	return part.ConnectorLocalID, nil
}

func (s *Store) UpdatePartitions(ctx context.Context, u *principal.PartitionUpdate) error {
	for range maxUpdateAttempts {
		err := s.updateOnce(ctx, u)
		if !errors.Is(err, errVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("ident: update partitions of %s: %w", u.PrincipalID, errVersionConflict)
}

func (s *Store) updateOnce(ctx context.Context, u *principal.PartitionUpdate) error {
	m, err := s.getPrincipal(ctx, u.Kind, u.PrincipalID)
	if err != nil {
		return err
	}

	t := now()
	for _, connectorID := range slices.Sorted(maps.Keys(u.LocalIDs)) {
		localID := u.LocalIDs[connectorID]
		if part := m.find(connectorID); part != nil {
			part.ConnectorLocalID = localID
			part.UpdatedAt = t
			continue
		}
		if u.Mode != principal.UpdateUpsert {
			return fmt.Errorf("principal %s connector %s: %w", u.PrincipalID, connectorID, principal.ErrNotFound)
		}
		m.Partitions = append(m.Partitions, partitionModel{
			ID:               id.NewPartitionID().String(),
			ConnectorID:      connectorID,
			ConnectorLocalID: localID,
			StoreKind:        string(u.InsertAs),
			CreatedAt:        t,
			UpdatedAt:        t,
		})
	}
	m.refreshKeys()

	prev := m.Version
	m.Version++
	m.UpdatedAt = t
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": prev}).
		Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("principal %s: %w", u.PrincipalID, principal.ErrDuplicate)
		}
		return fmt.Errorf("ident: update partitions: %w", err)
	}
	if res.MatchedCount() == 0 {
		return errVersionConflict
	}
	return nil
}

func (s *Store) DeletePrincipal(ctx context.Context, kind principal.Kind, principalID string) error {
	_, err := s.mdb.NewDelete((*principalModel)(nil)).
		Filter(bson.M{"_id": docID(kind, principalID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ident: delete principal: %w", err)
	}
	return nil
}

func (s *Store) ListConnectorMappings(ctx context.Context, kind principal.Kind, principalID string) (map[string]string, error) {
	m, err := s.getPrincipal(ctx, kind, principalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return principalFromModel(m).ConnectorMappings(), nil
}

func (s *Store) GetDomain(ctx context.Context, kind principal.Kind, principalID string) (string, error) {
	m, err := s.getPrincipal(ctx, kind, principalID)
	if err != nil {
		return "", err
	}
	return m.Domain, nil
}

func (s *Store) getPrincipal(ctx context.Context, kind principal.Kind, principalID string) (*principalModel, error) {
	var m principalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docID(kind, principalID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("principal %s: %w", principalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("ident: get principal: %w", err)
	}
	return &m, nil
}
