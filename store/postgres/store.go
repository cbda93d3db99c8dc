// Package postgres provides a PostgreSQL implementation of the ident
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Store is a PostgreSQL implementation of the composite ident store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("ident: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("ident: migration failed: %w", err)
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

// ──────────────────────────────────────────────────
// Principal operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("ident: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	count, err := tx.NewSelect((*partitionModel)(nil)).
		Where("kind = ?", string(p.Kind)).
		Where("principal_id = ?", p.ID).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("ident: check principal: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("principal %s: %w", p.ID, principal.ErrExists)
	}

	models := partitionsToModels(p, time.Now().UTC())
	if _, err = tx.NewInsert(&models).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("principal %s: %w", p.ID, principal.ErrDuplicate)
		}
		return fmt.Errorf("ident: create principal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ident: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ResolvePrincipal(ctx context.Context, kind principal.Kind, connectorID, connectorLocalID string) (*principal.Principal, error) {
	// Owner lookup and partition fetch in one statement, so a concurrent
	// delete cannot land between them.
	var models []partitionModel
	err := s.pgdb.NewSelect(&models).
		Where("kind = ?", string(kind)).
		Where(`principal_id = (
			SELECT principal_id FROM ident_partitions
			WHERE kind = ? AND connector_id = ? AND connector_local_id = ?)`,
			string(kind), connectorID, connectorLocalID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ident: resolve principal: %w", err)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("connector %s local id %q: %w", connectorID, connectorLocalID, principal.ErrNotFound)
	}

	p := principalFromModels(models)
	if part, ok := p.Partition(connectorID); !ok || part.ConnectorLocalID != connectorLocalID {
		return nil, fmt.Errorf("ident: resolve principal %s: partition set lacks queried row", p.ID)
	}
	return p, nil
}

func (s *Store) PrincipalExists(ctx context.Context, kind principal.Kind, principalID string) (bool, error) {
	count, err := s.pgdb.NewSelect((*partitionModel)(nil)).
		Where("kind = ?", string(kind)).
		Where("principal_id = ?", principalID).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("ident: principal exists: %w", err)
	}
	return count > 0, nil
}

func (s *Store) GetConnectorLocalID(ctx context.Context, kind principal.Kind, principalID, connectorID string) (string, error) {
	m := new(partitionModel)
	err := s.pgdb.NewSelect(m).
		Where("kind = ?", string(kind)).
		Where("principal_id = ?", principalID).
		Where("connector_id = ?", connectorID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("principal %s connector %s: %w", principalID, connectorID, principal.ErrNotFound)
		}
		return "", fmt.Errorf("ident: get connector local id: %w", err)
	}
	return m.ConnectorLocalID, nil
}

func (s *Store) UpdatePartitions(ctx context.Context, u *principal.PartitionUpdate) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("ident: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	// Row locks hold off a concurrent delete until this batch commits.
	var existing []partitionModel
	err = tx.NewSelect(&existing).
		Where("kind = ?", string(u.Kind)).
		Where("principal_id = ?", u.PrincipalID).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("ident: load partitions: %w", err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("principal %s: %w", u.PrincipalID, principal.ErrNotFound)
	}
	held := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		held[m.ConnectorID] = struct{}{}
	}

	now := time.Now().UTC()
	var inserts []partitionModel

	// Sorted so concurrent batches touch rows in the same order.
	for _, connectorID := range slices.Sorted(maps.Keys(u.LocalIDs)) {
		localID := u.LocalIDs[connectorID]
		if _, ok := held[connectorID]; !ok {
			if u.Mode != principal.UpdateUpsert {
				return fmt.Errorf("principal %s connector %s: %w", u.PrincipalID, connectorID, principal.ErrNotFound)
			}
			inserts = append(inserts, partitionModel{
				ID:               id.NewPartitionID().String(),
				Kind:             string(u.Kind),
				PrincipalID:      u.PrincipalID,
				ConnectorLocalID: localID,
				ConnectorID:      connectorID,
				Domain:           existing[0].Domain,
				StoreKind:        string(u.InsertAs),
				CreatedAt:        now,
				UpdatedAt:        now,
			})
			continue
		}

		res, err := tx.NewUpdate((*partitionModel)(nil)).
			Set("connector_local_id = ?", localID).
			Set("updated_at = ?", now).
			Where("kind = ?", string(u.Kind)).
			Where("principal_id = ?", u.PrincipalID).
			Where("connector_id = ?", connectorID).
			Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("connector %s local id %q: %w", connectorID, localID, principal.ErrDuplicate)
			}
			return fmt.Errorf("ident: update partition: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("ident: update partition: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("principal %s connector %s: %w", u.PrincipalID, connectorID, principal.ErrNotFound)
		}
	}

	if len(inserts) > 0 {
		if _, err = tx.NewInsert(&inserts).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("principal %s: %w", u.PrincipalID, principal.ErrDuplicate)
			}
			return fmt.Errorf("ident: insert partitions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ident: commit tx: %w", err)
	}
	return nil
}

func (s *Store) DeletePrincipal(ctx context.Context, kind principal.Kind, principalID string) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("ident: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	// Waits out an in-flight partition update, so the DELETE below sees
	// any rows that update inserted.
	var locked []partitionModel
	err = tx.NewSelect(&locked).
		Where("kind = ?", string(kind)).
		Where("principal_id = ?", principalID).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("ident: lock principal: %w", err)
	}
	if len(locked) == 0 {
		return nil
	}

	_, err = tx.NewDelete((*partitionModel)(nil)).
		Where("kind = ?", string(kind)).
		Where("principal_id = ?", principalID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ident: delete principal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ident: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListConnectorMappings(ctx context.Context, kind principal.Kind, principalID string) (map[string]string, error) {
	var models []partitionModel
	err := s.pgdb.NewSelect(&models).
		Where("kind = ?", string(kind)).
		Where("principal_id = ?", principalID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ident: list connector mappings: %w", err)
	}
	m := make(map[string]string, len(models))
	for _, row := range models {
		m[row.ConnectorID] = row.ConnectorLocalID
	}
	return m, nil
}

func (s *Store) GetDomain(ctx context.Context, kind principal.Kind, principalID string) (string, error) {
	m := new(partitionModel)
	err := s.pgdb.NewSelect(m).
		Where("kind = ?", string(kind)).
		Where("principal_id = ?", principalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("principal %s: %w", principalID, principal.ErrNotFound)
		}
		return "", fmt.Errorf("ident: get domain: %w", err)
	}
	return m.Domain, nil
}

// isUniqueViolation reports whether err carries a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
