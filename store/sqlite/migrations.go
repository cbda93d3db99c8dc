package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the ident store (SQLite).
var Migrations = migrate.NewGroup("ident")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_partitions",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ident_partitions (
    id                  TEXT PRIMARY KEY,
    kind                TEXT NOT NULL CHECK (kind IN ('user', 'group')),
    principal_id        TEXT NOT NULL,
    connector_local_id  TEXT NOT NULL,
    connector_id        TEXT NOT NULL,
    domain              TEXT NOT NULL,
    store_kind          TEXT NOT NULL CHECK (store_kind IN ('IDENTITY', 'CREDENTIAL')),
    created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE(kind, connector_id, connector_local_id),
    UNIQUE(kind, principal_id, connector_id)
);

CREATE INDEX IF NOT EXISTS idx_ident_partitions_principal ON ident_partitions (kind, principal_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ident_partitions`)
				return err
			},
		},
	)
}
