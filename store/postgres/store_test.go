package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store/storetest"
)

// newTestStore starts a throwaway PostgreSQL container and returns a
// migrated store on it. Skipped in -short mode or without a container runtime.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ident"),
		tcpostgres.WithUsername("ident"),
		tcpostgres.WithPassword("ident"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv := pgdriver.New()
	require.NoError(t, drv.Open(ctx, dsn))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestConformance(t *testing.T) {
	s := newTestStore(t)
	// Every case mints fresh ids, so one container serves the whole suite.
	storetest.Run(t, func(*testing.T) principal.Store { return s })
}
