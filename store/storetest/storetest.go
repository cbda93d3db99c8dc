// Package storetest is a conformance suite for principal.Store backends.
//
// A backend test wires it up with a constructor:
//
//	func TestConformance(t *testing.T) {
//		storetest.Run(t, func(t *testing.T) principal.Store { return memory.New() })
//	}
//
// Every case uses fresh TypeID principal and local ids, so a shared database
// may be reused across cases without cleanup.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
)

// Factory returns a ready, migrated store.
type Factory func(t *testing.T) principal.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s principal.Store)
	}{
		{"CreateAndResolve", testCreateAndResolve},
		{"ResolveUnknown", testResolveUnknown},
		{"Exists", testExists},
		{"ConnectorLocalID", testConnectorLocalID},
		{"DuplicateLocalID", testDuplicateLocalID},
		{"ExistingPrincipal", testExistingPrincipal},
		{"DuplicateConnector", testDuplicateConnector},
		{"KindsAreIsolated", testKindsAreIsolated},
		{"UpdateStrict", testUpdateStrict},
		{"UpdateStrictMissingRow", testUpdateStrictMissingRow},
		{"UpdateUpsert", testUpdateUpsert},
		{"UpdateUpsertUnknownPrincipal", testUpdateUpsertUnknownPrincipal},
		{"UpdateClaimsForeignLocalID", testUpdateClaimsForeignLocalID},
		{"UpdateReleasesOldLocalID", testUpdateReleasesOldLocalID},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"ListConnectorMappings", testListConnectorMappings},
		{"GetDomain", testGetDomain},
		{"ConcurrentCreateConflict", testConcurrentCreateConflict},
		{"SeparatorInIDs", testSeparatorInIDs},
		{"ConcurrentUpdateDelete", testConcurrentUpdateDelete},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

// fixture builds a user principal with one IDENTITY and one CREDENTIAL
// partition, all ids unique to this call.
func fixture(kind principal.Kind) *principal.Principal {
	suffix := id.NewPartitionID().String()
	pid := id.NewUserID().String()
	if kind == principal.KindGroup {
		pid = id.NewGroupID().String()
	}
	return &principal.Principal{
		ID:     pid,
		Kind:   kind,
		Domain: "EXAMPLE.COM",
		Partitions: []principal.Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice-" + suffix, StoreKind: principal.StoreIdentity},
			{ConnectorID: "CREDSTORE", ConnectorLocalID: "alice-cred-" + suffix, StoreKind: principal.StoreCredential},
		},
	}
}

func testCreateAndResolve(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	for _, part := range p.Partitions {
		got, err := s.ResolvePrincipal(ctx, principal.KindUser, part.ConnectorID, part.ConnectorLocalID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, principal.KindUser, got.Kind)
		assert.Equal(t, "EXAMPLE.COM", got.Domain)
		assert.ElementsMatch(t, p.Partitions, got.Partitions)
	}
}

func testResolveUnknown(t *testing.T, s principal.Store) {
	_, err := s.ResolvePrincipal(context.Background(), principal.KindUser, "PRIMARY", "nobody-"+id.NewPartitionID().String())
	require.ErrorIs(t, err, principal.ErrNotFound)
}

func testExists(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)

	ok, err := s.PrincipalExists(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreatePrincipal(ctx, p))
	ok, err = s.PrincipalExists(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DeletePrincipal(ctx, principal.KindUser, p.ID))
	ok, err = s.PrincipalExists(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConnectorLocalID(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	got, err := s.GetConnectorLocalID(ctx, principal.KindUser, p.ID, "CREDSTORE")
	require.NoError(t, err)
	assert.Equal(t, p.Partitions[1].ConnectorLocalID, got)

	_, err = s.GetConnectorLocalID(ctx, principal.KindUser, p.ID, "LDAP")
	require.ErrorIs(t, err, principal.ErrNotFound)

	_, err = s.GetConnectorLocalID(ctx, principal.KindUser, id.NewUserID().String(), "PRIMARY")
	require.ErrorIs(t, err, principal.ErrNotFound)
}

func testDuplicateLocalID(t *testing.T, s principal.Store) {
	ctx := context.Background()
	first := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, first))

	second := fixture(principal.KindUser)
	second.Partitions[0].ConnectorLocalID = first.Partitions[0].ConnectorLocalID
	err := s.CreatePrincipal(ctx, second)
	require.ErrorIs(t, err, principal.ErrDuplicate)

	// All-or-nothing: the second principal's other row was not written.
	ok, err := s.PrincipalExists(ctx, principal.KindUser, second.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.ResolvePrincipal(ctx, principal.KindUser, "CREDSTORE", second.Partitions[1].ConnectorLocalID)
	require.ErrorIs(t, err, principal.ErrNotFound)

	got, err := s.ResolvePrincipal(ctx, principal.KindUser, "PRIMARY", first.Partitions[0].ConnectorLocalID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func testExistingPrincipal(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	again := fixture(principal.KindUser)
	again.ID = p.ID
	err := s.CreatePrincipal(ctx, again)
	require.ErrorIs(t, err, principal.ErrExists)

	m, err := s.ListConnectorMappings(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ConnectorMappings(), m)
}

func testDuplicateConnector(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	p.Partitions[1].ConnectorID = "PRIMARY"
	err := s.CreatePrincipal(ctx, p)
	require.ErrorIs(t, err, principal.ErrDuplicate)

	ok, err := s.PrincipalExists(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testKindsAreIsolated(t *testing.T, s principal.Store) {
	ctx := context.Background()
	user := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, user))

	// Same connector records, other namespace.
	group := user.Clone()
	group.ID = id.NewGroupID().String()
	group.Kind = principal.KindGroup
	require.NoError(t, s.CreatePrincipal(ctx, group))

	got, err := s.ResolvePrincipal(ctx, principal.KindGroup, "PRIMARY", user.Partitions[0].ConnectorLocalID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, got.ID)
	assert.Equal(t, principal.KindGroup, got.Kind)

	ok, err := s.PrincipalExists(ctx, principal.KindGroup, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpdateStrict(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	newPrimary := "alice2-" + id.NewPartitionID().String()
	newCred := "alice2-cred-" + id.NewPartitionID().String()
	require.NoError(t, s.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        principal.KindUser,
		PrincipalID: p.ID,
		LocalIDs:    map[string]string{"PRIMARY": newPrimary, "CREDSTORE": newCred},
	}))

	got, err := s.ResolvePrincipal(ctx, principal.KindUser, "PRIMARY", newPrimary)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "EXAMPLE.COM", got.Domain)
	assert.ElementsMatch(t, []principal.Partition{
		{ConnectorID: "PRIMARY", ConnectorLocalID: newPrimary, StoreKind: principal.StoreIdentity},
		{ConnectorID: "CREDSTORE", ConnectorLocalID: newCred, StoreKind: principal.StoreCredential},
	}, got.Partitions)
}

func testUpdateStrictMissingRow(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	err := s.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        principal.KindUser,
		PrincipalID: p.ID,
		LocalIDs: map[string]string{
			"PRIMARY": "changed-" + id.NewPartitionID().String(),
			"LDAP":    "new-" + id.NewPartitionID().String(),
		},
		Mode: principal.UpdateStrict,
	})
	require.ErrorIs(t, err, principal.ErrNotFound)

	// Nothing from the batch was applied.
	m, err := s.ListConnectorMappings(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ConnectorMappings(), m)
}

func testUpdateUpsert(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	ldap := "uid=alice-" + id.NewPartitionID().String()
	require.NoError(t, s.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        principal.KindUser,
		PrincipalID: p.ID,
		LocalIDs:    map[string]string{"LDAP": ldap},
		Mode:        principal.UpdateUpsert,
		InsertAs:    principal.StoreCredential,
	}))

	got, err := s.ResolvePrincipal(ctx, principal.KindUser, "LDAP", ldap)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Len(t, got.Partitions, 3)

	part, ok := got.Partition("LDAP")
	require.True(t, ok)
	assert.Equal(t, principal.StoreCredential, part.StoreKind)

	domain, err := s.GetDomain(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", domain)
}

func testUpdateUpsertUnknownPrincipal(t *testing.T, s principal.Store) {
	ctx := context.Background()
	missing := id.NewUserID().String()
	err := s.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        principal.KindUser,
		PrincipalID: missing,
		LocalIDs:    map[string]string{"LDAP": "ghost-" + id.NewPartitionID().String()},
		Mode:        principal.UpdateUpsert,
		InsertAs:    principal.StoreCredential,
	})
	require.ErrorIs(t, err, principal.ErrNotFound)

	ok, err := s.PrincipalExists(ctx, principal.KindUser, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpdateClaimsForeignLocalID(t *testing.T, s principal.Store) {
	ctx := context.Background()
	a := fixture(principal.KindUser)
	b := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, a))
	require.NoError(t, s.CreatePrincipal(ctx, b))

	err := s.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        principal.KindUser,
		PrincipalID: b.ID,
		LocalIDs:    map[string]string{"PRIMARY": a.Partitions[0].ConnectorLocalID},
	})
	require.ErrorIs(t, err, principal.ErrDuplicate)

	got, err := s.ResolvePrincipal(ctx, principal.KindUser, "PRIMARY", a.Partitions[0].ConnectorLocalID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func testUpdateReleasesOldLocalID(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	old := p.Partitions[0].ConnectorLocalID
	require.NoError(t, s.UpdatePartitions(ctx, &principal.PartitionUpdate{
		Kind:        principal.KindUser,
		PrincipalID: p.ID,
		LocalIDs:    map[string]string{"PRIMARY": "renamed-" + id.NewPartitionID().String()},
	}))

	_, err := s.ResolvePrincipal(ctx, principal.KindUser, "PRIMARY", old)
	require.ErrorIs(t, err, principal.ErrNotFound)

	// The released local id can be claimed by someone else.
	other := fixture(principal.KindUser)
	other.Partitions[0].ConnectorLocalID = old
	require.NoError(t, s.CreatePrincipal(ctx, other))
}

func testDeleteIdempotent(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)

	require.NoError(t, s.DeletePrincipal(ctx, principal.KindUser, p.ID))

	require.NoError(t, s.CreatePrincipal(ctx, p))
	require.NoError(t, s.DeletePrincipal(ctx, principal.KindUser, p.ID))
	require.NoError(t, s.DeletePrincipal(ctx, principal.KindUser, p.ID))

	for _, part := range p.Partitions {
		_, err := s.ResolvePrincipal(ctx, principal.KindUser, part.ConnectorID, part.ConnectorLocalID)
		require.ErrorIs(t, err, principal.ErrNotFound)
	}
	m, err := s.ListConnectorMappings(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func testListConnectorMappings(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindUser)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	m, err := s.ListConnectorMappings(ctx, principal.KindUser, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ConnectorMappings(), m)

	m, err = s.ListConnectorMappings(ctx, principal.KindUser, id.NewUserID().String())
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func testGetDomain(t *testing.T, s principal.Store) {
	ctx := context.Background()
	p := fixture(principal.KindGroup)
	require.NoError(t, s.CreatePrincipal(ctx, p))

	d, err := s.GetDomain(ctx, principal.KindGroup, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", d)

	_, err = s.GetDomain(ctx, principal.KindGroup, id.NewGroupID().String())
	require.ErrorIs(t, err, principal.ErrNotFound)
}

func testConcurrentCreateConflict(t *testing.T, s principal.Store) {
	ctx := context.Background()
	const n = 8
	shared := "racer-" + id.NewPartitionID().String()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []string
		conflicts int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := fixture(principal.KindUser)
			p.Partitions[0].ConnectorLocalID = shared
			err := s.CreatePrincipal(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded = append(succeeded, p.ID)
			case assert.ErrorIs(t, err, principal.ErrDuplicate):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Len(t, succeeded, 1)
	assert.Equal(t, n-1, conflicts)

	got, err := s.ResolvePrincipal(ctx, principal.KindUser, "PRIMARY", shared)
	require.NoError(t, err)
	assert.Equal(t, succeeded[0], got.ID)
}

func testSeparatorInIDs(t *testing.T, s principal.Store) {
	ctx := context.Background()
	conn := "A-" + id.NewPartitionID().String()

	first := fixture(principal.KindUser)
	first.Partitions = []principal.Partition{
		{ConnectorID: conn + "|B", ConnectorLocalID: "x", StoreKind: principal.StoreIdentity},
	}
	require.NoError(t, s.CreatePrincipal(ctx, first))

	_, err := s.ResolvePrincipal(ctx, principal.KindUser, conn, "B|x")
	require.ErrorIs(t, err, principal.ErrNotFound)

	second := fixture(principal.KindUser)
	second.Partitions = []principal.Partition{
		{ConnectorID: conn, ConnectorLocalID: "B|x", StoreKind: principal.StoreIdentity},
	}
	require.NoError(t, s.CreatePrincipal(ctx, second))

	got, err := s.ResolvePrincipal(ctx, principal.KindUser, conn, "B|x")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = s.ResolvePrincipal(ctx, principal.KindUser, conn+"|B", "x")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

// testConcurrentUpdateDelete races an upsert against a delete. Whatever the
// interleaving, the principal is either gone or keeps its IDENTITY row.
func testConcurrentUpdateDelete(t *testing.T, s principal.Store) {
	ctx := context.Background()
	for range 10 {
		p := fixture(principal.KindUser)
		require.NoError(t, s.CreatePrincipal(ctx, p))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := s.UpdatePartitions(ctx, &principal.PartitionUpdate{
				Kind:        principal.KindUser,
				PrincipalID: p.ID,
				LocalIDs: map[string]string{
					"CREDSTORE": "rotated-" + id.NewPartitionID().String(),
					"LDAP":      "uid=" + id.NewPartitionID().String(),
				},
				Mode:     principal.UpdateUpsert,
				InsertAs: principal.StoreCredential,
			})
			if err != nil {
				assert.ErrorIs(t, err, principal.ErrNotFound)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.DeletePrincipal(ctx, principal.KindUser, p.ID))
		}()
		wg.Wait()

		mappings, err := s.ListConnectorMappings(ctx, principal.KindUser, p.ID)
		require.NoError(t, err)
		if len(mappings) > 0 {
			assert.Contains(t, mappings, "PRIMARY", "principal survived without its IDENTITY row")
		}
	}
}
