package ident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store/memory"
)

func alice() *Principal {
	return &Principal{
		ID: "u1",
		Partitions: []Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: StoreIdentity},
			{ConnectorID: "CREDSTORE", ConnectorLocalID: "alice-cred", StoreKind: StoreCredential},
		},
	}
}

func TestResolverScenario(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	users := eng.Users()

	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))

	p, err := users.Resolve(ctx, "alice", "PRIMARY")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, KindUser, p.Kind)
	assert.ElementsMatch(t, alice().Partitions, p.Partitions)

	local, err := users.ConnectorLocalID(ctx, "u1", "CREDSTORE")
	require.NoError(t, err)
	assert.Equal(t, "alice-cred", local)

	domain, err := users.DomainOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", domain)

	require.NoError(t, users.Delete(ctx, "u1"))
	ok, err := users.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	p := alice()
	p.Partitions = append(p.Partitions, Partition{ConnectorID: "LDAP", ConnectorLocalID: "uid=alice", StoreKind: StoreIdentity})
	require.NoError(t, eng.Users().Create(ctx, p, "EXAMPLE.COM"))

	for _, part := range p.Partitions {
		got, err := eng.Users().Resolve(ctx, part.ConnectorLocalID, part.ConnectorID)
		require.NoError(t, err, part.ConnectorID)
		assert.Equal(t, p.ID, got.ID)
		assert.ElementsMatch(t, p.Partitions, got.Partitions)
	}
}

func TestResolverExistence(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	users := eng.Users()

	ok, err := users.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))
	ok, err = users.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, users.Delete(ctx, "u1"))
	ok, err = users.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverNotFound(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	users := eng.Users()
	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))

	_, err := users.ConnectorLocalID(ctx, "u1", "LDAP")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = users.ConnectorLocalID(ctx, "nobody", "PRIMARY")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = users.Resolve(ctx, "bob", "PRIMARY")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = users.DomainOf(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, OpDomainOf, ie.Op)
	assert.Equal(t, KindUser, ie.Kind)
	assert.Equal(t, "nobody", ie.PrincipalID)
	assert.ErrorIs(t, err, principal.ErrNotFound, "cause stays reachable")
}

func TestResolverIdempotentDelete(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	users := eng.Users()

	require.NoError(t, users.Delete(ctx, "ghost"))

	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))
	require.NoError(t, users.Delete(ctx, "u1"))
	require.NoError(t, users.Delete(ctx, "u1"))
	assert.Zero(t, s.Len(KindUser))
}

func TestResolverConflict(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	users := eng.Users()
	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))

	mallory := &Principal{
		ID: "u2",
		Partitions: []Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: StoreIdentity},
		},
	}
	err := users.Create(ctx, mallory, "EXAMPLE.COM")
	require.ErrorIs(t, err, ErrConflict)

	p, err := users.Resolve(ctx, "alice", "PRIMARY")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, 2, s.Len(KindUser))

	// Reusing a principal id is a conflict too.
	again := &Principal{
		ID: "u1",
		Partitions: []Partition{
			{ConnectorID: "LDAP", ConnectorLocalID: "uid=alice", StoreKind: StoreIdentity},
		},
	}
	require.ErrorIs(t, users.Create(ctx, again, "OTHER.COM"), ErrConflict)
	domain, err := users.DomainOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", domain)
}

func TestResolverConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := eng.Users().Create(ctx, &Principal{
				ID: fmt.Sprintf("u%d", i),
				Partitions: []Partition{
					{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: StoreIdentity},
				},
			}, "EXAMPLE.COM")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestResolverMappingCompleteness(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	require.NoError(t, eng.Users().Create(ctx, alice(), "EXAMPLE.COM"))

	m, err := eng.Users().ConnectorMappings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PRIMARY": "alice", "CREDSTORE": "alice-cred"}, m)

	m, err = eng.Users().ConnectorMappings(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestResolverValidation(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	users := eng.Users()

	tests := []struct {
		name   string
		p      *Principal
		domain string
	}{
		{"nil principal", nil, "EXAMPLE.COM"},
		{"missing id", &Principal{Partitions: alice().Partitions}, "EXAMPLE.COM"},
		{"missing domain", alice(), ""},
		{"no partitions", &Principal{ID: "u1"}, "EXAMPLE.COM"},
		{"credential only", &Principal{ID: "u1", Partitions: []Partition{
			{ConnectorID: "CREDSTORE", ConnectorLocalID: "alice-cred", StoreKind: StoreCredential},
		}}, "EXAMPLE.COM"},
		{"missing connector", &Principal{ID: "u1", Partitions: []Partition{
			{ConnectorLocalID: "alice", StoreKind: StoreIdentity},
		}}, "EXAMPLE.COM"},
		{"missing local id", &Principal{ID: "u1", Partitions: []Partition{
			{ConnectorID: "PRIMARY", StoreKind: StoreIdentity},
		}}, "EXAMPLE.COM"},
		{"unknown store kind", &Principal{ID: "u1", Partitions: []Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: "VAULT"},
		}}, "EXAMPLE.COM"},
		{"repeated connector", &Principal{ID: "u1", Partitions: []Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: StoreIdentity},
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice2", StoreKind: StoreCredential},
		}}, "EXAMPLE.COM"},
		{"wrong kind", &Principal{ID: "g1", Kind: KindGroup, Partitions: alice().Partitions}, "EXAMPLE.COM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.Create(ctx, tt.p, tt.domain)
			require.ErrorIs(t, err, ErrValidation)
			assert.NotErrorIs(t, err, ErrStorage)
		})
	}
	assert.Zero(t, s.Len(KindUser), "rejected principals must not reach the store")

	_, err := users.Resolve(ctx, "", "PRIMARY")
	require.ErrorIs(t, err, ErrValidation)
	_, err = users.Exists(ctx, "")
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, users.UpdatePartitions(ctx, "u1", map[string]string{"PRIMARY": ""}), ErrValidation)
}

func TestResolverCreateDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	p := alice()
	require.NoError(t, eng.Users().Create(ctx, p, "EXAMPLE.COM"))
	assert.Empty(t, p.Kind)
	assert.Empty(t, p.Domain)
}

func TestResolverUpdateStrict(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	users := eng.Users()
	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))

	require.NoError(t, users.UpdatePartitions(ctx, "u1", map[string]string{"CREDSTORE": "alice-cred-2"}))
	local, err := users.ConnectorLocalID(ctx, "u1", "CREDSTORE")
	require.NoError(t, err)
	assert.Equal(t, "alice-cred-2", local)

	err = users.UpdatePartitions(ctx, "u1", map[string]string{"PRIMARY": "alice-2", "LDAP": "uid=alice"})
	require.ErrorIs(t, err, ErrNotFound)

	// The batch is all-or-nothing.
	m, err := users.ConnectorMappings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PRIMARY": "alice", "CREDSTORE": "alice-cred-2"}, m)

	require.ErrorIs(t, users.UpdatePartitions(ctx, "nobody", map[string]string{"PRIMARY": "x"}), ErrNotFound)
	require.NoError(t, users.UpdatePartitions(ctx, "u1", nil), "empty mapping is a no-op")
}

func TestResolverUpdateUpsert(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithConfig(Config{UpdatePolicy: UpdateUpsert}))
	users := eng.Users()
	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))

	require.NoError(t, users.UpdatePartitions(ctx, "u1", map[string]string{"LDAP": "uid=alice"}))

	p, err := users.Resolve(ctx, "uid=alice", "LDAP")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "EXAMPLE.COM", p.Domain, "upsert copies the existing domain")
	part, ok := p.Partition("LDAP")
	require.True(t, ok)
	assert.Equal(t, StoreCredential, part.StoreKind)

	err = users.UpdatePartitions(ctx, "nobody", map[string]string{"LDAP": "uid=nobody"})
	require.ErrorIs(t, err, ErrNotFound, "upsert never creates a principal")
}

func TestResolverUpdateConflict(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	users := eng.Users()
	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))
	require.NoError(t, users.Create(ctx, &Principal{
		ID: "u2",
		Partitions: []Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "bob", StoreKind: StoreIdentity},
		},
	}, "EXAMPLE.COM"))

	err := users.UpdatePartitions(ctx, "u2", map[string]string{"PRIMARY": "alice"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestResolverGroupsAreSymmetric(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	require.NoError(t, eng.Users().Create(ctx, alice(), "EXAMPLE.COM"))

	admins := &Principal{
		ID: "g1",
		Partitions: []Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: StoreIdentity},
		},
	}
	require.NoError(t, eng.Groups().Create(ctx, admins, "EXAMPLE.COM"), "groups are a separate namespace")

	g, err := eng.Groups().Resolve(ctx, "alice", "PRIMARY")
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)
	assert.Equal(t, KindGroup, g.Kind)

	ok, err := eng.Groups().Exists(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, eng.Groups().Delete(ctx, "g1"))
	u, err := eng.Users().Resolve(ctx, "alice", "PRIMARY")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestResolverCreateMany(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t, WithConfig(Config{BulkConcurrency: 2}))
	users := eng.Users()
	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))

	batch := []*Principal{
		{ID: "u2", Partitions: []Partition{{ConnectorID: "PRIMARY", ConnectorLocalID: "bob", StoreKind: StoreIdentity}}},
		{ID: "u3", Partitions: []Partition{{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: StoreIdentity}}},
		{ID: "u4", Partitions: []Partition{{ConnectorID: "PRIMARY", ConnectorLocalID: "carol", StoreKind: StoreIdentity}}},
		{ID: "u5", Partitions: []Partition{{ConnectorID: "CREDSTORE", ConnectorLocalID: "dave", StoreKind: StoreCredential}}},
	}
	err := users.CreateMany(ctx, batch, "EXAMPLE.COM")

	var bulk *BulkError
	require.ErrorAs(t, err, &bulk)
	assert.Equal(t, 4, bulk.Total)
	require.Len(t, bulk.Failures, 2)
	assert.Equal(t, "u3", bulk.Failures[0].PrincipalID)
	assert.Equal(t, 1, bulk.Failures[0].Index)
	assert.ErrorIs(t, bulk.Failures[0].Err, ErrConflict)
	assert.Equal(t, "u5", bulk.Failures[1].PrincipalID)
	assert.ErrorIs(t, bulk.Failures[1].Err, ErrValidation)
	assert.ErrorIs(t, err, ErrConflict)

	for _, id := range []string{"u2", "u4"} {
		ok, err := users.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
	assert.Equal(t, 4, s.Len(KindUser))

	require.NoError(t, users.CreateMany(ctx, nil, "EXAMPLE.COM"))
}

// brokenStore fails every call with a driver-style error.
type brokenStore struct {
	*memory.Store
	err error
}

func (b *brokenStore) ResolvePrincipal(context.Context, principal.Kind, string, string) (*principal.Principal, error) {
	return nil, b.err
}

func (b *brokenStore) PrincipalExists(context.Context, principal.Kind, string) (bool, error) {
	return false, b.err
}

// hollowStore returns an owner with no partitions.
type hollowStore struct{ *memory.Store }

func (hollowStore) ResolvePrincipal(_ context.Context, kind principal.Kind, _, _ string) (*principal.Principal, error) {
	return &principal.Principal{ID: "u1", Kind: kind}, nil
}

type recorder struct {
	mu        sync.Mutex
	failed    []string
	completed []string
	created   []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnOperationFailed(_ context.Context, _ principal.Kind, op string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, op)
	return nil
}

func (r *recorder) OnOperationCompleted(_ context.Context, _ principal.Kind, op string, _ time.Duration, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, op)
	return nil
}

func (r *recorder) OnPrincipalCreated(_ context.Context, p *principal.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, p.ID)
	return nil
}

func TestResolverStorageErrors(t *testing.T) {
	ctx := context.Background()
	driverErr := errors.New("connection reset by peer")
	rec := &recorder{}

	eng, err := NewEngine(WithStore(&brokenStore{Store: memory.New(), err: driverErr}), WithPlugin(rec))
	require.NoError(t, err)

	_, err = eng.Users().Resolve(ctx, "alice", "PRIMARY")
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, driverErr)
	assert.Equal(t, ErrStorage, ClassOf(err))

	_, err = eng.Users().Exists(ctx, "u1")
	require.ErrorIs(t, err, ErrStorage)

	assert.Equal(t, []string{OpResolve, OpExists}, rec.failed)
	assert.Equal(t, []string{OpResolve, OpExists}, rec.completed)
}

func TestResolverEmptyPartitionSetIsStorageError(t *testing.T) {
	eng, err := NewEngine(WithStore(hollowStore{memory.New()}))
	require.NoError(t, err)

	_, err = eng.Users().Resolve(context.Background(), "alice", "PRIMARY")
	require.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolverEmitsLifecycleHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	eng, _ := newTestEngine(t, WithPlugin(rec))

	require.NoError(t, eng.Users().Create(ctx, alice(), "EXAMPLE.COM"))
	require.Error(t, eng.Users().Create(ctx, alice(), "EXAMPLE.COM"))

	assert.Equal(t, []string{"u1"}, rec.created)
	assert.Equal(t, []string{OpCreate}, rec.failed)
	assert.Equal(t, []string{OpCreate, OpCreate}, rec.completed)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Op: OpConnectorLocalID, Kind: KindUser, PrincipalID: "u1", ConnectorID: "LDAP",
		Class: ErrNotFound, Err: principal.ErrNotFound,
	}
	assert.Equal(t, "ident: user connector_local_id principal=u1 connector=LDAP: not found: not found", err.Error())
	assert.Nil(t, ClassOf(nil))
	assert.Equal(t, ErrStorage, ClassOf(errors.New("plain")))
}
