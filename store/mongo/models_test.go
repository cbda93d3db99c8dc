package mongo

import (
	"slices"
	"testing"
	"time"

	"github.com/xraph/ident/principal"
)

func TestPrincipalModelRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &principal.Principal{
		ID:     "g1",
		Kind:   principal.KindGroup,
		Domain: "EXAMPLE.COM",
		Partitions: []principal.Partition{
			{ConnectorID: "ldap", ConnectorLocalID: "cn=ops", StoreKind: principal.StoreIdentity},
			{ConnectorID: "scim", ConnectorLocalID: "42", StoreKind: principal.StoreCredential},
		},
	}

	m := principalToModel(p, now)
	if m.ID != "group:g1" {
		t.Fatalf("unexpected document id %q", m.ID)
	}
	if m.Version != 1 {
		t.Fatalf("expected version 1, got %d", m.Version)
	}
	want := []string{"group|4:ldap|cn=ops", "group|4:scim|42"}
	if !slices.Equal(m.PartitionKeys, want) {
		t.Fatalf("partition keys = %v, want %v", m.PartitionKeys, want)
	}

	got := principalFromModel(m)
	if got.ID != "g1" || got.Kind != principal.KindGroup || got.Domain != "EXAMPLE.COM" {
		t.Fatalf("unexpected principal %+v", got)
	}
	if !slices.Equal(got.Partitions, p.Partitions) {
		t.Fatalf("partitions = %+v, want %+v", got.Partitions, p.Partitions)
	}
}

func TestPrincipalModelRefreshKeys(t *testing.T) {
	m := principalToModel(&principal.Principal{
		ID:   "u1",
		Kind: principal.KindUser,
		Partitions: []principal.Partition{
			{ConnectorID: "ldap", ConnectorLocalID: "uid=alice", StoreKind: principal.StoreIdentity},
		},
	}, time.Now())

	part := m.find("ldap")
	if part == nil {
		t.Fatal("expected ldap partition")
	}
	part.ConnectorLocalID = "uid=alice2"
	m.refreshKeys()

	if !slices.Equal(m.PartitionKeys, []string{"user|4:ldap|uid=alice2"}) {
		t.Fatalf("unexpected keys %v", m.PartitionKeys)
	}
	if m.find("kerberos") != nil {
		t.Fatal("expected no kerberos partition")
	}
}

func TestPartitionKeySeparatorInIDs(t *testing.T) {
	a := partitionKey(principal.KindUser, "A|B", "x")
	b := partitionKey(principal.KindUser, "A", "B|x")
	if a == b {
		t.Fatalf("distinct records share key %q", a)
	}
	if partitionKey(principal.KindUser, "A", "B|x") != b {
		t.Fatal("expected key to be stable")
	}
}
