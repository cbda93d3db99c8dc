package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/ident/id"
)

func TestMintedPrefixes(t *testing.T) {
	for name, tc := range map[string]struct {
		mint   func() id.ID
		prefix id.Prefix
	}{
		"user":      {id.NewUserID, id.PrefixUser},
		"group":     {id.NewGroupID, id.PrefixGroup},
		"partition": {id.NewPartitionID, id.PrefixPartition},
	} {
		t.Run(name, func(t *testing.T) {
			got := tc.mint()
			if got.Prefix() != tc.prefix {
				t.Fatalf("prefix = %q, want %q", got.Prefix(), tc.prefix)
			}
			if !strings.HasPrefix(got.String(), string(tc.prefix)+"_") {
				t.Fatalf("unexpected string form %q", got.String())
			}
		})
	}
}

func TestMintedIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for range 1000 {
		s := id.NewPartitionID().String()
		if seen[s] {
			t.Fatalf("duplicate id %q", s)
		}
		seen[s] = true
	}
}

func TestParse(t *testing.T) {
	u := id.NewUserID()

	got, err := id.Parse(u.String())
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != u.String() {
		t.Fatalf("round trip: %q != %q", got.String(), u.String())
	}

	if _, err := id.Parse(u.String(), id.PrefixUser, id.PrefixGroup); err != nil {
		t.Fatalf("expected user prefix to be accepted: %v", err)
	}
	if _, err := id.Parse(u.String(), id.PrefixGroup); err == nil {
		t.Fatal("expected a user id to be rejected as a group id")
	}
	for _, bad := range []string{"", "not an id", "usr_tooshort"} {
		if _, err := id.Parse(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNil(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should be nil")
	}
	if id.Nil.String() != "" || id.Nil.Prefix() != "" {
		t.Fatal("Nil should render empty")
	}
	if id.NewGroupID().IsNil() {
		t.Fatal("minted id should not be nil")
	}
}
