package ident

import (
	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
)

// ID is the TypeID used for system-minted principal ids.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// NewPrincipalID mints a fresh principal id for kind: "usr_…" for users,
// "grp_…" for groups. Callers that bring their own ids never need it.
func NewPrincipalID(kind principal.Kind) string {
	if kind == principal.KindGroup {
		return id.NewGroupID().String()
	}
	return id.NewUserID().String()
}
