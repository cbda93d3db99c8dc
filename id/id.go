// Package id mints TypeID identifiers for ident entities.
//
// Principal ids are opaque to the resolver and callers may bring their own.
// The ids minted here are K-sortable (UUIDv7-based) "prefix_suffix" strings,
// used when the server assigns a principal id and as the surrogate key of
// every persisted partition row.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixUser      Prefix = "usr"
	PrefixGroup     Prefix = "grp"
	PrefixPartition Prefix = "ptn"
)

// ID is a minted or parsed TypeID. The zero value is Nil.
type ID struct {
	tid   typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New mints an ID with prefix. It panics on an invalid prefix, which only a
// programming error can produce.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, valid: true}
}

// NewUserID mints a user principal id.
func NewUserID() ID { return New(PrefixUser) }

// NewGroupID mints a group principal id.
func NewGroupID() ID { return New(PrefixGroup) }

// NewPartitionID mints a partition row key.
func NewPartitionID() ID { return New(PrefixPartition) }

// Parse parses s as a TypeID. When prefixes are given, the parsed prefix must
// be one of them.
func Parse(s string, prefixes ...Prefix) (ID, error) {
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	parsed := ID{tid: tid, valid: true}
	if len(prefixes) == 0 {
		return parsed, nil
	}
	for _, p := range prefixes {
		if parsed.Prefix() == p {
			return parsed, nil
		}
	}
	return Nil, fmt.Errorf("id: %q has prefix %q, want one of %v", s, parsed.Prefix(), prefixes)
}

// String returns the "prefix_suffix" form, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the prefix of i, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }
