// Package ident resolves a domain-scoped unique identity (user or group) into
// the records it holds across identity and credential connectors, and keeps
// that mapping durable.
//
// A principal fans out into partitions, one per connector. Lookups run in
// both directions: a connector-local id resolves to its principal with every
// partition, and a principal id yields its per-connector ids and domain.
//
//	eng, err := ident.NewEngine(
//	    ident.WithStore(memory.New()),
//	)
//	err = eng.Users().Create(ctx, &ident.Principal{
//	    ID: "u1",
//	    Partitions: []ident.Partition{
//	        {ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: ident.StoreIdentity},
//	        {ConnectorID: "CREDSTORE", ConnectorLocalID: "alice-cred", StoreKind: ident.StoreCredential},
//	    },
//	}, "EXAMPLE.COM")
//	p, err := eng.Users().Resolve(ctx, "alice", "PRIMARY")
package ident

import "github.com/xraph/ident/principal"

// Entity aliases so callers rarely need to import the principal package.
type (
	// Principal is the canonical identity of a user or group.
	Principal = principal.Principal

	// Partition is one connector-local projection of a principal.
	Partition = principal.Partition

	// Kind distinguishes users from groups.
	Kind = principal.Kind

	// StoreKind marks a connector as identity or credential store.
	StoreKind = principal.StoreKind
)

const (
	KindUser  = principal.KindUser
	KindGroup = principal.KindGroup

	StoreIdentity   = principal.StoreIdentity
	StoreCredential = principal.StoreCredential
)

// Operation names reported in errors, logs and plugin hooks.
const (
	OpResolve           = "resolve"
	OpExists            = "exists"
	OpConnectorLocalID  = "connector_local_id"
	OpCreate            = "create"
	OpCreateMany        = "create_many"
	OpUpdatePartitions  = "update_partitions"
	OpDelete            = "delete"
	OpConnectorMappings = "connector_mappings"
	OpDomainOf          = "domain_of"
)
