package ident

import (
	"errors"
	"fmt"

	"github.com/xraph/ident/principal"
)

var (
	errMissingPrincipalID = errors.New("principal id is required")
	errMissingConnectorID = errors.New("connector id is required")
	errMissingLocalID     = errors.New("connector-local id is required")
	errMissingDomain      = errors.New("domain is required")
	errNoPartitions       = errors.New("at least one partition is required")
	errNoIdentity         = errors.New("at least one IDENTITY partition is required")
)

// validatePrincipal checks p before it is written. Kind and Domain must be
// set by the caller.
func validatePrincipal(p *principal.Principal) error {
	if p.ID == "" {
		return errMissingPrincipalID
	}
	if p.Domain == "" {
		return errMissingDomain
	}
	if len(p.Partitions) == 0 {
		return errNoPartitions
	}

	seen := make(map[string]struct{}, len(p.Partitions))
	identity := false
	for i, part := range p.Partitions {
		if part.ConnectorID == "" {
			return fmt.Errorf("partition %d: %w", i, errMissingConnectorID)
		}
		if part.ConnectorLocalID == "" {
			return fmt.Errorf("partition %d (%s): %w", i, part.ConnectorID, errMissingLocalID)
		}
		if !part.StoreKind.Valid() {
			return fmt.Errorf("partition %d (%s): unknown store kind %q", i, part.ConnectorID, part.StoreKind)
		}
		if _, dup := seen[part.ConnectorID]; dup {
			return fmt.Errorf("partition %d: connector %s appears more than once", i, part.ConnectorID)
		}
		seen[part.ConnectorID] = struct{}{}
		identity = identity || part.IsIdentity()
	}
	if !identity {
		return errNoIdentity
	}
	return nil
}

// validateMapping checks an UpdatePartitions batch.
func validateMapping(mapping map[string]string) error {
	for connectorID, localID := range mapping {
		if connectorID == "" {
			return errMissingConnectorID
		}
		if localID == "" {
			return fmt.Errorf("connector %s: %w", connectorID, errMissingLocalID)
		}
	}
	return nil
}
