package api

// PartitionInput is one connector partition in a request body.
type PartitionInput struct {
	ConnectorID      string `json:"connector_id" description:"Connector identifier"`
	ConnectorLocalID string `json:"connector_local_id" description:"Identifier of the principal inside the connector"`
	StoreKind        string `json:"store_kind,omitempty" description:"IDENTITY or CREDENTIAL (default: IDENTITY)"`
}

// CreatePrincipalRequest is the body for creating a principal.
type CreatePrincipalRequest struct {
	ID         string           `json:"id,omitempty" description:"Principal ID (generated when empty)"`
	Domain     string           `json:"domain,omitempty" description:"Domain (assigned from scope when empty)"`
	Partitions []PartitionInput `json:"partitions" description:"Connector partitions, at least one IDENTITY"`
}

// BulkPrincipalInput is one principal of a bulk create. The domain is set
// once for the whole batch.
type BulkPrincipalInput struct {
	ID         string           `json:"id,omitempty" description:"Principal ID (generated when empty)"`
	Partitions []PartitionInput `json:"partitions" description:"Connector partitions, at least one IDENTITY"`
}

// BulkCreateRequest is the body for creating many principals at once.
type BulkCreateRequest struct {
	Domain     string               `json:"domain,omitempty" description:"Domain applied to every principal (assigned from scope when empty)"`
	Principals []BulkPrincipalInput `json:"principals" description:"Principals to create"`
}

// ResolveRequest holds the query parameters for resolving a connector record.
type ResolveRequest struct {
	ConnectorID      string `query:"connector_id" description:"Connector identifier"`
	ConnectorLocalID string `query:"connector_local_id" description:"Identifier inside the connector"`
}

// PrincipalPathRequest is the path parameter addressing a principal.
type PrincipalPathRequest struct {
	PrincipalID string `path:"principalId" description:"Principal ID"`
}

// ConnectorPathRequest addresses one connector partition of a principal.
type ConnectorPathRequest struct {
	PrincipalID string `path:"principalId" description:"Principal ID"`
	ConnectorID string `path:"connectorId" description:"Connector ID"`
}

// UpdatePartitionsRequest is the body for changing connector-local ids.
type UpdatePartitionsRequest struct {
	Connectors map[string]string `json:"connectors" description:"Connector ID to new connector-local ID"`
}
