package api

// ExistsResponse reports whether a principal has any partition.
type ExistsResponse struct {
	PrincipalID string `json:"principal_id" description:"Principal ID"`
	Exists      bool   `json:"exists" description:"Whether the principal exists"`
}

// ConnectorLocalIDResponse is the id a principal holds in one connector.
type ConnectorLocalIDResponse struct {
	PrincipalID      string `json:"principal_id" description:"Principal ID"`
	ConnectorID      string `json:"connector_id" description:"Connector ID"`
	ConnectorLocalID string `json:"connector_local_id" description:"Identifier inside the connector"`
}

// MappingsResponse lists every connector partition of a principal.
type MappingsResponse struct {
	PrincipalID string            `json:"principal_id" description:"Principal ID"`
	Connectors  map[string]string `json:"connectors" description:"Connector ID to connector-local ID"`
}

// DomainResponse is the domain a principal was created with.
type DomainResponse struct {
	PrincipalID string `json:"principal_id" description:"Principal ID"`
	Domain      string `json:"domain" description:"Domain"`
}

// BulkFailure is one principal a bulk create could not write.
type BulkFailure struct {
	Index       int    `json:"index" description:"Position in the request"`
	PrincipalID string `json:"principal_id,omitempty" description:"Principal ID"`
	Class       string `json:"class" description:"Failure class (not_found, conflict, validation, storage)"`
	Error       string `json:"error" description:"Error message"`
}

// BulkCreateResponse reports the outcome of a bulk create.
type BulkCreateResponse struct {
	Created  []string      `json:"created" description:"IDs of committed principals"`
	Failures []BulkFailure `json:"failures,omitempty" description:"Principals that were not created"`
}
