package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/xraph/ident"
	"github.com/xraph/ident/api"
	"github.com/xraph/ident/principal"
)

// KindClient issues requests for one principal kind. Its methods mirror
// ident.Resolver.
type KindClient struct {
	c    *Client
	kind principal.Kind
	path string
}

// Kind returns the principal kind this client serves.
func (k *KindClient) Kind() principal.Kind { return k.kind }

func (k *KindClient) route(parts ...string) string {
	p := "/v1/" + k.path
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// Resolve finds the principal owning (connectorID, connectorLocalID).
func (k *KindClient) Resolve(ctx context.Context, connectorLocalID, connectorID string) (*principal.Principal, error) {
	q := url.Values{}
	q.Set("connector_id", connectorID)
	q.Set("connector_local_id", connectorLocalID)

	var p principal.Principal
	if err := k.c.do(ctx, k.kind, ident.OpResolve, http.MethodGet, k.route("resolve"), q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Exists reports whether principalID owns at least one partition.
func (k *KindClient) Exists(ctx context.Context, principalID string) (bool, error) {
	var resp api.ExistsResponse
	if err := k.c.do(ctx, k.kind, ident.OpExists, http.MethodGet, k.route(principalID, "exists"), nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// ConnectorLocalID returns the id principalID holds in connectorID.
func (k *KindClient) ConnectorLocalID(ctx context.Context, principalID, connectorID string) (string, error) {
	var resp api.ConnectorLocalIDResponse
	if err := k.c.do(ctx, k.kind, ident.OpConnectorLocalID, http.MethodGet, k.route(principalID, "connectors", connectorID), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.ConnectorLocalID, nil
}

// Create writes p. An empty p.ID is minted by the server and an empty
// domain is assigned by it; the returned principal carries both.
func (k *KindClient) Create(ctx context.Context, p *principal.Principal, domain string) (*principal.Principal, error) {
	var out principal.Principal
	if err := k.c.do(ctx, k.kind, ident.OpCreate, http.MethodPost, k.route(), nil, createRequest(p, domain), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMany creates each principal independently on the server. domain
// applies to the whole batch; per-principal domains are not sent.
func (k *KindClient) CreateMany(ctx context.Context, ps []*principal.Principal, domain string) (*api.BulkCreateResponse, error) {
	req := api.BulkCreateRequest{Domain: domain, Principals: make([]api.BulkPrincipalInput, len(ps))}
	for i, p := range ps {
		one := createRequest(p, "")
		req.Principals[i] = api.BulkPrincipalInput{ID: one.ID, Partitions: one.Partitions}
	}

	var resp api.BulkCreateResponse
	if err := k.c.do(ctx, k.kind, ident.OpCreateMany, http.MethodPost, k.route("bulk"), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdatePartitions changes connector-local ids of principalID as one batch.
func (k *KindClient) UpdatePartitions(ctx context.Context, principalID string, mapping map[string]string) error {
	body := api.UpdatePartitionsRequest{Connectors: mapping}
	return k.c.do(ctx, k.kind, ident.OpUpdatePartitions, http.MethodPut, k.route(principalID, "connectors"), nil, body, nil)
}

// Delete removes every partition of principalID.
func (k *KindClient) Delete(ctx context.Context, principalID string) error {
	return k.c.do(ctx, k.kind, ident.OpDelete, http.MethodDelete, k.route(principalID), nil, nil, nil)
}

// ConnectorMappings returns connectorID -> connectorLocalID for principalID.
func (k *KindClient) ConnectorMappings(ctx context.Context, principalID string) (map[string]string, error) {
	var resp api.MappingsResponse
	if err := k.c.do(ctx, k.kind, ident.OpConnectorMappings, http.MethodGet, k.route(principalID, "connectors"), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Connectors == nil {
		resp.Connectors = map[string]string{}
	}
	return resp.Connectors, nil
}

// DomainOf returns the domain principalID was created with.
func (k *KindClient) DomainOf(ctx context.Context, principalID string) (string, error) {
	var resp api.DomainResponse
	if err := k.c.do(ctx, k.kind, ident.OpDomainOf, http.MethodGet, k.route(principalID, "domain"), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Domain, nil
}

func createRequest(p *principal.Principal, domain string) *api.CreatePrincipalRequest {
	if p == nil {
		return &api.CreatePrincipalRequest{Domain: domain}
	}
	req := &api.CreatePrincipalRequest{ID: p.ID, Domain: domain}
	if req.Domain == "" {
		req.Domain = p.Domain
	}
	for _, part := range p.Partitions {
		req.Partitions = append(req.Partitions, api.PartitionInput{
			ConnectorID:      part.ConnectorID,
			ConnectorLocalID: part.ConnectorLocalID,
			StoreKind:        string(part.StoreKind),
		})
	}
	return req
}
