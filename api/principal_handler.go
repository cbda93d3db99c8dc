package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/ident"
	"github.com/xraph/ident/principal"
)

// principalRoutes serves one principal kind under its own prefix.
type principalRoutes struct {
	eng     *ident.Engine
	res     *ident.Resolver
	version string
	prefix  string
	tag     string
	noun    string
	op      string
}

func (pr *principalRoutes) register(router forge.Router) error {
	g := router.Group(pr.version, forge.WithGroupTags(pr.tag))
	base := pr.prefix

	if err := g.POST(base, pr.create,
		forge.WithSummary("Create "+pr.noun),
		forge.WithDescription("Creates a principal with all of its connector partitions in one atomic step."),
		forge.WithOperationID("create"+pr.op),
		forge.WithRequestSchema(CreatePrincipalRequest{}),
		forge.WithCreatedResponse(&principal.Principal{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST(base+"/bulk", pr.bulkCreate,
		forge.WithSummary("Bulk create "+pr.tag),
		forge.WithDescription("Creates each principal in its own unit of work and reports the ones that failed."),
		forge.WithOperationID("bulkCreate"+pr.op),
		forge.WithRequestSchema(BulkCreateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Bulk create result", &BulkCreateResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET(base+"/resolve", pr.resolve,
		forge.WithSummary("Resolve "+pr.noun),
		forge.WithDescription("Finds the principal owning a connector-local record and returns all of its partitions."),
		forge.WithOperationID("resolve"+pr.op),
		forge.WithRequestSchema(ResolveRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Resolved principal", &principal.Principal{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET(base+"/:principalId/exists", pr.exists,
		forge.WithSummary("Check "+pr.noun+" existence"),
		forge.WithDescription("Reports whether the principal owns at least one partition."),
		forge.WithOperationID(pr.noun+"Exists"),
		forge.WithResponseSchema(http.StatusOK, "Existence", &ExistsResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET(base+"/:principalId/connectors", pr.mappings,
		forge.WithSummary("List connector mappings"),
		forge.WithDescription("Returns the connector-local id of every partition of the principal."),
		forge.WithOperationID("list"+pr.op+"Connectors"),
		forge.WithResponseSchema(http.StatusOK, "Connector mappings", &MappingsResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET(base+"/:principalId/connectors/:connectorId", pr.connectorLocalID,
		forge.WithSummary("Get connector-local id"),
		forge.WithDescription("Returns the id the principal holds in one connector."),
		forge.WithOperationID("get"+pr.op+"ConnectorLocalID"),
		forge.WithResponseSchema(http.StatusOK, "Connector-local id", &ConnectorLocalIDResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT(base+"/:principalId/connectors", pr.updatePartitions,
		forge.WithSummary("Update connector partitions"),
		forge.WithDescription("Changes connector-local ids as one atomic batch."),
		forge.WithOperationID("update"+pr.op+"Connectors"),
		forge.WithRequestSchema(UpdatePartitionsRequest{}),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET(base+"/:principalId/domain", pr.domain,
		forge.WithSummary("Get "+pr.noun+" domain"),
		forge.WithDescription("Returns the domain the principal was created with."),
		forge.WithOperationID("get"+pr.op+"Domain"),
		forge.WithResponseSchema(http.StatusOK, "Domain", &DomainResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE(base+"/:principalId", pr.delete,
		forge.WithSummary("Delete "+pr.noun),
		forge.WithDescription("Removes every partition of the principal. Deleting an unknown principal succeeds."),
		forge.WithOperationID("delete"+pr.op),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (pr *principalRoutes) create(ctx forge.Context, req *CreatePrincipalRequest) (*principal.Principal, error) {
	p := pr.newPrincipal(req.ID, req.Partitions)

	domain := req.Domain
	if domain == "" {
		d, err := pr.eng.AssignDomain(ctx.Context(), pr.res.Kind(), p)
		if err != nil {
			return nil, mapError(err)
		}
		domain = d
	}

	if err := pr.res.Create(ctx.Context(), p, domain); err != nil {
		return nil, mapError(err)
	}

	p.Domain = domain
	return p, ctx.JSON(http.StatusCreated, p)
}

func (pr *principalRoutes) bulkCreate(ctx forge.Context, req *BulkCreateRequest) (*BulkCreateResponse, error) {
	ps := make([]*principal.Principal, len(req.Principals))
	for i, in := range req.Principals {
		ps[i] = pr.newPrincipal(in.ID, in.Partitions)
	}

	domain := req.Domain
	if domain == "" {
		d, err := pr.eng.AssignDomain(ctx.Context(), pr.res.Kind(), &principal.Principal{Kind: pr.res.Kind()})
		if err != nil {
			return nil, mapError(err)
		}
		domain = d
	}

	resp := &BulkCreateResponse{Created: []string{}}
	err := pr.res.CreateMany(ctx.Context(), ps, domain)
	failed := map[int]bool{}
	if err != nil {
		failures, ok := bulkFailures(err)
		if !ok {
			return nil, mapError(err)
		}
		resp.Failures = failures
		for _, f := range failures {
			failed[f.Index] = true
		}
	}
	for i, p := range ps {
		if !failed[i] {
			resp.Created = append(resp.Created, p.ID)
		}
	}

	return resp, ctx.JSON(http.StatusOK, resp)
}

func (pr *principalRoutes) resolve(ctx forge.Context, req *ResolveRequest) (*principal.Principal, error) {
	p, err := pr.res.Resolve(ctx.Context(), req.ConnectorLocalID, req.ConnectorID)
	if err != nil {
		return nil, mapError(err)
	}
	return p, ctx.JSON(http.StatusOK, p)
}

func (pr *principalRoutes) exists(ctx forge.Context, _ *PrincipalPathRequest) (*ExistsResponse, error) {
	principalID := ctx.Param("principalId")
	ok, err := pr.res.Exists(ctx.Context(), principalID)
	if err != nil {
		return nil, mapError(err)
	}
	resp := &ExistsResponse{PrincipalID: principalID, Exists: ok}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (pr *principalRoutes) mappings(ctx forge.Context, _ *PrincipalPathRequest) (*MappingsResponse, error) {
	principalID := ctx.Param("principalId")
	m, err := pr.res.ConnectorMappings(ctx.Context(), principalID)
	if err != nil {
		return nil, mapError(err)
	}
	resp := &MappingsResponse{PrincipalID: principalID, Connectors: m}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (pr *principalRoutes) connectorLocalID(ctx forge.Context, _ *ConnectorPathRequest) (*ConnectorLocalIDResponse, error) {
	principalID := ctx.Param("principalId")
	connectorID := ctx.Param("connectorId")
	localID, err := pr.res.ConnectorLocalID(ctx.Context(), principalID, connectorID)
	if err != nil {
		return nil, mapError(err)
	}
	resp := &ConnectorLocalIDResponse{
		PrincipalID:      principalID,
		ConnectorID:      connectorID,
		ConnectorLocalID: localID,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (pr *principalRoutes) updatePartitions(ctx forge.Context, req *UpdatePartitionsRequest) (*struct{}, error) {
	if err := pr.res.UpdatePartitions(ctx.Context(), ctx.Param("principalId"), req.Connectors); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (pr *principalRoutes) domain(ctx forge.Context, _ *PrincipalPathRequest) (*DomainResponse, error) {
	principalID := ctx.Param("principalId")
	d, err := pr.res.DomainOf(ctx.Context(), principalID)
	if err != nil {
		return nil, mapError(err)
	}
	resp := &DomainResponse{PrincipalID: principalID, Domain: d}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (pr *principalRoutes) delete(ctx forge.Context, _ *PrincipalPathRequest) (*struct{}, error) {
	if err := pr.res.Delete(ctx.Context(), ctx.Param("principalId")); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

// newPrincipal builds the principal a create request describes, minting an
// id when the caller did not bring one.
func (pr *principalRoutes) newPrincipal(principalID string, parts []PartitionInput) *principal.Principal {
	if principalID == "" {
		principalID = ident.NewPrincipalID(pr.res.Kind())
	}
	return &principal.Principal{
		ID:         principalID,
		Kind:       pr.res.Kind(),
		Partitions: toPartitions(parts),
	}
}
