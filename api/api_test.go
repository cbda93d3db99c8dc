package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ident"
	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store/memory"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	eng, err := ident.NewEngine(ident.WithStore(memory.New()))
	require.NoError(t, err)

	srv := httptest.NewServer(New(eng, nil, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// call sends body as JSON and returns the status and raw response body.
func call(t *testing.T, srv *httptest.Server, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func aliceRequest() CreatePrincipalRequest {
	return CreatePrincipalRequest{
		Domain: "EXAMPLE.COM",
		Partitions: []PartitionInput{
			{ConnectorID: "ldap", ConnectorLocalID: "uid=alice"},
			{ConnectorID: "kerberos", ConnectorLocalID: "alice@EXAMPLE.COM", StoreKind: "CREDENTIAL"},
		},
	}
}

func resolvePath(kind, connectorID, localID string) string {
	q := url.Values{"connector_id": {connectorID}, "connector_local_id": {localID}}
	return "/v1/" + kind + "/resolve?" + q.Encode()
}

func TestRoutesRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	status, body := call(t, srv, http.MethodPost, "/v1/users", aliceRequest())
	require.Equal(t, http.StatusCreated, status, string(body))
	var created principal.Principal
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "EXAMPLE.COM", created.Domain)

	status, body = call(t, srv, http.MethodGet, resolvePath("users", "kerberos", "alice@EXAMPLE.COM"), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var resolved principal.Principal
	require.NoError(t, json.Unmarshal(body, &resolved))
	assert.Equal(t, created.ID, resolved.ID)
	assert.Len(t, resolved.Partitions, 2)

	status, body = call(t, srv, http.MethodGet, "/v1/users/"+created.ID+"/exists", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"principal_id":"`+created.ID+`","exists":true}`, string(body))

	status, body = call(t, srv, http.MethodGet, "/v1/users/"+created.ID+"/connectors/ldap", nil)
	require.Equal(t, http.StatusOK, status)
	var local ConnectorLocalIDResponse
	require.NoError(t, json.Unmarshal(body, &local))
	assert.Equal(t, "uid=alice", local.ConnectorLocalID)

	status, body = call(t, srv, http.MethodPut, "/v1/users/"+created.ID+"/connectors",
		UpdatePartitionsRequest{Connectors: map[string]string{"ldap": "uid=alice2"}})
	require.Equal(t, http.StatusNoContent, status, string(body))

	status, body = call(t, srv, http.MethodGet, "/v1/users/"+created.ID+"/connectors", nil)
	require.Equal(t, http.StatusOK, status)
	var mappings MappingsResponse
	require.NoError(t, json.Unmarshal(body, &mappings))
	assert.Equal(t, map[string]string{"ldap": "uid=alice2", "kerberos": "alice@EXAMPLE.COM"}, mappings.Connectors)

	status, body = call(t, srv, http.MethodGet, "/v1/users/"+created.ID+"/domain", nil)
	require.Equal(t, http.StatusOK, status)
	var domain DomainResponse
	require.NoError(t, json.Unmarshal(body, &domain))
	assert.Equal(t, "EXAMPLE.COM", domain.Domain)

	status, _ = call(t, srv, http.MethodDelete, "/v1/users/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = call(t, srv, http.MethodGet, resolvePath("users", "ldap", "uid=alice2"), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouteStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	status, _ := call(t, srv, http.MethodGet, resolvePath("users", "ldap", "uid=nobody"), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := call(t, srv, http.MethodPost, "/v1/users", aliceRequest())
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = call(t, srv, http.MethodPost, "/v1/users", aliceRequest())
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), ": conflict")

	status, body = call(t, srv, http.MethodPost, "/v1/users", CreatePrincipalRequest{Domain: "EXAMPLE.COM"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "validation failed")

	status, _ = call(t, srv, http.MethodGet, "/v1/users/usr_missing/connectors/ldap", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, srv, http.MethodPut, "/v1/users/usr_missing/connectors",
		UpdatePartitionsRequest{Connectors: map[string]string{"ldap": "uid=x"}})
	assert.Equal(t, http.StatusNotFound, status)

	// Groups never see user partitions.
	status, _ = call(t, srv, http.MethodGet, resolvePath("groups", "ldap", "uid=alice"), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBulkCreateReportsFailures(t *testing.T) {
	srv := newTestServer(t)

	req := BulkCreateRequest{
		Domain: "EXAMPLE.COM",
		Principals: []BulkPrincipalInput{
			{Partitions: []PartitionInput{{ConnectorID: "ldap", ConnectorLocalID: "cn=ops"}}},
			{Partitions: []PartitionInput{{ConnectorID: "ldap", ConnectorLocalID: "cn=dev"}}},
			{Partitions: []PartitionInput{{ConnectorID: "ldap", ConnectorLocalID: "cn=ops"}}},
			{Partitions: nil},
		},
	}
	status, body := call(t, srv, http.MethodPost, "/v1/groups/bulk", req)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp BulkCreateResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Len(t, resp.Created, 2)
	require.Len(t, resp.Failures, 2)

	classes := map[int]string{}
	for _, f := range resp.Failures {
		classes[f.Index] = f.Class
	}
	assert.Equal(t, "validation", classes[3])
	// Either of the two cn=ops principals may win the race.
	assert.True(t, classes[0] == "conflict" || classes[2] == "conflict", "failures: %+v", resp.Failures)

	status, body = call(t, srv, http.MethodGet, "/v1/groups/"+resp.Created[0]+"/domain", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "EXAMPLE.COM")
}

func TestBasePath(t *testing.T) {
	srv := newTestServer(t, WithBasePath("/ident/"))

	status, body := call(t, srv, http.MethodPost, "/ident/v1/users", aliceRequest())
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = call(t, srv, http.MethodGet, resolvePath("users", "ldap", "uid=alice"), nil)
	assert.NotEqual(t, http.StatusOK, status)

	status, _ = call(t, srv, http.MethodGet, "/ident"+resolvePath("users", "ldap", "uid=alice"), nil)
	assert.Equal(t, http.StatusOK, status)
}
