package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/forge"

	"github.com/xraph/ident"
	"github.com/xraph/ident/principal"
	"github.com/xraph/ident/store/memory"
)

// downStore fails every resolve as a lost database connection would.
type downStore struct{ *memory.Store }

func (downStore) ResolvePrincipal(context.Context, principal.Kind, string, string) (*principal.Principal, error) {
	return nil, errors.New("connection refused")
}

func newEngine(t *testing.T) *ident.Engine {
	t.Helper()
	eng, err := ident.NewEngine(ident.WithStore(memory.New()))
	require.NoError(t, err)

	err = eng.Users().Create(context.Background(), &principal.Principal{
		ID: "usr_alice",
		Partitions: []principal.Partition{
			{ConnectorID: "ldap", ConnectorLocalID: "alice", StoreKind: principal.StoreIdentity},
		},
	}, "EXAMPLE.COM")
	require.NoError(t, err)
	return eng
}

// serve mounts mw on a single route and calls it as userID.
func serve(t *testing.T, mw forge.Middleware, userID string) *httptest.ResponseRecorder {
	t.Helper()
	router := forge.NewRouter()
	err := router.GET("/whoami", func(ctx forge.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"user": forge.UserIDFromContext(ctx.Context())})
	}, forge.WithMiddleware(mw))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if userID != "" {
		req = req.WithContext(forge.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRequirePrincipal(t *testing.T) {
	eng := newEngine(t)
	mw := RequirePrincipal(eng, principal.KindUser, "ldap")

	rec := serve(t, mw, "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"alice"}`, rec.Body.String())

	for _, user := range []string{"", "mallory"} {
		rec := serve(t, mw, user)
		assert.Equal(t, http.StatusForbidden, rec.Code, "user %q", user)
		assert.JSONEq(t, `{"error":"unknown principal"}`, rec.Body.String())
	}

	// Groups are a separate namespace.
	rec = serve(t, RequirePrincipal(eng, principal.KindGroup, "ldap"), "alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireDomain(t *testing.T) {
	eng := newEngine(t)

	rec := serve(t, RequireDomain(eng, principal.KindUser, "ldap", "EXAMPLE.COM"), "alice")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, RequireDomain(eng, principal.KindUser, "ldap", "OTHER.ORG"), "alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"unknown principal"}`, rec.Body.String())
}

func TestRequirePrincipalPropagatesStorageErrors(t *testing.T) {
	eng, err := ident.NewEngine(ident.WithStore(downStore{memory.New()}))
	require.NoError(t, err)

	rec := serve(t, RequirePrincipal(eng, principal.KindUser, "ldap"), "alice")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unknown principal")
}
