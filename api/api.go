// Package api provides HTTP handlers for the ident resolver.
package api

import (
	"net/http"
	"strings"

	"github.com/xraph/forge"

	"github.com/xraph/ident"
)

// API wires all ident HTTP handlers together.
type API struct {
	eng      *ident.Engine
	router   forge.Router
	basePath string
}

// Option configures an API.
type Option func(*API)

// WithBasePath mounts every route below prefix, e.g. "/ident".
func WithBasePath(prefix string) Option {
	return func(a *API) { a.basePath = strings.TrimRight(prefix, "/") }
}

// New creates an API from an Engine and a Forge router.
func New(eng *ident.Engine, router forge.Router, opts ...Option) *API {
	a := &API{eng: eng, router: router}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("ident: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers the user and group routes into the given Forge
// router. Both kinds expose the same surface under their own prefix.
func (a *API) RegisterRoutes(router forge.Router) error {
	kinds := []*principalRoutes{
		{eng: a.eng, res: a.eng.Users(), version: a.basePath + "/v1", prefix: "/users", tag: "users", noun: "user", op: "User"},
		{eng: a.eng, res: a.eng.Groups(), version: a.basePath + "/v1", prefix: "/groups", tag: "groups", noun: "group", op: "Group"},
	}
	for _, k := range kinds {
		if err := k.register(router); err != nil {
			return err
		}
	}
	return nil
}
