package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Router dispatches connections to registered Applications by scope method
// and path. Matching and parameter extraction use chi's routing tree, so
// patterns follow chi syntax: "/users/{id}", "/files/*".
//
// A Router is itself an Application; it nests inside other routers and
// composes with middleware like any handler.
type Router struct {
	mux      *chi.Mux
	apps     map[string]gavi.Application
	notFound gavi.Application
}

// New creates an empty router. Unmatched connections get a plain 404
// response unless SetNotFound installs a custom application.
func New() *Router {
	return &Router{
		mux:      chi.NewRouter(),
		apps:     make(map[string]gavi.Application),
		notFound: notFoundApp,
	}
}

// Handle registers app for the given method and chi pattern. Registering
// the same method and pattern twice replaces the earlier application.
func (r *Router) Handle(method, pattern string, app gavi.Application) {
	key := method + " " + pattern
	if _, exists := r.apps[key]; !exists {
		// The chi tree only matches patterns it knows; the placeholder
		// handler is never invoked.
		r.mux.Method(method, pattern, http.NotFoundHandler())
	}
	r.apps[key] = app
}

// Get registers app for GET requests on pattern.
func (r *Router) Get(pattern string, app gavi.Application) {
	r.Handle(http.MethodGet, pattern, app)
}

// Post registers app for POST requests on pattern.
func (r *Router) Post(pattern string, app gavi.Application) {
	r.Handle(http.MethodPost, pattern, app)
}

// Put registers app for PUT requests on pattern.
func (r *Router) Put(pattern string, app gavi.Application) {
	r.Handle(http.MethodPut, pattern, app)
}

// Delete registers app for DELETE requests on pattern.
func (r *Router) Delete(pattern string, app gavi.Application) {
	r.Handle(http.MethodDelete, pattern, app)
}

// SetNotFound installs the application invoked when no route matches.
func (r *Router) SetNotFound(app gavi.Application) {
	r.notFound = app
}

// Serve implements gavi.Application. Path parameters are passed to the
// selected application through the context (see Params), never by
// modifying the scope.
func (r *Router) Serve(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
	rctx := chi.NewRouteContext()
	if !r.mux.Match(rctx, scope.Method, scope.Path) {
		return r.notFound.Serve(ctx, scope, receive, send)
	}

	app, ok := r.apps[scope.Method+" "+rctx.RoutePattern()]
	if !ok {
		return r.notFound.Serve(ctx, scope, receive, send)
	}

	if len(rctx.URLParams.Keys) > 0 {
		params := make(Params, len(rctx.URLParams.Keys))
		for i, k := range rctx.URLParams.Keys {
			if k == "*" {
				continue
			}
			params[k] = rctx.URLParams.Values[i]
		}
		ctx = withParams(ctx, params)
	}
	return app.Serve(ctx, scope, receive, send)
}

// notFoundApp answers unmatched http connections with a 404. The body is
// sent only after draining would be the application's job; a 404 does not
// read the request body, relying on the driver's bounded buffering.
var notFoundApp gavi.Application = gavi.AppFunc(
	func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		err := send(ctx, protocol.ResponseStart{
			Status: http.StatusNotFound,
			Headers: protocol.Headers{
				{Name: "content-type", Value: "text/plain; charset=utf-8"},
			},
		})
		if err != nil {
			return err
		}
		return send(ctx, protocol.ResponseBody{Body: []byte("Not Found\n")})
	})
