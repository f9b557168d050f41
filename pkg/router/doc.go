// Package router maps scope method and path to registered Applications.
//
// Route patterns use chi syntax. Extracted path parameters travel to the
// selected application through the context, keeping the scope immutable:
//
//	r := router.New()
//	r.Get("/users/{id}", web.Handler(func(ctx context.Context, req *web.Request, res *web.ResponseWriter) error {
//	    id := router.Param(ctx, "id")
//	    ...
//	}))
package router
