// Package gavi defines the application contract for the Gavi asynchronous
// gateway interface: an Application is invoked once per connection with an
// immutable scope and a receive/send channel pair, and Middleware composes
// Applications while preserving the protocol contract.
//
// A minimal application:
//
//	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
//	    if err := send(ctx, protocol.ResponseStart{Status: 200, Headers: protocol.Headers{
//	        {Name: "content-type", Value: "text/plain"},
//	    }}); err != nil {
//	        return err
//	    }
//	    return send(ctx, protocol.ResponseBody{Body: []byte("ok")})
//	})
//
// Serve it:
//
//	srv := server.New(app, nil)
//	log.Fatal(srv.Run())
//
// Subpackages:
//
//   - pkg/protocol: scope, events, extensions, error taxonomy
//   - pkg/server: connection driver, HTTP/websocket/lifespan transports
//   - pkg/router: method+path dispatch to Applications
//   - pkg/middleware: logging, Prometheus metrics, OpenTelemetry tracing
//   - pkg/web: convenience request/response wrappers for handlers
//   - pkg/render: HTML escaping and template rendering helpers
//   - pkg/static: static file serving from disk or S3
package gavi
