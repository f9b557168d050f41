package gavi

// Middleware wraps an inner Application, producing an outer Application
// with the identical contract. A conforming middleware:
//
//   - reads the scope but never mutates it; extra context travels through
//     ctx values, never through the Scope
//   - forwards every event the inner application emits unless it filters
//     by documented policy; silently dropping ResponseStart or
//     ResponseBody is a protocol violation
//   - checks scope.Extensions before emitting any capability-gated event
//   - never swallows a ProtocolViolation returned by send; it propagates
//     to the driver
//
// The driver re-validates everything a middleware sends, so a defective
// wrapper aborts the connection rather than corrupting the transport.
type Middleware func(Application) Application

// Chain composes middleware into one. Chain(m1, m2, m3)(app) wraps app so
// that m1 is outermost: event flow passes m1, then m2, then m3, then app.
// Composition is associative: grouping does not change behavior for
// contract-conforming middleware.
func Chain(mw ...Middleware) Middleware {
	return func(app Application) Application {
		for i := len(mw) - 1; i >= 0; i-- {
			app = mw[i](app)
		}
		return app
	}
}
