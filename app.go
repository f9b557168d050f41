package gavi

import (
	"context"

	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Receive blocks until the next inbound event for this connection is
// available and returns it. It returns an error carrying the Aborted state
// cause when the transport closes or ctx is canceled; it never hangs
// indefinitely.
//
// Calls must not overlap: each connection has a single logical thread of
// control, and concurrent Receive calls on the same connection are
// undefined.
type Receive func(ctx context.Context) (protocol.Event, error)

// Send blocks until the connection driver has accepted ev, then returns.
// It fails with a ProtocolViolation error when ev is out of order for the
// connection state machine or names a capability absent from the scope,
// and with a TransportFailure error when the underlying write fails. As
// with Receive, calls on one connection must not overlap.
type Send func(ctx context.Context, ev protocol.Event) error

// Application handles one connection. Serve is invoked exactly once per
// connection by the server; a single Application value handles arbitrarily
// many connections concurrently, so implementations must not keep
// per-connection state on the receiver.
//
// The scope is read-only. The returned error, if any, is classified by the
// driver as an ApplicationFailure unless it is already a protocol error
// propagated from send or receive.
type Application interface {
	Serve(ctx context.Context, scope *protocol.Scope, receive Receive, send Send) error
}

// AppFunc adapts a function to the Application interface.
type AppFunc func(ctx context.Context, scope *protocol.Scope, receive Receive, send Send) error

// Serve implements Application.
func (f AppFunc) Serve(ctx context.Context, scope *protocol.Scope, receive Receive, send Send) error {
	return f(ctx, scope, receive, send)
}
