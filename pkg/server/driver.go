package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Transport is the driver's view of the underlying connection. WriteEvent
// forwards an outbound event the driver has already validated; transports
// do not re-check ordering or capabilities.
type Transport interface {
	WriteEvent(ev protocol.Event) error
}

// Driver is the per-connection state machine. It owns the channel pair,
// validates every outbound event against the protocol state and the
// scope's capability set, and is the sole authority converting failures
// into terminal states.
//
// Lifecycle: NewDriver (Initialized) → BindScope (ScopeBuilt) → Run
// (AppRunning onward). The transport feeds inbound events with Deliver and
// reports connection loss with Abort.
type Driver struct {
	transport Transport
	ch        *channelPair
	logger    *slog.Logger

	mu         sync.Mutex
	state      protocol.ConnState
	scope      *protocol.Scope
	abortCause error
}

// NewDriver creates a driver in the Initialized state. queueSize bounds
// the inbound event buffer.
func NewDriver(t Transport, queueSize int, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		transport: t,
		ch:        newChannelPair(queueSize),
		logger:    logger,
		state:     protocol.StateInitialized,
	}
}

// State returns the current connection state.
func (d *Driver) State() protocol.ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Scope returns the bound scope, nil before BindScope.
func (d *Driver) Scope() *protocol.Scope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scope
}

// BindScope transitions Initialized → ScopeBuilt. The scope must come from
// protocol.NewScope; a nil scope is a MalformedRequest.
func (d *Driver) BindScope(scope *protocol.Scope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != protocol.StateInitialized {
		return fmt.Errorf("driver: BindScope in state %s", d.state)
	}
	if scope == nil {
		d.abortLocked(protocol.MalformedRequestf("nil scope"))
		return d.abortCause
	}
	d.scope = scope
	d.state = protocol.StateScopeBuilt
	return nil
}

// Deliver queues an inbound event for the application. It blocks while the
// application is behind and the buffer is full, and returns the terminal
// cause once the connection is done.
func (d *Driver) Deliver(ev protocol.Event) error {
	return d.ch.deliver(ev)
}

// Abort moves the connection to the Aborted state. Transports call it on
// I/O errors so that pending receive and send calls resolve instead of
// hanging. The first terminal transition wins; later calls are no-ops.
func (d *Driver) Abort(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.Terminal() {
		d.abortLocked(cause)
	}
}

// abortLocked records the terminal failure and releases the channel pair.
// Caller holds d.mu.
func (d *Driver) abortLocked(cause error) {
	d.state = protocol.StateAborted
	d.abortCause = cause
	d.ch.close(cause)
}

// Run invokes the application with the bound scope and the connection's
// receive/send pair, blocking until the connection reaches a terminal
// state. The returned error is nil on ResponseComplete and the terminal
// cause otherwise. A panic in application code is recovered and treated as
// an ApplicationFailure.
func (d *Driver) Run(ctx context.Context, app gavi.Application) error {
	d.mu.Lock()
	if d.state != protocol.StateScopeBuilt {
		state := d.state
		cause := d.abortCause
		d.mu.Unlock()
		if state == protocol.StateAborted {
			return cause
		}
		return fmt.Errorf("driver: Run in state %s", state)
	}
	d.state = protocol.StateAppRunning
	scope := d.scope
	d.mu.Unlock()

	err := d.invoke(ctx, app, scope)
	return d.finish(scope, err)
}

func (d *Driver) invoke(ctx context.Context, app gavi.Application, scope *protocol.Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("application panic",
				"panic", r,
				"path", scope.Path,
				"stack", string(debug.Stack()))
			err = protocol.ApplicationFailure(fmt.Errorf("panic: %v", r))
		}
	}()
	return app.Serve(ctx, scope, d.receive, d.send)
}

// finish classifies the application's outcome and settles the terminal
// state. It always releases the channel pair so transport pumps unblock.
func (d *Driver) finish(scope *protocol.Scope, err error) error {
	d.mu.Lock()
	state := d.state
	cause := d.abortCause

	// The nil-error classification must hold the lock through the state
	// check: a transport Abort racing with the application's return would
	// otherwise be overwritten by the completion transition below.
	if err == nil {
		switch {
		case state == protocol.StateResponseComplete:
			d.mu.Unlock()
			d.ch.close(nil)
			return nil
		case state == protocol.StateAborted:
			d.mu.Unlock()
			return cause
		case scope.Type != protocol.ProtocolHTTP:
			// Lifespan and websocket applications complete by returning;
			// the transport closes the connection cleanly.
			d.state = protocol.StateResponseComplete
			d.mu.Unlock()
			d.ch.close(nil)
			return nil
		default:
			d.mu.Unlock()
			err = protocol.ApplicationFailure(
				fmt.Errorf("application returned without completing the response (state %s)", state))
		}
	} else {
		d.mu.Unlock()
	}

	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = protocol.ApplicationFailure(err)
	}

	// Substitute a generic failure response when nothing was sent yet; once
	// headers are on the wire they cannot be retracted, so the connection
	// is simply terminated.
	if scope.Type == protocol.ProtocolHTTP &&
		state != protocol.StateAborted && state < protocol.StateResponseStarted &&
		perr.Code == protocol.CodeApplicationFailure {
		d.writeFailureResponse()
	}

	d.Abort(perr)
	return perr
}

func (d *Driver) writeFailureResponse() {
	start := protocol.ResponseStart{
		Status: 500,
		Headers: protocol.Headers{
			{Name: "content-type", Value: "text/plain; charset=utf-8"},
		},
	}
	if err := d.transport.WriteEvent(start); err != nil {
		return
	}
	_ = d.transport.WriteEvent(protocol.ResponseBody{Body: []byte("Internal Server Error\n")})
}

// receive is the application's inbound end of the channel pair.
func (d *Driver) receive(ctx context.Context) (protocol.Event, error) {
	return d.ch.receive(ctx)
}

// send validates ev against the state machine and the scope's capability
// set, forwards it to the transport, and advances the state. Any violation
// aborts the connection and is returned to the caller; middleware must let
// it propagate.
func (d *Driver) send(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return protocol.TransportFailure(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case protocol.StateAborted:
		return d.abortCause
	case protocol.StateResponseComplete:
		return d.violateLocked("event %s sent after the response completed", eventName(ev))
	}
	if ev == nil {
		return d.violateLocked("nil event")
	}

	et := ev.Type()
	if et.Inbound() {
		return d.violateLocked("event %s flows inbound and cannot be sent", et)
	}
	if et.Protocol() != d.scope.Type {
		return d.violateLocked("event %s is not legal on a %s connection", et, d.scope.Type)
	}
	if ext, gated := et.RequiredExtension(); gated && !d.scope.Extensions.Has(ext) {
		return d.violateLocked("event %s requires the %q extension, which this connection does not support", et, ext)
	}

	next, verr := d.nextStateLocked(ev)
	if verr != nil {
		d.abortLocked(verr)
		return verr
	}

	if err := d.transport.WriteEvent(ev); err != nil {
		tf := protocol.TransportFailure(err)
		d.abortLocked(tf)
		return tf
	}
	d.state = next
	if next == protocol.StateResponseComplete {
		d.ch.close(nil)
	}
	return nil
}

// nextStateLocked computes the state transition for an outbound event, or
// a violation when the event is out of order. Caller holds d.mu.
func (d *Driver) nextStateLocked(ev protocol.Event) (protocol.ConnState, *protocol.Error) {
	switch e := ev.(type) {
	case protocol.ResponseStart:
		if d.state == protocol.StateResponseStarted {
			return 0, protocol.Violationf("second response.start (response already started)")
		}
		return protocol.StateResponseStarted, nil

	case protocol.ResponseBody:
		if d.state != protocol.StateResponseStarted {
			return 0, protocol.Violationf("response.body before response.start")
		}
		if !e.More {
			return protocol.StateResponseComplete, nil
		}
		return protocol.StateResponseStarted, nil

	case protocol.ResponseFlush:
		if d.state != protocol.StateResponseStarted {
			return 0, protocol.Violationf("response.flush before response.start")
		}
		return d.state, nil

	case protocol.LifespanStartupComplete, protocol.LifespanStartupFailed:
		return d.state, nil

	case protocol.LifespanShutdownComplete, protocol.LifespanShutdownFailed:
		return protocol.StateResponseComplete, nil

	case protocol.WebSocketAccept:
		if d.state == protocol.StateResponseStarted {
			return 0, protocol.Violationf("second websocket.accept (connection already accepted)")
		}
		return protocol.StateResponseStarted, nil

	case protocol.WebSocketSend:
		if d.state != protocol.StateResponseStarted {
			return 0, protocol.Violationf("websocket.send before websocket.accept")
		}
		return d.state, nil

	case protocol.WebSocketClose:
		// Legal both before accept (handshake rejection) and after.
		return protocol.StateResponseComplete, nil

	default:
		return 0, protocol.Violationf("unknown outbound event %s", eventName(ev))
	}
}

// violateLocked aborts with a ProtocolViolation and returns it. Caller
// holds d.mu.
func (d *Driver) violateLocked(format string, args ...any) *protocol.Error {
	verr := protocol.Violationf(format, args...)
	d.abortLocked(verr)
	return verr
}

func eventName(ev protocol.Event) string {
	if ev == nil {
		return "<nil>"
	}
	return ev.Type().String()
}
