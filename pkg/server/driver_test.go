package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// recordTransport captures the events the driver forwards to the wire.
type recordTransport struct {
	mu       sync.Mutex
	events   []protocol.Event
	writeErr error
}

func (t *recordTransport) WriteEvent(ev protocol.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.events = append(t.events, ev)
	return nil
}

func (t *recordTransport) recorded() []protocol.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Event, len(t.events))
	copy(out, t.events)
	return out
}

func testScope(t *testing.T, exts protocol.Extensions) *protocol.Scope {
	t.Helper()
	scope, err := protocol.NewScope(protocol.Scope{
		Type:       protocol.ProtocolHTTP,
		Method:     "GET",
		Path:       "/info",
		Extensions: exts,
	})
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}
	return scope
}

func newTestDriver(t *testing.T, scope *protocol.Scope) (*Driver, *recordTransport) {
	t.Helper()
	tr := &recordTransport{}
	drv := NewDriver(tr, 8, slog.Default())
	if err := drv.BindScope(scope); err != nil {
		t.Fatalf("BindScope failed: %v", err)
	}
	return drv, tr
}

func TestDriverHappyPath(t *testing.T) {
	scope := testScope(t, nil)
	drv, tr := newTestDriver(t, scope)

	var states []protocol.ConnState
	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		states = append(states, drv.State()) // AppRunning
		if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
			return err
		}
		states = append(states, drv.State()) // ResponseStarted
		if err := send(ctx, protocol.ResponseBody{Body: []byte("ok")}); err != nil {
			return err
		}
		states = append(states, drv.State()) // ResponseComplete
		return nil
	})

	if err := drv.Run(context.Background(), app); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []protocol.ConnState{
		protocol.StateAppRunning,
		protocol.StateResponseStarted,
		protocol.StateResponseComplete,
	}
	for i, s := range want {
		if states[i] != s {
			t.Errorf("state[%d] = %s, want %s", i, states[i], s)
		}
	}
	if drv.State() != protocol.StateResponseComplete {
		t.Errorf("final state = %s, want ResponseComplete", drv.State())
	}

	events := tr.recorded()
	if len(events) != 2 {
		t.Fatalf("transport observed %d events, want 2", len(events))
	}
	start, ok := events[0].(protocol.ResponseStart)
	if !ok || start.Status != 200 {
		t.Errorf("events[0] = %#v, want ResponseStart{200}", events[0])
	}
	body, ok := events[1].(protocol.ResponseBody)
	if !ok || string(body.Body) != "ok" || body.More {
		t.Errorf("events[1] = %#v, want final ResponseBody{ok}", events[1])
	}
}

func TestDriverBodyBeforeStart(t *testing.T) {
	scope := testScope(t, nil)
	drv, tr := newTestDriver(t, scope)

	var sendErr error
	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		sendErr = send(ctx, protocol.ResponseBody{Body: []byte("nope")})
		return sendErr
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("Run error = %v, want ProtocolViolation", err)
	}
	if !errors.Is(sendErr, protocol.ErrProtocolViolation) {
		t.Errorf("send error = %v, want ProtocolViolation", sendErr)
	}
	if drv.State() != protocol.StateAborted {
		t.Errorf("state = %s, want Aborted", drv.State())
	}
	if len(tr.recorded()) != 0 {
		t.Errorf("transport observed %d events, want 0", len(tr.recorded()))
	}
}

func TestDriverSecondResponseStart(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
			return err
		}
		return send(ctx, protocol.ResponseStart{Status: 201})
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("Run error = %v, want ProtocolViolation", err)
	}
	if drv.State() != protocol.StateAborted {
		t.Errorf("state = %s, want Aborted", drv.State())
	}
}

func TestDriverCapabilityGating(t *testing.T) {
	t.Run("flush without capability", func(t *testing.T) {
		scope := testScope(t, nil)
		drv, _ := newTestDriver(t, scope)

		app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
			if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
				return err
			}
			return send(ctx, protocol.ResponseFlush{})
		})

		err := drv.Run(context.Background(), app)
		if !errors.Is(err, protocol.ErrProtocolViolation) {
			t.Errorf("Run error = %v, want ProtocolViolation", err)
		}
		if drv.State() != protocol.StateAborted {
			t.Errorf("state = %s, want Aborted", drv.State())
		}
	})

	t.Run("flush with capability", func(t *testing.T) {
		scope := testScope(t, protocol.Extensions{protocol.ExtensionHTTPResponseFlush: nil})
		drv, tr := newTestDriver(t, scope)

		app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
			if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
				return err
			}
			if err := send(ctx, protocol.ResponseFlush{}); err != nil {
				return err
			}
			return send(ctx, protocol.ResponseBody{Body: []byte("ok")})
		})

		if err := drv.Run(context.Background(), app); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		events := tr.recorded()
		if len(events) != 3 {
			t.Fatalf("transport observed %d events, want 3", len(events))
		}
		if _, ok := events[1].(protocol.ResponseFlush); !ok {
			t.Errorf("events[1] = %#v, want ResponseFlush", events[1])
		}
	})
}

func TestDriverSendAfterComplete(t *testing.T) {
	scope := testScope(t, nil)
	drv, tr := newTestDriver(t, scope)

	var lateErr error
	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
			return err
		}
		if err := send(ctx, protocol.ResponseBody{Body: []byte("done")}); err != nil {
			return err
		}
		lateErr = send(ctx, protocol.ResponseBody{Body: []byte("extra")})
		return nil
	})

	// The application swallows the late error; the driver still reports the
	// terminal cause.
	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("Run error = %v, want ProtocolViolation", err)
	}
	if !errors.Is(lateErr, protocol.ErrProtocolViolation) {
		t.Errorf("late send error = %v, want ProtocolViolation", lateErr)
	}
	if got := len(tr.recorded()); got != 2 {
		t.Errorf("transport observed %d events, want 2 (no events after final body)", got)
	}
}

func TestDriverBodyDraining(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	chunks := []protocol.Request{
		{Body: []byte("a"), More: true},
		{Body: []byte("b"), More: true},
		{Body: []byte("c")},
	}
	for _, c := range chunks {
		if err := drv.Deliver(c); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}

	var got []protocol.Request
	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		for {
			ev, err := receive(ctx)
			if err != nil {
				return err
			}
			chunk, ok := ev.(protocol.Request)
			if !ok {
				return errors.New("unexpected event type")
			}
			got = append(got, chunk)
			if !chunk.More {
				break
			}
		}
		if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
			return err
		}
		return send(ctx, protocol.ResponseBody{Body: []byte("ok")})
	})

	if err := drv.Run(context.Background(), app); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("received %d chunks, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(got[i].Body) != want {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i].Body, want)
		}
	}
	if got[0].More != true || got[1].More != true || got[2].More != false {
		t.Errorf("more flags = [%v %v %v], want [true true false]", got[0].More, got[1].More, got[2].More)
	}
}

func TestDriverAppErrorBeforeStartSubstitutes500(t *testing.T) {
	scope := testScope(t, nil)
	drv, tr := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		return errors.New("handler blew up")
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrApplicationFailure) {
		t.Errorf("Run error = %v, want ApplicationFailure", err)
	}
	if drv.State() != protocol.StateAborted {
		t.Errorf("state = %s, want Aborted", drv.State())
	}

	events := tr.recorded()
	if len(events) != 2 {
		t.Fatalf("transport observed %d events, want substituted 500 response", len(events))
	}
	start, ok := events[0].(protocol.ResponseStart)
	if !ok || start.Status != 500 {
		t.Errorf("events[0] = %#v, want ResponseStart{500}", events[0])
	}
}

func TestDriverAppErrorAfterStartTerminates(t *testing.T) {
	scope := testScope(t, nil)
	drv, tr := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
			return err
		}
		return errors.New("died mid-response")
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrApplicationFailure) {
		t.Errorf("Run error = %v, want ApplicationFailure", err)
	}

	// Headers are on the wire; no substitute response may follow.
	events := tr.recorded()
	if len(events) != 1 {
		t.Errorf("transport observed %d events, want 1 (no substitute after start)", len(events))
	}
}

func TestDriverAppPanicIsApplicationFailure(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		panic("boom")
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrApplicationFailure) {
		t.Errorf("Run error = %v, want ApplicationFailure", err)
	}
	if drv.State() != protocol.StateAborted {
		t.Errorf("state = %s, want Aborted", drv.State())
	}
}

func TestDriverIncompleteResponse(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		return nil // never sends anything
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrApplicationFailure) {
		t.Errorf("Run error = %v, want ApplicationFailure for incomplete response", err)
	}
}

func TestDriverTransportWriteFailure(t *testing.T) {
	scope := testScope(t, nil)
	tr := &recordTransport{writeErr: errors.New("broken pipe")}
	drv := NewDriver(tr, 8, slog.Default())
	if err := drv.BindScope(scope); err != nil {
		t.Fatalf("BindScope failed: %v", err)
	}

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		return send(ctx, protocol.ResponseStart{Status: 200})
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrTransportFailure) {
		t.Errorf("Run error = %v, want TransportFailure", err)
	}
	if drv.State() != protocol.StateAborted {
		t.Errorf("state = %s, want Aborted", drv.State())
	}
}

func TestDriverAbortUnblocksReceive(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		_, err := receive(ctx) // nothing will arrive
		return err
	})

	go func() {
		drv.Abort(protocol.TransportFailure(errors.New("peer went away")))
	}()

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrTransportFailure) {
		t.Errorf("Run error = %v, want TransportFailure", err)
	}
}

func TestDriverRejectsWrongProtocolEvent(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		return send(ctx, protocol.WebSocketSend{Text: "hi"})
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("Run error = %v, want ProtocolViolation for websocket event on http scope", err)
	}
}

func TestDriverRejectsInboundEventOnSend(t *testing.T) {
	scope := testScope(t, nil)
	drv, _ := newTestDriver(t, scope)

	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		return send(ctx, protocol.Request{Body: []byte("x")})
	})

	err := drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("Run error = %v, want ProtocolViolation for inbound event on send", err)
	}
}

func TestDriverPeerAbortBeforeAppReturns(t *testing.T) {
	// A websocket application returning nil after the transport reported
	// connection loss must not be reported as a clean completion.
	scope, err := protocol.NewScope(protocol.Scope{
		Type:   protocol.ProtocolWebSocket,
		Method: "GET",
		Path:   "/ws",
	})
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}
	drv, _ := newTestDriver(t, scope)

	if err := drv.Deliver(protocol.WebSocketConnect{}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	peerGone := errors.New("connection reset by peer")
	app := gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		if _, err := receive(ctx); err != nil {
			return err
		}
		drv.Abort(protocol.TransportFailure(peerGone))
		return nil
	})

	err = drv.Run(context.Background(), app)
	if !errors.Is(err, protocol.ErrTransportFailure) {
		t.Errorf("Run = %v, want the transport failure", err)
	}
	if drv.State() != protocol.StateAborted {
		t.Errorf("final state = %s, want Aborted", drv.State())
	}
}
