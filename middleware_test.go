package gavi

import (
	"context"
	"testing"

	"github.com/gavi-dev/gavi/pkg/protocol"
)

// captureSend records every event in order, standing in for the driver.
func captureSend(events *[]protocol.Event) Send {
	return func(ctx context.Context, ev protocol.Event) error {
		*events = append(*events, ev)
		return nil
	}
}

// taggingMiddleware appends a response header naming itself on the way
// through, demonstrating pre-processing that preserves event order.
func taggingMiddleware(tag string) Middleware {
	return func(next Application) Application {
		return AppFunc(func(ctx context.Context, scope *protocol.Scope, receive Receive, send Send) error {
			wrapped := func(ctx context.Context, ev protocol.Event) error {
				if start, ok := ev.(protocol.ResponseStart); ok {
					headers := start.Headers.Clone()
					headers = append(headers, protocol.Header{Name: "x-via", Value: tag})
					return send(ctx, protocol.ResponseStart{Status: start.Status, Headers: headers})
				}
				return send(ctx, ev)
			}
			return next.Serve(ctx, scope, receive, wrapped)
		})
	}
}

func testApp() Application {
	return AppFunc(func(ctx context.Context, scope *protocol.Scope, receive Receive, send Send) error {
		if err := send(ctx, protocol.ResponseStart{Status: 200}); err != nil {
			return err
		}
		return send(ctx, protocol.ResponseBody{Body: []byte("ok")})
	})
}

func testScope(t *testing.T) *protocol.Scope {
	t.Helper()
	scope, err := protocol.NewScope(protocol.Scope{
		Type: protocol.ProtocolHTTP, Method: "GET", Path: "/",
	})
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}
	return scope
}

func run(t *testing.T, app Application) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	receive := func(ctx context.Context) (protocol.Event, error) {
		return protocol.Request{}, nil
	}
	if err := app.Serve(context.Background(), testScope(t), receive, captureSend(&events)); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	return events
}

func TestChainOrder(t *testing.T) {
	m1 := taggingMiddleware("m1")
	m2 := taggingMiddleware("m2")

	events := run(t, Chain(m1, m2)(testApp()))
	if len(events) != 2 {
		t.Fatalf("observed %d events, want 2", len(events))
	}

	start := events[0].(protocol.ResponseStart)
	vias := start.Headers.Values("x-via")
	// m2 is inner, so it tags first; m1 tags on the way out.
	if len(vias) != 2 || vias[0] != "m2" || vias[1] != "m1" {
		t.Errorf("x-via = %v, want [m2 m1]", vias)
	}
}

func TestChainAssociativity(t *testing.T) {
	m1 := taggingMiddleware("m1")
	m2 := taggingMiddleware("m2")

	variants := map[string]Application{
		"Chain(m1,m2)":               Chain(m1, m2)(testApp()),
		"m1(m2(app))":                m1(m2(testApp())),
		"Chain(m1)(Chain(m2)(app))":  Chain(m1)(Chain(m2)(testApp())),
		"Chain(Chain(m1, m2))(app)":  Chain(Chain(m1, m2))(testApp()),
	}

	var reference []protocol.Event
	for name, app := range variants {
		events := run(t, app)
		if reference == nil {
			reference = events
			continue
		}
		if len(events) != len(reference) {
			t.Fatalf("%s: observed %d events, want %d", name, len(events), len(reference))
		}
		refStart := reference[0].(protocol.ResponseStart)
		gotStart := events[0].(protocol.ResponseStart)
		refVias := refStart.Headers.Values("x-via")
		gotVias := gotStart.Headers.Values("x-via")
		if len(refVias) != len(gotVias) {
			t.Fatalf("%s: via count mismatch", name)
		}
		for i := range refVias {
			if refVias[i] != gotVias[i] {
				t.Errorf("%s: via[%d] = %q, want %q", name, i, gotVias[i], refVias[i])
			}
		}
	}
}

func TestMiddlewarePropagatesSendError(t *testing.T) {
	m := taggingMiddleware("m")

	violation := protocol.Violationf("out of order")
	failingSend := func(ctx context.Context, ev protocol.Event) error {
		return violation
	}

	app := m(testApp())
	err := app.Serve(context.Background(), testScope(t), nil, failingSend)
	if err == nil {
		t.Fatal("violation must propagate through middleware")
	}
}

func TestChainEmpty(t *testing.T) {
	events := run(t, Chain()(testApp()))
	if len(events) != 2 {
		t.Errorf("observed %d events, want 2", len(events))
	}
}
