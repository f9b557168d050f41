package router

import (
	"context"
	"testing"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// markerApp records that it served a connection and what parameters it saw.
type markerApp struct {
	served bool
	params Params
}

func (m *markerApp) Serve(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
	m.served = true
	m.params = FromContext(ctx)
	return nil
}

func httpScope(t *testing.T, method, path string) *protocol.Scope {
	t.Helper()
	scope, err := protocol.NewScope(protocol.Scope{
		Type:   protocol.ProtocolHTTP,
		Method: method,
		Path:   path,
	})
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}
	return scope
}

// nopReceive and nopSend satisfy the channel signatures for apps that
// never touch the event stream.
func nopReceive(ctx context.Context) (protocol.Event, error) { return nil, context.Canceled }
func nopSend(ctx context.Context, ev protocol.Event) error   { return nil }

func TestRouterDispatch(t *testing.T) {
	users := &markerApp{}
	health := &markerApp{}

	r := New()
	r.Get("/users/{id}", users)
	r.Get("/health", health)

	err := r.Serve(context.Background(), httpScope(t, "GET", "/health"), nopReceive, nopSend)
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if !health.served {
		t.Error("/health should dispatch to the health application")
	}
	if users.served {
		t.Error("/health should not dispatch to the users application")
	}
}

func TestRouterParams(t *testing.T) {
	app := &markerApp{}
	r := New()
	r.Get("/users/{id}/posts/{post}", app)

	err := r.Serve(context.Background(), httpScope(t, "GET", "/users/42/posts/7"), nopReceive, nopSend)
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if !app.served {
		t.Fatal("route should match")
	}
	if got := app.params["id"]; got != "42" {
		t.Errorf("id = %q, want %q", got, "42")
	}
	if got := app.params["post"]; got != "7" {
		t.Errorf("post = %q, want %q", got, "7")
	}
}

func TestRouterMethodSelectsApplication(t *testing.T) {
	getApp := &markerApp{}
	postApp := &markerApp{}
	r := New()
	r.Get("/items", getApp)
	r.Post("/items", postApp)

	if err := r.Serve(context.Background(), httpScope(t, "POST", "/items"), nopReceive, nopSend); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if getApp.served || !postApp.served {
		t.Errorf("POST /items dispatched to get=%v post=%v, want the POST application",
			getApp.served, postApp.served)
	}
}

func TestRouterNotFound(t *testing.T) {
	r := New()
	r.Get("/known", &markerApp{})

	var sent []protocol.Event
	send := func(ctx context.Context, ev protocol.Event) error {
		sent = append(sent, ev)
		return nil
	}
	err := r.Serve(context.Background(), httpScope(t, "GET", "/unknown"), nopReceive, send)
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(sent) != 2 {
		t.Fatalf("got %d events, want response start and body", len(sent))
	}
	start, ok := sent[0].(protocol.ResponseStart)
	if !ok {
		t.Fatalf("first event is %T, want ResponseStart", sent[0])
	}
	if start.Status != 404 {
		t.Errorf("status = %d, want 404", start.Status)
	}
}

func TestRouterCustomNotFound(t *testing.T) {
	fallback := &markerApp{}
	r := New()
	r.SetNotFound(fallback)

	if err := r.Serve(context.Background(), httpScope(t, "GET", "/nowhere"), nopReceive, nopSend); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if !fallback.served {
		t.Error("custom not-found application should serve unmatched connections")
	}
}

func TestRouterNested(t *testing.T) {
	inner := &markerApp{}
	api := New()
	api.Get("/api/v1/{name}", inner)

	outer := New()
	outer.SetNotFound(api)
	outer.Get("/", &markerApp{})

	if err := outer.Serve(context.Background(), httpScope(t, "GET", "/api/v1/widget"), nopReceive, nopSend); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if !inner.served {
		t.Fatal("nested router should receive the connection")
	}
	if got := inner.params["name"]; got != "widget" {
		t.Errorf("name = %q, want %q", got, "widget")
	}
}

func TestParamHelpers(t *testing.T) {
	ctx := withParams(context.Background(), Params{"id": "9"})
	if got := Param(ctx, "id"); got != "9" {
		t.Errorf("Param(id) = %q, want %q", got, "9")
	}
	if got := Param(ctx, "missing"); got != "" {
		t.Errorf("Param(missing) = %q, want empty", got)
	}
	if got := Param(context.Background(), "id"); got != "" {
		t.Errorf("Param on bare context = %q, want empty", got)
	}
}
