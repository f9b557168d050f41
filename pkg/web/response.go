package web

import (
	"context"
	"net/http"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// ResponseWriter stages a response over the send end of one http
// connection. Status and headers may be set until the first write; the
// response starts lazily with the first Write or End call.
type ResponseWriter struct {
	scope *protocol.Scope
	send  gavi.Send

	status  int
	headers protocol.Headers
	started bool
	ended   bool
}

// NewResponseWriter wraps scope and send.
func NewResponseWriter(scope *protocol.Scope, send gavi.Send) *ResponseWriter {
	return &ResponseWriter{scope: scope, send: send, status: http.StatusOK}
}

// SetStatus sets the response status. No effect after the response started.
func (w *ResponseWriter) SetStatus(status int) {
	if !w.started {
		w.status = status
	}
}

// AddHeader appends a response header. No effect after the response started.
func (w *ResponseWriter) AddHeader(name, value string) {
	if !w.started {
		w.headers = append(w.headers, protocol.Header{Name: name, Value: value})
	}
}

// Started reports whether response.start has been sent.
func (w *ResponseWriter) Started() bool { return w.started }

// Write sends p as a response body chunk with more to follow, starting the
// response first if needed.
func (w *ResponseWriter) Write(ctx context.Context, p []byte) error {
	if err := w.start(ctx); err != nil {
		return err
	}
	return w.send(ctx, protocol.ResponseBody{Body: p, More: true})
}

// End sends p as the final body chunk and completes the response. p may be
// nil to end a streamed response.
func (w *ResponseWriter) End(ctx context.Context, p []byte) error {
	if err := w.start(ctx); err != nil {
		return err
	}
	w.ended = true
	return w.send(ctx, protocol.ResponseBody{Body: p})
}

// Flush asks the transport to flush buffered bytes. On connections without
// the flush capability it is a no-op: the capability check here is what
// keeps the wrapper safe to call unconditionally.
func (w *ResponseWriter) Flush(ctx context.Context) error {
	if !w.scope.Extensions.Has(protocol.ExtensionHTTPResponseFlush) {
		return nil
	}
	if !w.started {
		return nil
	}
	return w.send(ctx, protocol.ResponseFlush{})
}

// Ended reports whether the final body chunk has been sent.
func (w *ResponseWriter) Ended() bool { return w.ended }

func (w *ResponseWriter) start(ctx context.Context) error {
	if w.started {
		return nil
	}
	if err := w.send(ctx, protocol.ResponseStart{Status: w.status, Headers: w.headers}); err != nil {
		return err
	}
	w.started = true
	return nil
}
