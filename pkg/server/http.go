package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Handler adapts an Application to net/http for plain HTTP traffic. It
// builds the scope from the request, streams the request body to the
// application as chunked request events, and writes accepted response
// events back to the wire. Mount it directly or through Server.
type Handler struct {
	app      gavi.Application
	config   *Config
	registry *protocol.Registry
	logger   *slog.Logger
}

// NewHandler creates an HTTP transport handler for app. config may be nil
// for defaults.
func NewHandler(app gavi.Application, config *Config) *Handler {
	config = config.withDefaults()
	return &Handler{
		app:      app,
		config:   config,
		registry: config.Registry,
		logger:   config.Logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, canFlush := w.(http.Flusher)

	features := protocol.Features{CanFlush: canFlush, TLS: r.TLS}
	scope, err := ScopeFromRequest(r, h.registry.Extensions(features))
	if err != nil {
		h.logger.Warn("rejecting malformed request", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	t := &httpTransport{w: w, flusher: flusher}
	drv := NewDriver(t, h.config.EventQueueSize, h.logger)
	if err := drv.BindScope(scope); err != nil {
		h.logger.Error("scope bind failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	go h.pumpBody(drv, r.Body)

	if err := drv.Run(r.Context(), h.app); err != nil {
		h.logger.Error("connection aborted",
			"error", err,
			"method", scope.Method,
			"path", scope.Path,
			"state", drv.State().String())
	}
}

// pumpBody reads the request body and delivers it as request events. The
// final chunk carries More false; a request without a body still produces
// one empty final chunk so applications can drain unconditionally.
func (h *Handler) pumpBody(drv *Driver, body io.ReadCloser) {
	defer body.Close()

	buf := make([]byte, h.config.ReadChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if derr := drv.Deliver(protocol.Request{Body: chunk, More: err == nil}); derr != nil {
				return
			}
		}
		if err == io.EOF {
			if n == 0 {
				_ = drv.Deliver(protocol.Request{})
			}
			return
		}
		if err != nil {
			drv.Abort(protocol.TransportFailure(err))
			return
		}
	}
}

// ScopeFromRequest builds an http scope from a net/http request and a
// precomputed extension map. Exported for transports and tests that bridge
// from net/http themselves.
func ScopeFromRequest(r *http.Request, exts protocol.Extensions) (*protocol.Scope, error) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return protocol.NewScope(protocol.Scope{
		Type:        protocol.ProtocolHTTP,
		Method:      r.Method,
		Path:        r.URL.Path,
		RawPath:     r.URL.EscapedPath(),
		QueryString: r.URL.RawQuery,
		Scheme:      scheme,
		HTTPVersion: strings.TrimPrefix(r.Proto, "HTTP/"),
		Headers:     headersFromRequest(r),
		Client:      addrFromString(r.RemoteAddr),
		Extensions:  exts,
	})
}

func headersFromRequest(r *http.Request) protocol.Headers {
	headers := make(protocol.Headers, 0, len(r.Header)+1)
	if r.Host != "" {
		headers = append(headers, protocol.Header{Name: "host", Value: r.Host})
	}
	for name, vals := range r.Header {
		for _, v := range vals {
			headers = append(headers, protocol.Header{Name: strings.ToLower(name), Value: v})
		}
	}
	return headers
}

func addrFromString(s string) *protocol.Addr {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		if s == "" {
			return nil
		}
		return &protocol.Addr{Host: s}
	}
	port, _ := strconv.Atoi(portStr)
	return &protocol.Addr{Host: host, Port: port}
}

// httpTransport writes driver-accepted events to a net/http response.
type httpTransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (t *httpTransport) WriteEvent(ev protocol.Event) error {
	switch e := ev.(type) {
	case protocol.ResponseStart:
		hdr := t.w.Header()
		for _, h := range e.Headers {
			hdr.Add(h.Name, h.Value)
		}
		status := e.Status
		if status == 0 {
			status = http.StatusOK
		}
		t.w.WriteHeader(status)
		return nil

	case protocol.ResponseBody:
		if len(e.Body) == 0 {
			return nil
		}
		_, err := t.w.Write(e.Body)
		return err

	case protocol.ResponseFlush:
		// Gated upstream: the driver rejects flush when the capability is
		// absent, so flusher is non-nil here.
		t.flusher.Flush()
		return nil

	default:
		return protocol.Violationf("http transport cannot write %s", ev.Type())
	}
}
