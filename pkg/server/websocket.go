package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// WebSocketHandler adapts an Application to websocket connections. The
// upgrade handshake is deferred until the application answers the
// websocket.connect event: WebSocketAccept completes it, WebSocketClose
// before accept rejects it with a plain HTTP response.
type WebSocketHandler struct {
	app      gavi.Application
	config   *Config
	registry *protocol.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a websocket transport handler for app.
// config may be nil for defaults.
func NewWebSocketHandler(app gavi.Application, config *Config) *WebSocketHandler {
	config = config.withDefaults()
	return &WebSocketHandler{
		app:      app,
		config:   config,
		registry: config.Registry,
		logger:   config.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: config.CheckOrigin,
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	features := protocol.Features{TLS: r.TLS}
	scope, err := scopeFromUpgrade(r, h.registry.Extensions(features))
	if err != nil {
		h.logger.Warn("rejecting malformed websocket request", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	t := &wsTransport{
		w:        w,
		r:        r,
		upgrader: &h.upgrader,
		config:   h.config,
		logger:   h.logger,
	}
	drv := NewDriver(t, h.config.EventQueueSize, h.logger)
	if err := drv.BindScope(scope); err != nil {
		h.logger.Error("scope bind failed", "error", err)
		return
	}
	t.drv = drv

	if err := drv.Deliver(protocol.WebSocketConnect{}); err != nil {
		return
	}

	if err := drv.Run(r.Context(), h.app); err != nil {
		h.logger.Error("websocket connection aborted",
			"error", err,
			"path", scope.Path,
			"state", drv.State().String())
	}
	t.shutdown()
}

func scopeFromUpgrade(r *http.Request, exts protocol.Extensions) (*protocol.Scope, error) {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	var subprotocols []string
	for _, v := range r.Header.Values("Sec-Websocket-Protocol") {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				subprotocols = append(subprotocols, p)
			}
		}
	}
	return protocol.NewScope(protocol.Scope{
		Type:         protocol.ProtocolWebSocket,
		Method:       r.Method,
		Path:         r.URL.Path,
		RawPath:      r.URL.EscapedPath(),
		QueryString:  r.URL.RawQuery,
		Scheme:       scheme,
		HTTPVersion:  strings.TrimPrefix(r.Proto, "HTTP/"),
		Headers:      headersFromRequest(r),
		Client:       addrFromString(r.RemoteAddr),
		Subprotocols: subprotocols,
		Extensions:   exts,
	})
}

// wsTransport bridges driver-accepted events to a gorilla websocket
// connection. conn is nil until the application accepts the handshake.
type wsTransport struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader
	config   *Config
	logger   *slog.Logger
	drv      *Driver

	mu   sync.Mutex // protects conn writes
	conn *websocket.Conn
}

func (t *wsTransport) WriteEvent(ev protocol.Event) error {
	switch e := ev.(type) {
	case protocol.WebSocketAccept:
		return t.accept(e)

	case protocol.WebSocketSend:
		t.mu.Lock()
		defer t.mu.Unlock()
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
		if e.Bytes != nil {
			return t.conn.WriteMessage(websocket.BinaryMessage, e.Bytes)
		}
		return t.conn.WriteMessage(websocket.TextMessage, []byte(e.Text))

	case protocol.WebSocketClose:
		return t.close(e)

	default:
		return protocol.Violationf("websocket transport cannot write %s", ev.Type())
	}
}

// accept completes the deferred upgrade handshake and starts the read pump.
func (t *wsTransport) accept(e protocol.WebSocketAccept) error {
	respHeader := make(http.Header, len(e.Headers)+1)
	for _, h := range e.Headers {
		respHeader.Add(h.Name, h.Value)
	}
	if e.Subprotocol != "" {
		respHeader.Set("Sec-Websocket-Protocol", e.Subprotocol)
	}

	conn, err := t.upgrader.Upgrade(t.w, t.r, respHeader)
	if err != nil {
		return err
	}
	conn.SetReadLimit(t.config.MaxMessageSize)

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readPump(conn)
	return nil
}

// close either rejects the handshake (before accept) or closes the
// accepted connection with the application's code and reason.
func (t *wsTransport) close(e protocol.WebSocketClose) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		status := http.StatusForbidden
		if e.Code == 1000 {
			status = http.StatusOK
		}
		http.Error(t.w, e.Reason, status)
		return nil
	}

	code := e.Code
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, e.Reason))
	return conn.Close()
}

// readPump delivers inbound frames as websocket.receive events until the
// peer goes away, then delivers websocket.disconnect and stops.
func (t *wsTransport) readPump(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			} else if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				t.logger.Debug("websocket read error", "error", err)
			}
			_ = t.drv.Deliver(protocol.WebSocketDisconnect{Code: code})
			return
		}

		var ev protocol.WebSocketReceive
		if mt == websocket.BinaryMessage {
			ev.Bytes = data
		} else {
			ev.Text = string(data)
		}
		if err := t.drv.Deliver(ev); err != nil {
			return
		}
	}
}

// shutdown closes the underlying connection after the driver is done.
func (t *wsTransport) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

// IsWebSocketUpgrade reports whether r asks for a websocket upgrade.
func IsWebSocketUpgrade(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade") &&
		headerContainsToken(r.Header, "Upgrade", "websocket")
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}
