package protocol

import (
	"strings"
)

// ProtocolType identifies which event variants are legal on a connection.
type ProtocolType uint8

const (
	ProtocolHTTP ProtocolType = iota + 1
	ProtocolLifespan
	ProtocolWebSocket
)

// String returns the string representation of the protocol type.
func (pt ProtocolType) String() string {
	switch pt {
	case ProtocolHTTP:
		return "http"
	case ProtocolLifespan:
		return "lifespan"
	case ProtocolWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Header is a single name/value pair. Duplicate names are legal; order is
// preserved from the wire.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header sequence.
type Headers []Header

// Get returns the value for name, matching case-insensitively. When the
// name appears more than once the last occurrence wins: later values are
// considered to have resolved earlier ones. The second return is false if
// the name is absent.
func (h Headers) Get(name string) (string, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if strings.EqualFold(h[i].Name, name) {
			return h[i].Value, true
		}
	}
	return "", false
}

// Values returns every value for name in wire order, matching
// case-insensitively. Returns nil if the name is absent.
func (h Headers) Values(name string) []string {
	var vals []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			vals = append(vals, hdr.Value)
		}
	}
	return vals
}

// Clone returns a copy that shares no backing storage with h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Addr identifies a transport peer.
type Addr struct {
	Host string
	Port int
}

// Scope is the immutable per-connection descriptor handed to application
// code. It is fully populated before the application is invoked and must
// never be mutated afterward; middleware passes extra context through
// context.Context values, never by altering the Scope.
type Scope struct {
	// Type determines which event variants are legal on this connection.
	Type ProtocolType

	// Request line fields, normalized at construction. Method is upper-case.
	Method      string
	Path        string
	RawPath     string
	QueryString string
	Scheme      string
	HTTPVersion string

	// Headers is the ordered header sequence as received from the wire.
	Headers Headers

	// Client and Server identify the transport peers. Either may be nil
	// when the transport cannot supply them.
	Client *Addr
	Server *Addr

	// Subprotocols lists the websocket subprotocols offered by the client.
	// Empty for other protocol types.
	Subprotocols []string

	// Extensions maps each negotiated capability to its descriptor.
	// Key presence, not the descriptor value, is the support signal.
	Extensions Extensions
}

// NewScope validates and builds a Scope. For ProtocolHTTP and
// ProtocolWebSocket the method and path are required and the path must be
// absolute; violations return a MalformedRequest error and the connection
// must be rejected before any application code runs.
//
// Headers and extensions are copied so later mutation of the caller's
// slices cannot leak into the scope.
func NewScope(s Scope) (*Scope, error) {
	switch s.Type {
	case ProtocolHTTP, ProtocolWebSocket:
		if s.Method == "" {
			return nil, MalformedRequestf("missing method")
		}
		if !validMethod(s.Method) {
			return nil, MalformedRequestf("invalid method %q", s.Method)
		}
		if s.Path == "" {
			return nil, MalformedRequestf("missing path")
		}
		if !strings.HasPrefix(s.Path, "/") {
			return nil, MalformedRequestf("path %q is not absolute", s.Path)
		}
	case ProtocolLifespan:
		// No request line for lifespan.
	default:
		return nil, MalformedRequestf("unknown protocol type %d", s.Type)
	}

	s.Method = strings.ToUpper(s.Method)
	if s.RawPath == "" {
		s.RawPath = s.Path
	}
	if s.Scheme == "" && s.Type != ProtocolLifespan {
		s.Scheme = defaultScheme(s.Type)
	}
	s.Headers = s.Headers.Clone()
	s.Extensions = s.Extensions.clone()
	if s.Subprotocols != nil {
		s.Subprotocols = append([]string(nil), s.Subprotocols...)
	}
	return &s, nil
}

func defaultScheme(pt ProtocolType) string {
	if pt == ProtocolWebSocket {
		return "ws"
	}
	return "http"
}

// validMethod reports whether m is an HTTP token per RFC 9110.
func validMethod(m string) bool {
	for i := 0; i < len(m); i++ {
		c := m[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return len(m) > 0
}
