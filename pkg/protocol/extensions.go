package protocol

import "crypto/tls"

// Extension names an optional protocol capability. The set of known names
// is closed and versioned with this package; unknown names are never
// placed into a Scope by the built-in transports.
type Extension string

const (
	// ExtensionHTTPResponseFlush advertises that the transport can force a
	// flush of buffered response bytes mid-response via ResponseFlush.
	ExtensionHTTPResponseFlush Extension = "http.response.flush"

	// ExtensionTLS advertises that TLS terminated on this connection; the
	// descriptor is a *TLSInfo with the handshake results.
	ExtensionTLS Extension = "tls"
)

// Extensions maps negotiated capabilities to their descriptors. Presence
// of a key, not its value, is the support signal; a descriptor may be nil.
type Extensions map[Extension]any

// Has reports whether the capability is supported on this connection.
func (e Extensions) Has(ext Extension) bool {
	_, ok := e[ext]
	return ok
}

func (e Extensions) clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// TLSInfo is the descriptor stored under ExtensionTLS: the facts of the
// TLS handshake, immutable for the life of the connection.
type TLSInfo struct {
	Version     uint16
	CipherSuite uint16
	ServerName  string
	ALPN        string
}

// Features reports what the transport negotiated for one connection. It is
// the registry's input when computing a scope's extension map.
type Features struct {
	// CanFlush reports whether the transport can flush buffered response
	// bytes on demand.
	CanFlush bool

	// TLS holds the handshake result, nil for plaintext connections.
	TLS *tls.ConnectionState
}

// Provider computes the descriptor for one extension from the transport's
// negotiated features. ok false means the capability is absent on this
// connection; callers cannot distinguish that from the extension never
// being registered, which is deliberate.
type Provider func(f Features) (descriptor any, ok bool)

// Registry turns transport features into a Scope extension map. Providers
// are independent: registering a new extension never affects the output of
// existing ones. A Registry is read-only after setup and safe to share
// across concurrent connections.
type Registry struct {
	providers map[Extension]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Extension]Provider)}
}

// Register adds a provider for ext, replacing any previous one. Not safe
// to call concurrently with Extensions; complete setup before serving.
func (r *Registry) Register(ext Extension, p Provider) {
	r.providers[ext] = p
}

// Extensions computes the capability map for a connection with the given
// features. A key is present iff its provider reported ok.
func (r *Registry) Extensions(f Features) Extensions {
	if len(r.providers) == 0 {
		return Extensions{}
	}
	out := make(Extensions, len(r.providers))
	for ext, p := range r.providers {
		if desc, ok := p(f); ok {
			out[ext] = desc
		}
	}
	return out
}

// DefaultRegistry returns a registry with the built-in extensions:
// ExtensionHTTPResponseFlush when the transport can flush, and
// ExtensionTLS with a *TLSInfo descriptor when TLS terminated on the
// connection.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ExtensionHTTPResponseFlush, func(f Features) (any, bool) {
		return nil, f.CanFlush
	})
	r.Register(ExtensionTLS, func(f Features) (any, bool) {
		if f.TLS == nil {
			return nil, false
		}
		return &TLSInfo{
			Version:     f.TLS.Version,
			CipherSuite: f.TLS.CipherSuite,
			ServerName:  f.TLS.ServerName,
			ALPN:        f.TLS.NegotiatedProtocol,
		}, true
	})
	return r
}
