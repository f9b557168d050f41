package web

import (
	"bytes"
	"context"
	"net/url"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Request wraps the scope and receive end of one http connection. The
// body is drained lazily on first access and cached, so handlers may call
// Body any number of times.
type Request struct {
	scope   *protocol.Scope
	receive gavi.Receive

	body    []byte
	drained bool
}

// NewRequest wraps scope and receive. The scope must be of type
// protocol.ProtocolHTTP.
func NewRequest(scope *protocol.Scope, receive gavi.Receive) *Request {
	return &Request{scope: scope, receive: receive}
}

// Scope returns the underlying scope. Read-only.
func (r *Request) Scope() *protocol.Scope { return r.scope }

// Method returns the request method.
func (r *Request) Method() string { return r.scope.Method }

// Path returns the normalized request path.
func (r *Request) Path() string { return r.scope.Path }

// Header returns the value of one header, last occurrence winning. Empty
// string when absent.
func (r *Request) Header(name string) string {
	v, _ := r.scope.Headers.Get(name)
	return v
}

// Query parses and returns the query string values.
func (r *Request) Query() url.Values {
	vals, err := url.ParseQuery(r.scope.QueryString)
	if err != nil {
		return url.Values{}
	}
	return vals
}

// Body drains the request body and returns it whole. It calls receive
// until a chunk with More false or a non-body event arrives, per the
// protocol's draining contract, then caches the result.
func (r *Request) Body(ctx context.Context) ([]byte, error) {
	if r.drained {
		return r.body, nil
	}
	var buf bytes.Buffer
	for {
		ev, err := r.receive(ctx)
		if err != nil {
			return nil, err
		}
		chunk, ok := ev.(protocol.Request)
		if !ok {
			break
		}
		buf.Write(chunk.Body)
		if !chunk.More {
			break
		}
	}
	r.body = buf.Bytes()
	r.drained = true
	return r.body, nil
}
