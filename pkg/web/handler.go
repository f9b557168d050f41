package web

import (
	"context"
	"net/http"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// HandlerFunc is the convenience handler signature: a wrapped request and
// response instead of the raw channel pair.
type HandlerFunc func(ctx context.Context, req *Request, res *ResponseWriter) error

// Handler adapts h to a gavi.Application. A handler error before the
// response started is answered with a plain 500; once headers are on the
// wire the error simply propagates and the driver terminates the
// connection. A handler that returns nil without ending the response gets
// an implicit empty End.
func Handler(h HandlerFunc) gavi.Application {
	return gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		req := NewRequest(scope, receive)
		res := NewResponseWriter(scope, send)

		if err := h(ctx, req, res); err != nil {
			if !res.Started() {
				res.SetStatus(http.StatusInternalServerError)
				res.AddHeader("content-type", "text/plain; charset=utf-8")
				if endErr := res.End(ctx, []byte("Internal Server Error\n")); endErr != nil {
					return endErr
				}
			}
			return err
		}

		if !res.Ended() {
			return res.End(ctx, nil)
		}
		return nil
	})
}
