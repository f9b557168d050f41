package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Logging returns middleware that logs one line per connection with the
// method, path, response status, bytes sent, and duration. It observes the
// event stream by wrapping send; every event is forwarded untouched.
//
// A nil logger uses slog.Default().
func Logging(logger *slog.Logger) gavi.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next gavi.Application) gavi.Application {
		return gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
			start := time.Now()
			var status int
			var bytesSent int

			wrapped := func(ctx context.Context, ev protocol.Event) error {
				switch e := ev.(type) {
				case protocol.ResponseStart:
					status = e.Status
				case protocol.ResponseBody:
					bytesSent += len(e.Body)
				}
				return send(ctx, ev)
			}

			err := next.Serve(ctx, scope, receive, wrapped)

			attrs := []any{
				"protocol", scope.Type.String(),
				"method", scope.Method,
				"path", scope.Path,
				"status", status,
				"bytes", bytesSent,
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Error("connection failed", append(attrs, "error", err)...)
			} else {
				logger.Info("connection complete", attrs...)
			}
			return err
		})
	}
}
