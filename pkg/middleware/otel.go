package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Default tracer name for Gavi applications.
const defaultTracerName = "gavi"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "gavi").
	TracerName string

	// Filter determines which connections to trace. Return true to trace.
	// If nil, all connections are traced.
	Filter func(scope *protocol.Scope) bool

	// AttributeExtractor extracts custom attributes from the scope,
	// called once per traced connection.
	AttributeExtractor func(scope *protocol.Scope) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithFilter sets a filter function for connections.
func WithFilter(filter func(scope *protocol.Scope) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(scope *protocol.Scope) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry returns middleware that traces every connection.
//
// The middleware creates one span per connection carrying the protocol
// type, method, path, and scheme; the response status is added when the
// inner application starts the response, and errors set the span status.
// The span context flows to the application through ctx.
//
// The tracer uses the global OpenTelemetry tracer provider; configure it
// in main() before starting the server.
func OpenTelemetry(opts ...OTelOption) gavi.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return func(next gavi.Application) gavi.Application {
		return gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
			if config.Filter != nil && !config.Filter(scope) {
				return next.Serve(ctx, scope, receive, send)
			}

			attrs := []attribute.KeyValue{
				attribute.String("gavi.protocol", scope.Type.String()),
				attribute.String("http.request.method", scope.Method),
				attribute.String("url.path", scope.Path),
				attribute.String("url.scheme", scope.Scheme),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(scope)...)
			}

			ctx, span := config.tracer.Start(ctx, scope.Method+" "+scope.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...))
			defer span.End()

			wrapped := func(ctx context.Context, ev protocol.Event) error {
				if start, ok := ev.(protocol.ResponseStart); ok {
					span.SetAttributes(attribute.Int("http.response.status_code", start.Status))
				}
				return send(ctx, ev)
			}

			err := next.Serve(ctx, scope, receive, wrapped)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		})
	}
}
