package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "gavi").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for connection duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "gavi",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus collectors for the middleware.
type metrics struct {
	connectionsTotal   *prometheus.CounterVec
	connectionDuration *prometheus.HistogramVec
	abortsTotal        *prometheus.CounterVec
	inflight           prometheus.Gauge
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
}

func newMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of connections handled",
			ConstLabels: config.ConstLabels,
		}, []string{"protocol", "method", "status"}),

		connectionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_duration_seconds",
			Help:        "Connection handling duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"protocol"}),

		abortsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "aborts_total",
			Help:        "Total number of aborted connections by error code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_inflight",
			Help:        "Number of connections currently being handled",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "response_bytes_total",
			Help:        "Total response body bytes sent",
			ConstLabels: config.ConstLabels,
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_bytes_total",
			Help:        "Total request body bytes received",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus returns middleware that records connection metrics. Collectors
// are registered once per call, so build the middleware once and reuse it
// across applications rather than calling Prometheus per connection.
func Prometheus(opts ...MetricsOption) gavi.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := newMetrics(config)

	return func(next gavi.Application) gavi.Application {
		return gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
			start := time.Now()
			m.inflight.Inc()
			defer m.inflight.Dec()

			var status int

			wrappedReceive := func(ctx context.Context) (protocol.Event, error) {
				ev, err := receive(ctx)
				if req, ok := ev.(protocol.Request); ok {
					m.bytesReceived.Add(float64(len(req.Body)))
				}
				return ev, err
			}

			wrappedSend := func(ctx context.Context, ev protocol.Event) error {
				switch e := ev.(type) {
				case protocol.ResponseStart:
					status = e.Status
				case protocol.ResponseBody:
					m.bytesSent.Add(float64(len(e.Body)))
				}
				return send(ctx, ev)
			}

			err := next.Serve(ctx, scope, wrappedReceive, wrappedSend)

			m.connectionDuration.WithLabelValues(scope.Type.String()).
				Observe(time.Since(start).Seconds())
			m.connectionsTotal.WithLabelValues(
				scope.Type.String(), scope.Method, strconv.Itoa(status)).Inc()

			if err != nil {
				var perr *protocol.Error
				code := protocol.CodeUnknown
				if errors.As(err, &perr) {
					code = perr.Code
				}
				m.abortsTotal.WithLabelValues(code.String()).Inc()
			}
			return err
		})
	}
}
