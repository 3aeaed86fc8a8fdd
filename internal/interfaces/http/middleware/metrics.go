package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// HTTPMetricsConfig configures HTTPMetrics
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	Enabled       bool
	Logger        *zap.Logger
}

// Frames and Part-10 uploads are far larger than typical JSON bodies.
var (
	requestSizeBuckets  = []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000}
	responseSizeBuckets = []float64{100, 1000, 10000, 100000, 1000000, 5000000, 25000000}
)

type httpMetrics struct {
	requests     *telemetry.Counter
	active       *telemetry.Counter
	duration     *telemetry.Histogram
	requestSize  *telemetry.Histogram
	responseSize *telemetry.Histogram
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	var (
		m   httpMetrics
		err error
	)
	if m.requests, err = telemetry.NewCounter(meter, "http_server_request_total",
		"Total number of HTTP requests", "{request}"); err != nil {
		return nil, err
	}
	if m.active, err = telemetry.NewUpDownCounter(meter, "http_server_active_requests",
		"Number of HTTP requests in flight", "{request}"); err != nil {
		return nil, err
	}

	histograms := []struct {
		target **telemetry.Histogram
		opts   telemetry.HistogramOpts
	}{
		{&m.duration, telemetry.HistogramOpts{
			Name:        "http_server_request_duration_seconds",
			Description: "HTTP request latency in seconds",
			Unit:        "s",
			Boundaries:  telemetry.HTTPDurationBuckets,
		}},
		{&m.requestSize, telemetry.HistogramOpts{
			Name:        "http_server_request_size_bytes",
			Description: "HTTP request body size in bytes",
			Unit:        "By",
			Boundaries:  requestSizeBuckets,
		}},
		{&m.responseSize, telemetry.HistogramOpts{
			Name:        "http_server_response_size_bytes",
			Description: "HTTP response body size in bytes",
			Unit:        "By",
			Boundaries:  responseSizeBuckets,
		}},
	}
	for _, h := range histograms {
		if *h.target, err = telemetry.NewHistogram(meter, h.opts); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func passThrough(c *gin.Context) {
	c.Next()
}

// HTTPMetrics records request count, latency, body sizes and requests in
// flight. Routes are recorded as patterns so UIDs do not become labels.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return httpMetricsMiddleware(cfg.MeterProvider.Meter("http.server"), cfg.Logger)
}

// HTTPMetricsWithMeter is HTTPMetrics on an existing meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	return httpMetricsMiddleware(meter, nil)
}

func httpMetricsMiddleware(meter metric.Meter, logger *zap.Logger) gin.HandlerFunc {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		if logger != nil {
			logger.Warn("HTTP metrics disabled", zap.Error(err))
		}
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.active.Inc(ctx)
		c.Next()
		m.active.Add(ctx, -1)

		attrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(routePattern(c)),
		}
		m.requests.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))...)
		m.duration.RecordDuration(ctx, time.Since(start), attrs...)
		if size := c.Request.ContentLength; size > 0 {
			m.requestSize.Record(ctx, float64(size), attrs...)
		}
		if size := c.Writer.Size(); size > 0 {
			m.responseSize.Record(ctx, float64(size), attrs...)
		}
	}
}

// routePattern returns the matched route, e.g. "/api/v1/viewers/:id".
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
