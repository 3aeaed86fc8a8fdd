package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// MaxRequestIDLength caps client supplied request IDs recorded on spans.
const MaxRequestIDLength = 128

// TracingConfig configures the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns an enabled configuration for the wsi-viewer
// service.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "wsi-viewer", Enabled: true}
}

// Tracing returns the tracing middleware with the default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin. Spans are named after the route pattern,
// e.g. "GET /api/v1/studies/:study".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// routeSpanAttributes maps route parameters to span attributes.
var routeSpanAttributes = map[string]string{
	"study":  telemetry.SpanAttrStudyUID,
	"series": telemetry.SpanAttrSeriesUID,
	"id":     telemetry.SpanAttrViewerID,
}

// TracingAttributeInjector adds the request ID, the token subject and the
// study, series and viewer of the route to the request span. It runs after
// the JWT middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
			span.SetAttributes(requestSpanAttributes(c)...)
		}
		c.Next()
	}
}

func requestSpanAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if requestID := getRequestID(c); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	if subject := GetJWTSubject(c); subject != "" {
		attrs = append(attrs, attribute.String("enduser.id", subject))
	}
	for _, p := range c.Params {
		if key, ok := routeSpanAttributes[p.Key]; ok && p.Value != "" {
			attrs = append(attrs, attribute.String(key, p.Value))
		}
	}
	return attrs
}

// getRequestID returns the request ID of the context, or the truncated
// header value when RequestID did not run.
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}

var spanErrorDescriptions = map[int]string{
	http.StatusUnauthorized:    "Unauthorized",
	http.StatusNotFound:        "Not Found",
	http.StatusTooManyRequests: "Rate Limited",
	http.StatusBadGateway:      "Archive Error",
}

// SpanErrorMarker sets the error status on the request span of 4xx and 5xx
// responses. It must run after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		description, ok := spanErrorDescriptions[status]
		if !ok {
			description = "Client Error"
			if status >= http.StatusInternalServerError {
				description = "Internal Server Error"
			}
		}
		span.SetStatus(codes.Error, description)
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
