package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeter sets up a test meter provider and reader.
func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func newMetricsRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	mp, reader := setupTestMeter(t)

	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("http.server"), true))
	router.GET("/api/v1/viewers/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.POST("/api/v1/studies/:study/instances", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router, reader
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	for _, cfg := range []HTTPMetricsConfig{
		{Enabled: false},
		{Enabled: true, MeterProvider: nil},
	} {
		router := gin.New()
		router.Use(HTTPMetrics(cfg))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestHTTPMetricsWithMeter_RequestCounter(t *testing.T) {
	router, reader := newMetricsRouter(t)

	for _, path := range []string{"/api/v1/viewers/a", "/api/v1/viewers/b", "/api/v1/viewers/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rm := collectMetrics(t, reader)
	requestTotal := findMetricByName(rm, "http_server_request_total")
	require.NotNil(t, requestTotal)

	sum, ok := requestTotal.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum data for counter")
	require.Len(t, sum.DataPoints, 2)

	byStatus := make(map[int64]int64)
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("http.route"))
		assert.Equal(t, "/api/v1/viewers/:id", route.AsString(), "routes are recorded as patterns")
		status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
		byStatus[status.AsInt64()] = dp.Value
	}
	assert.Equal(t, map[int64]int64{200: 2, 404: 1}, byStatus)
}

func TestHTTPMetricsWithMeter_DurationAndSizes(t *testing.T) {
	router, reader := newMetricsRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/viewers/a", nil))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/studies/1.2.3/instances", strings.NewReader(strings.Repeat("x", 2048)))
	router.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)

	duration := findMetricByName(rm, "http_server_request_duration_seconds")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)

	requestSize := findMetricByName(rm, "http_server_request_size_bytes")
	require.NotNil(t, requestSize)
	sizes, ok := requestSize.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, sizes.DataPoints, 1)
	assert.Equal(t, float64(2048), sizes.DataPoints[0].Sum)

	responseSize := findMetricByName(rm, "http_server_response_size_bytes")
	require.NotNil(t, responseSize)
}

func TestHTTPMetricsWithMeter_ActiveRequests(t *testing.T) {
	router, reader := newMetricsRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/viewers/a", nil))

	active := findMetricByName(collectMetrics(t, reader), "http_server_active_requests")
	require.NotNil(t, active)
	sum, ok := active.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestRoutePattern(t *testing.T) {
	router := gin.New()
	var pattern string
	router.GET("/api/v1/studies/:study", func(c *gin.Context) {
		pattern = routePattern(c)
	})
	router.NoRoute(func(c *gin.Context) {
		pattern = routePattern(c)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/studies/1.2.3", nil))
	assert.Equal(t, "/api/v1/studies/:study", pattern)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, "unknown", pattern)
}
