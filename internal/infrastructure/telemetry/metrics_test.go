package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestMeterProvider(t *testing.T) (*MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp, err := newMeterProvider(MetricsConfig{Enabled: true, ServiceName: "test-service"}, reader, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false, ServiceName: "test-service"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestCounterAndHistogram(t *testing.T) {
	mp, reader := newTestMeterProvider(t)
	meter := mp.Meter("test")
	assert.True(t, mp.IsEnabled())

	counter, err := NewCounter(meter, "test.counter", "A counter", "1")
	require.NoError(t, err)
	counter.Inc(context.Background(), AttrHTTPMethod.String("GET"))
	counter.Add(context.Background(), 4, AttrHTTPMethod.String("GET"))

	histogram, err := NewHistogram(meter, HistogramOpts{
		Name:       "test.histogram",
		Unit:       "s",
		Boundaries: HTTPDurationBuckets,
	})
	require.NoError(t, err)
	histogram.RecordDuration(context.Background(), 250*time.Millisecond)
	histogram.Record(context.Background(), 1.5)

	metrics := collect(t, reader)
	assert.Equal(t, int64(5), sumFor(t, metrics["test.counter"], AttrHTTPMethod.String("GET")))

	hist, ok := metrics["test.histogram"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.75, hist.DataPoints[0].Sum, 1e-9)
	assert.Equal(t, HTTPDurationBuckets, hist.DataPoints[0].Bounds)
}

func TestArchiveMetrics_RecordRequest(t *testing.T) {
	mp, reader := newTestMeterProvider(t)
	am, err := NewArchiveMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	am.RecordRequest(ctx, "images", "search_for_studies", 100*time.Millisecond, nil)
	am.RecordRequest(ctx, "images", "search_for_studies", 200*time.Millisecond, nil)
	am.RecordRequest(ctx, "images", "retrieve_instance", time.Second, errors.New("HTTP 502"))

	metrics := collect(t, reader)
	requests := metrics["dicomweb.requests.total"]
	assert.Equal(t, int64(2), sumFor(t, requests,
		AttrServer.String("images"), AttrOperation.String("search_for_studies"), AttrOutcome.String(OutcomeSuccess)))
	assert.Equal(t, int64(1), sumFor(t, requests,
		AttrServer.String("images"), AttrOperation.String("retrieve_instance"), AttrOutcome.String(OutcomeError)))
	assert.Equal(t, int64(1), sumFor(t, metrics["dicomweb.requests.errors"],
		AttrServer.String("images"), AttrOperation.String("retrieve_instance")))

	hist, ok := metrics["dicomweb.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)
}

func TestViewerMetrics(t *testing.T) {
	mp, reader := newTestMeterProvider(t)
	vm, err := NewViewerMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	vm.SessionOpened(ctx, SessionSourceCreated)
	vm.SessionOpened(ctx, SessionSourceReused)
	vm.SessionOpened(ctx, SessionSourceReused)
	vm.CaseLoaded(ctx, 3)
	vm.PresentationStateApplied(ctx)
	vm.ManifestExported(ctx)

	metrics := collect(t, reader)
	sessions := metrics["viewer.sessions.opened"]
	assert.Equal(t, int64(1), sumFor(t, sessions, AttrSessionSource.String(SessionSourceCreated)))
	assert.Equal(t, int64(2), sumFor(t, sessions, AttrSessionSource.String(SessionSourceReused)))
	assert.Equal(t, int64(1), sumFor(t, metrics["viewer.presentation_states.applied"]))
	assert.Equal(t, int64(1), sumFor(t, metrics["viewer.manifests.exported"]))

	hist, ok := metrics["viewer.case.slides"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, 3.0, hist.DataPoints[0].Sum)
}
