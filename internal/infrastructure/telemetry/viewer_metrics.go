package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Outcome attribute values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Session source attribute values
const (
	SessionSourceCreated = "created"
	SessionSourceReused  = "reused"
)

// ArchiveMetrics records DICOMweb round trips. It satisfies the recorder
// hook of the DICOMweb managers.
type ArchiveMetrics struct {
	requests *Counter
	errors   *Counter
	duration *Histogram
}

// NewArchiveMetrics registers the archive instruments on the meter.
func NewArchiveMetrics(meter metric.Meter) (*ArchiveMetrics, error) {
	requests, err := NewCounter(meter, "dicomweb.requests.total", "Total number of DICOMweb requests", "{request}")
	if err != nil {
		return nil, err
	}
	errs, err := NewCounter(meter, "dicomweb.requests.errors", "Total number of failed DICOMweb requests", "{request}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "dicomweb.request.duration",
		Description: "DICOMweb request duration",
		Unit:        "s",
		Boundaries:  ArchiveDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &ArchiveMetrics{requests: requests, errors: errs, duration: duration}, nil
}

// RecordRequest records one archive request.
func (m *ArchiveMetrics) RecordRequest(ctx context.Context, server, operation string, elapsed time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.requests.Inc(ctx, AttrServer.String(server), AttrOperation.String(operation), AttrOutcome.String(outcome))
	if err != nil {
		m.errors.Inc(ctx, AttrServer.String(server), AttrOperation.String(operation))
	}
	m.duration.RecordDuration(ctx, elapsed, AttrServer.String(server), AttrOperation.String(operation))
}

// ViewerMetrics records slide viewer activity.
type ViewerMetrics struct {
	sessions      *Counter
	slides        *Histogram
	presentations *Counter
	exports       *Counter
}

// NewViewerMetrics registers the viewer instruments on the meter.
func NewViewerMetrics(meter metric.Meter) (*ViewerMetrics, error) {
	sessions, err := NewCounter(meter, "viewer.sessions.opened", "Number of opened slide viewer sessions", "{session}")
	if err != nil {
		return nil, err
	}
	slides, err := NewHistogram(meter, HistogramOpts{
		Name:        "viewer.case.slides",
		Description: "Number of slides per loaded case",
		Unit:        "{slide}",
		Boundaries:  []float64{1, 2, 5, 10, 20, 50},
	})
	if err != nil {
		return nil, err
	}
	presentations, err := NewCounter(meter, "viewer.presentation_states.applied", "Number of applied presentation states", "{state}")
	if err != nil {
		return nil, err
	}
	exports, err := NewCounter(meter, "viewer.manifests.exported", "Number of exported slide manifests", "{manifest}")
	if err != nil {
		return nil, err
	}
	return &ViewerMetrics{sessions: sessions, slides: slides, presentations: presentations, exports: exports}, nil
}

// SessionOpened counts a session open. source is SessionSourceCreated or
// SessionSourceReused.
func (m *ViewerMetrics) SessionOpened(ctx context.Context, source string) {
	m.sessions.Inc(ctx, AttrSessionSource.String(source))
}

// CaseLoaded records the number of slides of a loaded case.
func (m *ViewerMetrics) CaseLoaded(ctx context.Context, slides int) {
	m.slides.Record(ctx, float64(slides))
}

// PresentationStateApplied counts an applied presentation state.
func (m *ViewerMetrics) PresentationStateApplied(ctx context.Context) {
	m.presentations.Inc(ctx)
}

// ManifestExported counts an exported manifest.
func (m *ViewerMetrics) ManifestExported(ctx context.Context) {
	m.exports.Inc(ctx)
}
