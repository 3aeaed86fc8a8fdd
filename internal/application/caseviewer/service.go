// Package caseviewer loads the slides of a study.
package caseviewer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/slide"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// Status of a loaded case
type Status string

const (
	StatusLoaded Status = "loaded"
	StatusFailed Status = "failed"
)

// SeriesArchive is the archive holding the slide images
type SeriesArchive interface {
	SearchForSeries(ctx context.Context, opts dicomweb.SearchOptions) ([]dicom.Dataset, error)
	RetrieveSeriesMetadata(ctx context.Context, opts dicomweb.InstanceOptions) ([]dicom.Dataset, error)
}

// Metrics observes loaded cases
type Metrics interface {
	CaseLoaded(ctx context.Context, slides int)
}

// CaseView is the result of loading a study. On failure Slides is empty and
// Error describes the cause.
type CaseView struct {
	Route                     viewer.Route   `json:"route"`
	Status                    Status         `json:"status"`
	Error                     string         `json:"error,omitempty"`
	Slides                    []*slide.Slide `json:"slides"`
	SelectedSeriesInstanceUID string         `json:"selected_series_instance_uid,omitempty"`
	Location                  string         `json:"location"`
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service loads cases
type Service struct {
	archive SeriesArchive
	logger  *zap.Logger
	metrics Metrics
}

// NewService creates a new case viewer service
func NewService(archive SeriesArchive, opts ...Option) *Service {
	s := &Service{archive: archive, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCase searches the slide microscopy series of the study, retrieves their
// metadata and groups the images into slides. Failures are reported in the
// returned view rather than as an error.
func (s *Service) LoadCase(ctx context.Context, route viewer.Route) *CaseView {
	ctx, span := telemetry.StartServiceSpan(ctx, "case_viewer", "load",
		telemetry.SpanAttrStudyUID, route.StudyInstanceUID)
	defer span.End()

	slides, err := s.loadSlides(ctx, route.StudyInstanceUID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Case could not be loaded",
			zap.String("study_instance_uid", route.StudyInstanceUID), zap.Error(err))
		return &CaseView{
			Route:    route,
			Status:   StatusFailed,
			Error:    err.Error(),
			Slides:   []*slide.Slide{},
			Location: route.Location(),
		}
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrSlideCount, len(slides))
	if s.metrics != nil {
		s.metrics.CaseLoaded(ctx, len(slides))
	}

	view := &CaseView{
		Route:    route,
		Status:   StatusLoaded,
		Slides:   slides,
		Location: route.Location(),
	}
	view.SelectedSeriesInstanceUID, view.Location = selectSeries(route, slides)
	return view
}

// selectSeries keeps the series addressed by the route. Otherwise it selects
// the series of the first volume image of the first slide.
func selectSeries(route viewer.Route, slides []*slide.Slide) (string, string) {
	if route.SeriesInstanceUID != "" {
		return route.SeriesInstanceUID, route.Location()
	}
	if len(slides) == 0 {
		return "", route.Location()
	}
	images := slides[0].VolumeImages()
	if len(images) == 0 {
		return "", route.Location()
	}
	selected := viewer.Route{
		StudyInstanceUID:  route.StudyInstanceUID,
		SeriesInstanceUID: images[0].SeriesInstanceUID,
	}
	return selected.SeriesInstanceUID, selected.Location()
}

func (s *Service) loadSlides(ctx context.Context, studyInstanceUID string) ([]*slide.Slide, error) {
	if studyInstanceUID == "" {
		return nil, dicomweb.ErrMissingUID
	}

	matchedSeries, err := s.archive.SearchForSeries(ctx, dicomweb.SearchOptions{
		StudyInstanceUID: studyInstanceUID,
		QueryParams:      map[string]string{"Modality": "SM"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search for series: %w", err)
	}

	var (
		mu     sync.Mutex
		series [][]*dicom.Image
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ds := range matchedSeries {
		seriesInstanceUID := ds.String(dicom.TagSeriesInstanceUID)
		g.Go(func() error {
			images, err := s.retrieveImages(gctx, studyInstanceUID, seriesInstanceUID)
			if err != nil {
				return err
			}
			if len(images) == 0 {
				return nil
			}
			mu.Lock()
			series = append(series, images)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slide.CreateSlides(series)
}

func (s *Service) retrieveImages(ctx context.Context, studyInstanceUID, seriesInstanceUID string) ([]*dicom.Image, error) {
	metadata, err := s.archive.RetrieveSeriesMetadata(ctx, dicomweb.InstanceOptions{
		StudyInstanceUID:  studyInstanceUID,
		SeriesInstanceUID: seriesInstanceUID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve metadata of series %q: %w", seriesInstanceUID, err)
	}

	var images []*dicom.Image
	for _, ds := range metadata {
		if dicom.StorageClass(ds.String(dicom.TagSOPClassUID)) != dicom.StorageClassVLWholeSlideMicroscopyImage {
			continue
		}
		img, err := dicom.NewImage(ds)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}
