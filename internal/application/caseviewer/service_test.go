package caseviewer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
)

const studyUID = "1.2.3"

type MockSeriesArchive struct {
	mock.Mock
}

func (m *MockSeriesArchive) SearchForSeries(ctx context.Context, opts dicomweb.SearchOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dicom.Dataset), args.Error(1)
}

func (m *MockSeriesArchive) RetrieveSeriesMetadata(ctx context.Context, opts dicomweb.InstanceOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dicom.Dataset), args.Error(1)
}

type recordingMetrics struct {
	mu     sync.Mutex
	slides []int
}

func (r *recordingMetrics) CaseLoaded(_ context.Context, slides int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slides = append(r.slides, slides)
}

func seriesDataset(uid string) dicom.Dataset {
	return dicom.Dataset{}.
		SetStrings(dicom.TagStudyInstanceUID, dicom.VRUI, studyUID).
		SetStrings(dicom.TagSeriesInstanceUID, dicom.VRUI, uid)
}

func instanceDataset(sopClass dicom.StorageClass, series, sop, container, flavor string) dicom.Dataset {
	return dicom.Dataset{}.
		SetStrings(dicom.TagSOPClassUID, dicom.VRUI, string(sopClass)).
		SetStrings(dicom.TagSOPInstanceUID, dicom.VRUI, sop).
		SetStrings(dicom.TagStudyInstanceUID, dicom.VRUI, studyUID).
		SetStrings(dicom.TagSeriesInstanceUID, dicom.VRUI, series).
		SetStrings(dicom.TagImageType, dicom.VRCS, "ORIGINAL", "PRIMARY", flavor, "NONE").
		SetStrings(dicom.TagFrameOfReferenceUID, dicom.VRUI, "for-"+container).
		SetStrings(dicom.TagContainerIdentifier, dicom.VRLO, container).
		SetInts(dicom.TagSamplesPerPixel, dicom.VRUS, 3).
		SetStrings(dicom.TagPhotometricInterpretation, dicom.VRCS, "RGB").
		SetSequence(dicom.TagOpticalPathSequence,
			dicom.Dataset{}.SetStrings(dicom.TagOpticalPathIdentifier, dicom.VRSH, "1"))
}

func wsi(series, sop, container, flavor string) dicom.Dataset {
	return instanceDataset(dicom.StorageClassVLWholeSlideMicroscopyImage, series, sop, container, flavor)
}

func expectSeries(archive *MockSeriesArchive, series ...string) {
	results := make([]dicom.Dataset, 0, len(series))
	for _, uid := range series {
		results = append(results, seriesDataset(uid))
	}
	archive.On("SearchForSeries", mock.Anything, dicomweb.SearchOptions{
		StudyInstanceUID: studyUID,
		QueryParams:      map[string]string{"Modality": "SM"},
	}).Return(results, nil)
}

func expectMetadata(archive *MockSeriesArchive, series string, metadata ...dicom.Dataset) {
	archive.On("RetrieveSeriesMetadata", mock.Anything, dicomweb.InstanceOptions{
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: series,
	}).Return(metadata, nil)
}

func TestService_LoadCase(t *testing.T) {
	archive := new(MockSeriesArchive)
	expectSeries(archive, "s-2", "s-1", "s-ann")
	expectMetadata(archive, "s-1",
		wsi("s-1", "i-1", "1", "VOLUME"),
		wsi("s-1", "i-2", "1", "LABEL"),
	)
	expectMetadata(archive, "s-2", wsi("s-2", "i-3", "2", "VOLUME"))
	expectMetadata(archive, "s-ann",
		instanceDataset(dicom.StorageClassComprehensive3DSR, "s-ann", "i-4", "1", "VOLUME"))
	metrics := &recordingMetrics{}

	view := caseviewer.NewService(archive, caseviewer.WithMetrics(metrics)).
		LoadCase(context.Background(), viewer.Route{StudyInstanceUID: studyUID})

	require.Equal(t, caseviewer.StatusLoaded, view.Status)
	assert.Empty(t, view.Error)
	require.Len(t, view.Slides, 2)
	assert.Equal(t, "1", view.Slides[0].ContainerIdentifier())
	assert.Len(t, view.Slides[0].LabelImages(), 1)
	assert.Equal(t, "2", view.Slides[1].ContainerIdentifier())

	assert.Equal(t, "s-1", view.SelectedSeriesInstanceUID)
	assert.Equal(t, "/study/1.2.3/series/s-1", view.Location)
	assert.Equal(t, []int{2}, metrics.slides)
	archive.AssertExpectations(t)
}

func TestService_LoadCase_KeepsRouteSeries(t *testing.T) {
	archive := new(MockSeriesArchive)
	expectSeries(archive, "s-1", "s-2")
	expectMetadata(archive, "s-1", wsi("s-1", "i-1", "1", "VOLUME"))
	expectMetadata(archive, "s-2", wsi("s-2", "i-2", "2", "VOLUME"))

	route := viewer.Route{StudyInstanceUID: studyUID, SeriesInstanceUID: "s-2"}
	route = route.WithQuery(viewer.QueryPresentationState, "ps-1")

	view := caseviewer.NewService(archive).LoadCase(context.Background(), route)

	require.Equal(t, caseviewer.StatusLoaded, view.Status)
	assert.Equal(t, "s-2", view.SelectedSeriesInstanceUID)
	assert.Equal(t, "/study/1.2.3/series/s-2?state=ps-1", view.Location)
	assert.Equal(t, route, view.Route)
}

func TestService_LoadCase_NoSlides(t *testing.T) {
	archive := new(MockSeriesArchive)
	expectSeries(archive)

	view := caseviewer.NewService(archive).LoadCase(context.Background(), viewer.Route{StudyInstanceUID: studyUID})

	require.Equal(t, caseviewer.StatusLoaded, view.Status)
	assert.Empty(t, view.Slides)
	assert.Empty(t, view.SelectedSeriesInstanceUID)
	assert.Equal(t, "/study/1.2.3/", view.Location)
}

func TestService_LoadCase_Failures(t *testing.T) {
	archiveErr := errors.New("connection refused")

	tests := []struct {
		name    string
		setup   func(*MockSeriesArchive)
		route   viewer.Route
		message string
	}{
		{
			name:    "missing study",
			setup:   func(*MockSeriesArchive) {},
			route:   viewer.Route{},
			message: "missing required UID",
		},
		{
			name: "series search fails",
			setup: func(a *MockSeriesArchive) {
				a.On("SearchForSeries", mock.Anything, mock.Anything).Return(nil, archiveErr)
			},
			route:   viewer.Route{StudyInstanceUID: studyUID},
			message: "failed to search for series: connection refused",
		},
		{
			name: "metadata retrieval fails",
			setup: func(a *MockSeriesArchive) {
				expectSeries(a, "s-1")
				a.On("RetrieveSeriesMetadata", mock.Anything, mock.Anything).Return(nil, archiveErr)
			},
			route:   viewer.Route{StudyInstanceUID: studyUID},
			message: `failed to retrieve metadata of series "s-1": connection refused`,
		},
		{
			name: "invalid slide",
			setup: func(a *MockSeriesArchive) {
				expectSeries(a, "s-1")
				other := wsi("s-1", "i-2", "1", "VOLUME").
					SetStrings(dicom.TagFrameOfReferenceUID, dicom.VRUI, "elsewhere")
				expectMetadata(a, "s-1", wsi("s-1", "i-1", "1", "VOLUME"), other)
			},
			route:   viewer.Route{StudyInstanceUID: studyUID},
			message: "All VOLUME images of a slide must have the same Frame of Reference UID.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := new(MockSeriesArchive)
			tt.setup(archive)
			core, logs := observer.New(zap.ErrorLevel)

			view := caseviewer.NewService(archive, caseviewer.WithLogger(zap.New(core))).
				LoadCase(context.Background(), tt.route)

			assert.Equal(t, caseviewer.StatusFailed, view.Status)
			assert.Contains(t, view.Error, tt.message)
			assert.NotNil(t, view.Slides)
			assert.Empty(t, view.Slides)
			assert.Equal(t, 1, logs.FilterMessage("Case could not be loaded").Len())
		})
	}
}
