package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wsiviewer/backend/internal/application/archive"
	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/application/slideviewer"
	"github.com/wsiviewer/backend/internal/application/worklist"
	"github.com/wsiviewer/backend/internal/domain/viewer"
)

type mockWorklist struct {
	mock.Mock
}

func (m *mockWorklist) SearchStudies(ctx context.Context) ([]worklist.StudySummary, error) {
	args := m.Called(ctx)
	studies, _ := args.Get(0).([]worklist.StudySummary)
	return studies, args.Error(1)
}

type mockCases struct {
	mock.Mock
}

func (m *mockCases) LoadCase(ctx context.Context, route viewer.Route) *caseviewer.CaseView {
	args := m.Called(ctx, route)
	return args.Get(0).(*caseviewer.CaseView)
}

type mockViewers struct {
	mock.Mock
}

func (m *mockViewers) state(args mock.Arguments) (viewer.SessionState, error) {
	s, _ := args.Get(0).(viewer.SessionState)
	return s, args.Error(1)
}

func (m *mockViewers) Open(ctx context.Context, route viewer.Route, viewerID string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, route, viewerID))
}

func (m *mockViewers) Get(ctx context.Context, id string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id))
}

func (m *mockViewers) Close(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockViewers) AnnotationOptions() *viewer.AnnotationOptions {
	opts, _ := m.Called().Get(0).(*viewer.AnnotationOptions)
	return opts
}

func (m *mockViewers) ToggleDrawing(ctx context.Context, id string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id))
}

func (m *mockViewers) SelectFinding(ctx context.Context, id, codeValue string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id, codeValue))
}

func (m *mockViewers) SelectGeometryType(ctx context.Context, id string, g viewer.GeometryType) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id, g))
}

func (m *mockViewers) SelectEvaluation(ctx context.Context, id string, name viewer.CodedConcept, valueCode string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id, name, valueCode))
}

func (m *mockViewers) SetMeasurement(ctx context.Context, id string, active bool) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id, active))
}

func (m *mockViewers) CompleteConfiguration(ctx context.Context, id string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id))
}

func (m *mockViewers) CancelConfiguration(ctx context.Context, id string) (viewer.SessionState, error) {
	return m.state(m.Called(ctx, id))
}

type mockInstanceStore struct {
	mock.Mock
}

func (m *mockInstanceStore) StoreInstances(ctx context.Context, studyInstanceUID string, instances [][]byte) ([]archive.StoredInstance, error) {
	args := m.Called(ctx, studyInstanceUID, instances)
	stored, _ := args.Get(0).([]archive.StoredInstance)
	return stored, args.Error(1)
}

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) ExportManifest(ctx context.Context, studyInstanceUID string) (*slideviewer.Manifest, error) {
	args := m.Called(ctx, studyInstanceUID)
	manifest, _ := args.Get(0).(*slideviewer.Manifest)
	return manifest, args.Error(1)
}
