package dicomweb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
)

// MockTransport is a mock implementation of Transport
type MockTransport struct {
	mock.Mock
	settings Settings
}

func (m *MockTransport) BaseURL() string {
	return m.settings.URL
}

func (m *MockTransport) Headers() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockTransport) UpdateHeaders(fields map[string]string) {
	m.Called(fields)
}

func (m *MockTransport) SearchForStudies(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	return datasetsArg(args), args.Error(1)
}

func (m *MockTransport) SearchForSeries(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	return datasetsArg(args), args.Error(1)
}

func (m *MockTransport) SearchForInstances(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	return datasetsArg(args), args.Error(1)
}

func (m *MockTransport) RetrieveStudyMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	return datasetsArg(args), args.Error(1)
}

func (m *MockTransport) RetrieveSeriesMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	return datasetsArg(args), args.Error(1)
}

func (m *MockTransport) RetrieveInstanceMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	return datasetsArg(args), args.Error(1)
}

func (m *MockTransport) RetrieveInstance(ctx context.Context, opts InstanceOptions) ([]byte, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTransport) RetrieveInstanceFrames(ctx context.Context, opts FramesOptions) ([][]byte, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]byte), args.Error(1)
}

func (m *MockTransport) RetrieveBulkData(ctx context.Context, uri string) ([]byte, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTransport) StoreInstances(ctx context.Context, opts StoreOptions) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

func datasetsArg(args mock.Arguments) []dicom.Dataset {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]dicom.Dataset)
}

// MockRecorder is a mock implementation of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordRequest(ctx context.Context, server, operation string, elapsed time.Duration, err error) {
	m.Called(ctx, server, operation, elapsed, err)
}

func mockTransportFactory(transports *[]*MockTransport) func(Settings) (Transport, error) {
	return func(s Settings) (Transport, error) {
		t := &MockTransport{settings: s}
		*transports = append(*transports, t)
		return t, nil
	}
}

func boolPtr(v bool) *bool {
	return &v
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		base     string
		expected string
		wantErr  bool
	}{
		{name: "relative path", path: "dicomweb", base: "http://localhost:3000", expected: "http://localhost:3000/dicomweb"},
		{name: "base with path", path: "dicomweb", base: "http://localhost/viewer", expected: "http://localhost/viewer/dicomweb"},
		{name: "absolute path", path: "/dcm4chee/rs", base: "http://localhost/viewer/", expected: "http://localhost/dcm4chee/rs"},
		{name: "relative base", path: "dicomweb", base: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joined, err := JoinURL(tt.path, tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, joined)
		})
	}
}

func TestNewManager_Validation(t *testing.T) {
	tests := []struct {
		name     string
		settings []ServerSettings
		message  string
	}{
		{
			name:    "no servers",
			message: "At least one server needs to be configured.",
		},
		{
			name:     "neither URL nor path",
			settings: []ServerSettings{{ID: "local"}},
			message:  "Either path or full URL needs to be configured for server.",
		},
		{
			name: "more than one store",
			settings: []ServerSettings{
				{ID: "a", URL: "http://a"},
				{ID: "b", URL: "http://b"},
			},
			message: "Only one store is supported for now.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(ManagerOptions{BaseURI: "http://localhost", Settings: tt.settings})
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, shared.CodeConfigurationError, domainErr.Code)
			assert.Equal(t, tt.message, domainErr.Message)
		})
	}
}

func TestNewManager_ClientSettings(t *testing.T) {
	var transports []*MockTransport
	m, err := NewManager(ManagerOptions{
		BaseURI: "http://viewer.local:8008",
		Settings: []ServerSettings{{
			ID:             "local",
			Path:           "/dicomweb",
			QidoPathPrefix: "qido",
			WadoPathPrefix: "wado",
			StowPathPrefix: "stow",
		}},
		NewTransport: mockTransportFactory(&transports),
	})
	require.NoError(t, err)
	require.Len(t, transports, 1)

	s := transports[0].settings
	assert.Equal(t, "http://viewer.local:8008/dicomweb", s.URL)
	assert.Equal(t, "qido", s.QidoURLPrefix)
	assert.Equal(t, "wado", s.WadoURLPrefix)
	assert.Equal(t, "stow", s.StowURLPrefix)
	assert.Equal(t, "http://viewer.local:8008/dicomweb", m.BaseURL())
	assert.Equal(t, "local", m.ID())
	assert.True(t, m.Readable())
	assert.False(t, m.Writable())
}

func TestNewManager_URLTakesPrecedence(t *testing.T) {
	var transports []*MockTransport
	_, err := NewManager(ManagerOptions{
		Settings:     []ServerSettings{{ID: "pacs", URL: "http://pacs/dicom-web", Path: "/ignored"}},
		NewTransport: mockTransportFactory(&transports),
	})
	require.NoError(t, err)
	assert.Equal(t, "http://pacs/dicom-web", transports[0].settings.URL)
}

func TestManager_ErrorInterceptorCallsOnError(t *testing.T) {
	var transports []*MockTransport
	var got []ServerSettings
	server := ServerSettings{ID: "pacs", URL: "http://pacs"}

	_, err := NewManager(ManagerOptions{
		Settings: []ServerSettings{server},
		OnError: func(err error, s ServerSettings) {
			got = append(got, s)
		},
		NewTransport: mockTransportFactory(&transports),
	})
	require.NoError(t, err)

	transports[0].settings.ErrorInterceptor(errors.New("boom"))
	require.Len(t, got, 1)
	assert.Equal(t, "pacs", got[0].ID)
}

func TestManager_DelegatesAndRecords(t *testing.T) {
	var transports []*MockTransport
	recorder := &MockRecorder{}
	m, err := NewManager(ManagerOptions{
		Settings:     []ServerSettings{{ID: "pacs", URL: "http://pacs"}},
		Metrics:      recorder,
		NewTransport: mockTransportFactory(&transports),
	})
	require.NoError(t, err)

	ctx := context.Background()
	opts := SearchOptions{QueryParams: map[string]string{"ModalitiesInStudy": "SM"}}
	expected := []dicom.Dataset{dicom.Dataset{}.SetStrings(dicom.TagStudyInstanceUID, "UI", "1.2")}
	transports[0].On("SearchForStudies", ctx, opts).Return(expected, nil).Once()
	recorder.On("RecordRequest", ctx, "pacs", "search_for_studies", mock.AnythingOfType("time.Duration"), nil).Return().Once()

	studies, err := m.SearchForStudies(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, expected, studies)

	failure := errors.New("unavailable")
	seriesOpts := InstanceOptions{StudyInstanceUID: "1.2", SeriesInstanceUID: "1.2.3"}
	transports[0].On("RetrieveSeriesMetadata", ctx, seriesOpts).Return(nil, failure).Once()
	recorder.On("RecordRequest", ctx, "pacs", "retrieve_series_metadata", mock.AnythingOfType("time.Duration"), failure).Return().Once()

	_, err = m.RetrieveSeriesMetadata(ctx, seriesOpts)
	assert.ErrorIs(t, err, failure)

	transports[0].AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestManager_UpdateHeaders(t *testing.T) {
	var transports []*MockTransport
	m, err := NewManager(ManagerOptions{
		Settings:     []ServerSettings{{ID: "pacs", URL: "http://pacs"}},
		NewTransport: mockTransportFactory(&transports),
	})
	require.NoError(t, err)

	fields := map[string]string{"Authorization": "Bearer abc"}
	transports[0].On("UpdateHeaders", fields).Return().Once()

	m.UpdateHeaders(fields)
	transports[0].AssertExpectations(t)
}

func TestManager_StoreInstances(t *testing.T) {
	t.Run("read-only store rejects without network call", func(t *testing.T) {
		var transports []*MockTransport
		m, err := NewManager(ManagerOptions{
			Settings:     []ServerSettings{{ID: "pacs", URL: "http://pacs"}},
			NewTransport: mockTransportFactory(&transports),
		})
		require.NoError(t, err)

		err = m.StoreInstances(context.Background(), StoreOptions{Datasets: [][]byte{{1}}})
		assert.ErrorIs(t, err, shared.ErrNotWritable)
		assert.Equal(t, "Store is not writable", err.Error())
		transports[0].AssertNotCalled(t, "StoreInstances", mock.Anything, mock.Anything)
	})

	t.Run("writable store delegates", func(t *testing.T) {
		var transports []*MockTransport
		m, err := NewManager(ManagerOptions{
			Settings:     []ServerSettings{{ID: "pacs", URL: "http://pacs", Write: boolPtr(true), Read: boolPtr(false)}},
			NewTransport: mockTransportFactory(&transports),
		})
		require.NoError(t, err)
		assert.False(t, m.Readable())

		opts := StoreOptions{StudyInstanceUID: "1.2", Datasets: [][]byte{{1}}}
		transports[0].On("StoreInstances", mock.Anything, opts).Return(nil).Once()

		require.NoError(t, m.StoreInstances(context.Background(), opts))
		transports[0].AssertExpectations(t)
	})
}

func TestManager_WithHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, studyJSON)
	}))
	defer server.Close()

	var failures int
	m, err := NewManager(ManagerOptions{
		Settings:   []ServerSettings{{ID: "pacs", URL: server.URL}},
		HTTPClient: server.Client(),
		OnError:    func(error, ServerSettings) { failures++ },
	})
	require.NoError(t, err)

	studies, err := m.SearchForStudies(context.Background(), SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, studies, 1)
	assert.Zero(t, failures)
}
