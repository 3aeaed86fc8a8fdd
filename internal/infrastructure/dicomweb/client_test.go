package dicomweb

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsiviewer/backend/internal/domain/dicom"
)

const studyJSON = `[{"0020000D":{"vr":"UI","Value":["1.2.3"]},"00080061":{"vr":"CS","Value":["SM"]}}]`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...func(*Settings)) (*Client, *[]error) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var intercepted []error
	s := Settings{
		URL:        server.URL + "/dicomweb",
		HTTPClient: server.Client(),
		ErrorInterceptor: func(err error) {
			intercepted = append(intercepted, err)
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	client, err := NewClient(s)
	require.NoError(t, err)
	return client, &intercepted
}

func writeMultipart(t *testing.T, w http.ResponseWriter, partType string, parts ...[]byte) {
	t.Helper()
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", `multipart/related; type="`+partType+`"; boundary=`+mw.Boundary())
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", partType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(p)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "absolute URL", url: "http://localhost:8042/dicom-web/"},
		{name: "relative URL", url: "/dicom-web", wantErr: true},
		{name: "empty URL", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(Settings{URL: tt.url})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8042/dicom-web", client.BaseURL())
		})
	}
}

func TestClient_SearchForStudies(t *testing.T) {
	client, intercepted := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dicomweb/studies", r.URL.Path)
		assert.Equal(t, "SM", r.URL.Query().Get("ModalitiesInStudy"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, MediaTypeDicomJSON, r.Header.Get("Accept"))
		assert.Equal(t, "default", r.Header.Get("X-Default"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", MediaTypeDicomJSON)
		_, _ = io.WriteString(w, studyJSON)
	}, func(s *Settings) {
		s.Headers = map[string]string{"X-Default": "default"}
	})

	ctx := WithHeaders(context.Background(), map[string]string{"Authorization": "Bearer token"})
	studies, err := client.SearchForStudies(ctx, SearchOptions{
		QueryParams: map[string]string{"ModalitiesInStudy": "SM"},
		Limit:       10,
	})

	require.NoError(t, err)
	require.Len(t, studies, 1)
	assert.Equal(t, "1.2.3", studies[0].String(dicom.TagStudyInstanceUID))
	assert.Empty(t, *intercepted)
}

func TestClient_SearchResources(t *testing.T) {
	tests := []struct {
		name     string
		search   func(*Client, SearchOptions) ([]dicom.Dataset, error)
		opts     SearchOptions
		expected string
	}{
		{
			name:     "series of study",
			search:   func(c *Client, o SearchOptions) ([]dicom.Dataset, error) { return c.SearchForSeries(context.Background(), o) },
			opts:     SearchOptions{StudyInstanceUID: "1.2"},
			expected: "/dicomweb/studies/1.2/series",
		},
		{
			name:     "all series",
			search:   func(c *Client, o SearchOptions) ([]dicom.Dataset, error) { return c.SearchForSeries(context.Background(), o) },
			expected: "/dicomweb/series",
		},
		{
			name:     "instances of series",
			search:   func(c *Client, o SearchOptions) ([]dicom.Dataset, error) { return c.SearchForInstances(context.Background(), o) },
			opts:     SearchOptions{StudyInstanceUID: "1.2", SeriesInstanceUID: "1.2.3"},
			expected: "/dicomweb/studies/1.2/series/1.2.3/instances",
		},
		{
			name:     "instances of study",
			search:   func(c *Client, o SearchOptions) ([]dicom.Dataset, error) { return c.SearchForInstances(context.Background(), o) },
			opts:     SearchOptions{StudyInstanceUID: "1.2"},
			expected: "/dicomweb/studies/1.2/instances",
		},
		{
			name:     "all instances",
			search:   func(c *Client, o SearchOptions) ([]dicom.Dataset, error) { return c.SearchForInstances(context.Background(), o) },
			expected: "/dicomweb/instances",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				_, _ = io.WriteString(w, "[]")
			})

			result, err := tt.search(client, tt.opts)
			require.NoError(t, err)
			assert.Empty(t, result)
			assert.Equal(t, tt.expected, path)
		})
	}
}

func TestClient_URLPrefixes(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.Method == http.MethodPost {
			return
		}
		_, _ = io.WriteString(w, "[]")
	}, func(s *Settings) {
		s.QidoURLPrefix = "qido"
		s.WadoURLPrefix = "/wado/"
		s.StowURLPrefix = "stow"
	})

	ctx := context.Background()
	_, err := client.SearchForStudies(ctx, SearchOptions{})
	require.NoError(t, err)
	_, err = client.RetrieveStudyMetadata(ctx, InstanceOptions{StudyInstanceUID: "1"})
	require.NoError(t, err)
	require.NoError(t, client.StoreInstances(ctx, StoreOptions{Datasets: [][]byte{{0x1}}}))

	assert.Equal(t, []string{
		"/dicomweb/qido/studies",
		"/dicomweb/wado/studies/1/metadata",
		"/dicomweb/stow/studies",
	}, paths)
}

func TestClient_NoContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	studies, err := client.SearchForStudies(context.Background(), SearchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, studies)
	assert.Empty(t, studies)
}

func TestClient_HTTPErrorIsIntercepted(t *testing.T) {
	client, intercepted := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.RetrieveSeriesMetadata(context.Background(), InstanceOptions{
		StudyInstanceUID:  "1.2",
		SeriesInstanceUID: "1.2.3",
	})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
	assert.Equal(t, http.MethodGet, httpErr.Method)
	assert.Contains(t, httpErr.URL, "/studies/1.2/series/1.2.3/metadata")
	assert.Contains(t, httpErr.Body, "archive unavailable")
	require.Len(t, *intercepted, 1)
	assert.Same(t, err, (*intercepted)[0])
}

func TestClient_InvalidJSONIsIntercepted(t *testing.T) {
	client, intercepted := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	})

	_, err := client.SearchForStudies(context.Background(), SearchOptions{})
	assert.Error(t, err)
	assert.Len(t, *intercepted, 1)
}

func TestClient_MissingUIDs(t *testing.T) {
	called := false
	client, intercepted := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	ctx := context.Background()

	_, err := client.RetrieveStudyMetadata(ctx, InstanceOptions{})
	assert.ErrorIs(t, err, ErrMissingUID)
	_, err = client.RetrieveSeriesMetadata(ctx, InstanceOptions{StudyInstanceUID: "1"})
	assert.ErrorIs(t, err, ErrMissingUID)
	_, err = client.RetrieveInstance(ctx, InstanceOptions{StudyInstanceUID: "1", SeriesInstanceUID: "2"})
	assert.ErrorIs(t, err, ErrMissingUID)
	_, err = client.RetrieveInstanceMetadata(ctx, InstanceOptions{SeriesInstanceUID: "2", SOPInstanceUID: "3"})
	assert.ErrorIs(t, err, ErrMissingUID)

	assert.False(t, called)
	assert.Len(t, *intercepted, 4)
}

func TestClient_RetrieveInstance(t *testing.T) {
	part10 := []byte("DICM-part-10-bytes")
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dicomweb/studies/1/series/2/instances/3", r.URL.Path)
		assert.Contains(t, r.Header.Get("Accept"), `type="application/dicom"`)
		writeMultipart(t, w, MediaTypeDicom, part10)
	})

	data, err := client.RetrieveInstance(context.Background(), InstanceOptions{
		StudyInstanceUID:  "1",
		SeriesInstanceUID: "2",
		SOPInstanceUID:    "3",
	})
	require.NoError(t, err)
	assert.Equal(t, part10, data)
}

func TestClient_RetrieveInstanceFrames(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dicomweb/studies/1/series/2/instances/3/frames/1,2", r.URL.Path)
		writeMultipart(t, w, MediaTypeOctetStream, []byte{1, 2}, []byte{3, 4})
	})

	frames, err := client.RetrieveInstanceFrames(context.Background(), FramesOptions{
		InstanceOptions: InstanceOptions{StudyInstanceUID: "1", SeriesInstanceUID: "2", SOPInstanceUID: "3"},
		FrameNumbers:    []int{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}}, frames)

	_, err = client.RetrieveInstanceFrames(context.Background(), FramesOptions{
		InstanceOptions: InstanceOptions{StudyInstanceUID: "1", SeriesInstanceUID: "2", SOPInstanceUID: "3"},
	})
	assert.Error(t, err)
}

func TestClient_RetrieveBulkData(t *testing.T) {
	t.Run("relative URI resolves against WADO URL", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/dicomweb/bulk/icc", r.URL.Path)
			writeMultipart(t, w, MediaTypeOctetStream, []byte("profile"))
		})
		data, err := client.RetrieveBulkData(context.Background(), "bulk/icc")
		require.NoError(t, err)
		assert.Equal(t, []byte("profile"), data)
	})

	t.Run("single part body", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", MediaTypeOctetStream)
			_, _ = w.Write([]byte("raw"))
		})
		data, err := client.RetrieveBulkData(context.Background(), client.BaseURL()+"/bulk/1")
		require.NoError(t, err)
		assert.Equal(t, []byte("raw"), data)
	})
}

func TestClient_StoreInstances(t *testing.T) {
	var received [][]byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/dicomweb/studies/1.2", r.URL.Path)

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/related", mediaType)
		assert.Equal(t, MediaTypeDicom, params["type"])

		reader := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			assert.Equal(t, MediaTypeDicom, part.Header.Get("Content-Type"))
			data, err := io.ReadAll(part)
			require.NoError(t, err)
			received = append(received, data)
		}
		w.Header().Set("Content-Type", MediaTypeDicomJSON)
		_, _ = io.WriteString(w, "{}")
	})

	err := client.StoreInstances(context.Background(), StoreOptions{
		StudyInstanceUID: "1.2",
		Datasets:         [][]byte{[]byte("first"), []byte("second")},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, received)

	assert.Error(t, client.StoreInstances(context.Background(), StoreOptions{}))
}

func TestClient_UpdateHeaders(t *testing.T) {
	client, err := NewClient(Settings{URL: "http://localhost", Headers: map[string]string{"A": "1"}})
	require.NoError(t, err)

	client.UpdateHeaders(map[string]string{"B": "2", "A": "3"})
	headers := client.Headers()
	assert.Equal(t, map[string]string{"A": "3", "B": "2"}, headers)

	headers["C"] = "4"
	assert.NotContains(t, client.Headers(), "C")
}

func TestWithHeaders_Merges(t *testing.T) {
	ctx := WithHeaders(context.Background(), map[string]string{"A": "1"})
	child := WithHeaders(ctx, map[string]string{"B": "2"})

	assert.Equal(t, map[string]string{"A": "1"}, HeadersFromContext(ctx))
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, HeadersFromContext(child))
	assert.Nil(t, HeadersFromContext(context.Background()))
}

func TestParseMultipart(t *testing.T) {
	parts, err := parseMultipart("", []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("body")}, parts)

	_, err = parseMultipart("multipart/related", []byte("body"))
	assert.Error(t, err, "boundary is required")

	_, err = parseMultipart(";;;", []byte("body"))
	assert.Error(t, err)
}
