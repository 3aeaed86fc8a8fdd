package dicomweb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
)

// ServerSettings configures one archive. Either URL or Path must be set; Path
// is resolved against the base URI. StorageClasses nil means the server
// serves every storage class not claimed by another server.
type ServerSettings struct {
	ID             string
	URL            string
	Path           string
	QidoPathPrefix string
	WadoPathPrefix string
	StowPathPrefix string
	StorageClasses []string
	Read           *bool
	Write          *bool
}

// ErrorHandler receives every failed archive request with the settings of
// the server it was sent to.
type ErrorHandler func(err error, server ServerSettings)

// Recorder observes archive requests.
type Recorder interface {
	RecordRequest(ctx context.Context, server, operation string, elapsed time.Duration, err error)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	BaseURI    string
	Settings   []ServerSettings
	OnError    ErrorHandler
	Logger     *zap.Logger
	Metrics    Recorder
	HTTPClient *http.Client
	Timeout    time.Duration
	// NewTransport builds the client of a store. Defaults to NewClient.
	NewTransport func(Settings) (Transport, error)
}

type store struct {
	id       string
	read     bool
	write    bool
	client   Transport
	settings ServerSettings
}

// Manager is the archive adapter the application talks to. It wraps the
// client of a single store.
type Manager struct {
	stores  []store
	metrics Recorder
}

// JoinURL resolves path against uri, treating uri as a directory.
func JoinURL(path, uri string) (string, error) {
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	base, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid base URI %q: %w", uri, err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("base URI %q must be absolute", uri)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// NewManager creates a new archive adapter
func NewManager(opts ManagerOptions) (*Manager, error) {
	if len(opts.Settings) == 0 {
		return nil, shared.NewDomainError(shared.CodeConfigurationError, "At least one server needs to be configured.")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onError := opts.OnError
	if onError == nil {
		onError = func(err error, server ServerSettings) {
			logger.Error("DICOMweb request failed",
				zap.String("server_id", server.ID),
				zap.Error(err),
			)
		}
	}
	newTransport := opts.NewTransport
	if newTransport == nil {
		newTransport = func(s Settings) (Transport, error) {
			return NewClient(s)
		}
	}

	m := &Manager{metrics: opts.Metrics}
	for _, server := range opts.Settings {
		var serviceURL string
		switch {
		case server.URL != "":
			serviceURL = server.URL
		case server.Path != "":
			joined, err := JoinURL(server.Path, opts.BaseURI)
			if err != nil {
				return nil, shared.NewDomainError(shared.CodeConfigurationError,
					fmt.Sprintf("Cannot resolve path of server %q: %v", server.ID, err))
			}
			serviceURL = joined
		default:
			return nil, shared.NewDomainError(shared.CodeConfigurationError,
				"Either path or full URL needs to be configured for server.")
		}

		client, err := newTransport(Settings{
			URL:           serviceURL,
			QidoURLPrefix: server.QidoPathPrefix,
			WadoURLPrefix: server.WadoPathPrefix,
			StowURLPrefix: server.StowPathPrefix,
			HTTPClient:    opts.HTTPClient,
			Timeout:       opts.Timeout,
			ErrorInterceptor: func(err error) {
				onError(err, server)
			},
		})
		if err != nil {
			return nil, shared.NewDomainError(shared.CodeConfigurationError,
				fmt.Sprintf("Cannot create client for server %q: %v", server.ID, err))
		}

		m.stores = append(m.stores, store{
			id:       server.ID,
			read:     boolOr(server.Read, true),
			write:    boolOr(server.Write, false),
			client:   client,
			settings: server,
		})
	}

	if len(m.stores) > 1 {
		return nil, shared.NewDomainError(shared.CodeConfigurationError, "Only one store is supported for now.")
	}

	return m, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// BaseURL returns the service URL of the store.
func (m *Manager) BaseURL() string {
	return m.stores[0].client.BaseURL()
}

// ID returns the configured server ID.
func (m *Manager) ID() string {
	return m.stores[0].id
}

// Readable reports whether the store is configured for reading.
func (m *Manager) Readable() bool {
	return m.stores[0].read
}

// Writable reports whether the store accepts new instances.
func (m *Manager) Writable() bool {
	return m.stores[0].write
}

// Settings returns the server settings of the store.
func (m *Manager) Settings() ServerSettings {
	return m.stores[0].settings
}

// UpdateHeaders merges fields into the default request headers.
func (m *Manager) UpdateHeaders(fields map[string]string) {
	m.stores[0].client.UpdateHeaders(fields)
}

// call runs an operation against the store and records it.
func call[T any](ctx context.Context, m *Manager, operation string, fn func(Transport) (T, error)) (T, error) {
	s := m.stores[0]
	start := time.Now()
	out, err := fn(s.client)
	if m.metrics != nil {
		m.metrics.RecordRequest(ctx, s.id, operation, time.Since(start), err)
	}
	return out, err
}

// SearchForStudies searches the store for studies.
func (m *Manager) SearchForStudies(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	return call(ctx, m, "search_for_studies", func(t Transport) ([]dicom.Dataset, error) {
		return t.SearchForStudies(ctx, opts)
	})
}

// SearchForSeries searches the store for series.
func (m *Manager) SearchForSeries(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	return call(ctx, m, "search_for_series", func(t Transport) ([]dicom.Dataset, error) {
		return t.SearchForSeries(ctx, opts)
	})
}

// SearchForInstances searches the store for instances.
func (m *Manager) SearchForInstances(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	return call(ctx, m, "search_for_instances", func(t Transport) ([]dicom.Dataset, error) {
		return t.SearchForInstances(ctx, opts)
	})
}

// RetrieveStudyMetadata retrieves the metadata of a study.
func (m *Manager) RetrieveStudyMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	return call(ctx, m, "retrieve_study_metadata", func(t Transport) ([]dicom.Dataset, error) {
		return t.RetrieveStudyMetadata(ctx, opts)
	})
}

// RetrieveSeriesMetadata retrieves the metadata of a series.
func (m *Manager) RetrieveSeriesMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	return call(ctx, m, "retrieve_series_metadata", func(t Transport) ([]dicom.Dataset, error) {
		return t.RetrieveSeriesMetadata(ctx, opts)
	})
}

// RetrieveInstanceMetadata retrieves the metadata of an instance.
func (m *Manager) RetrieveInstanceMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	return call(ctx, m, "retrieve_instance_metadata", func(t Transport) ([]dicom.Dataset, error) {
		return t.RetrieveInstanceMetadata(ctx, opts)
	})
}

// RetrieveInstance retrieves a Part-10 encoded instance.
func (m *Manager) RetrieveInstance(ctx context.Context, opts InstanceOptions) ([]byte, error) {
	return call(ctx, m, "retrieve_instance", func(t Transport) ([]byte, error) {
		return t.RetrieveInstance(ctx, opts)
	})
}

// RetrieveInstanceFrames retrieves frames of an instance.
func (m *Manager) RetrieveInstanceFrames(ctx context.Context, opts FramesOptions) ([][]byte, error) {
	return call(ctx, m, "retrieve_instance_frames", func(t Transport) ([][]byte, error) {
		return t.RetrieveInstanceFrames(ctx, opts)
	})
}

// RetrieveBulkData retrieves the value of a bulk data element.
func (m *Manager) RetrieveBulkData(ctx context.Context, uri string) ([]byte, error) {
	return call(ctx, m, "retrieve_bulk_data", func(t Transport) ([]byte, error) {
		return t.RetrieveBulkData(ctx, uri)
	})
}

// StoreInstances stores instances. Stores not configured for writing reject
// the request without contacting the archive.
func (m *Manager) StoreInstances(ctx context.Context, opts StoreOptions) error {
	if !m.Writable() {
		return shared.ErrNotWritable
	}
	_, err := call(ctx, m, "store_instances", func(t Transport) (struct{}, error) {
		return struct{}{}, t.StoreInstances(ctx, opts)
	})
	return err
}
