package dicomweb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wsiviewer/backend/internal/domain/dicom"
)

// maxResponseSize is the maximum allowed response size from an archive (256MB)
const maxResponseSize = 256 * 1024 * 1024

// DefaultTimeout applies when Settings.Timeout is zero
const DefaultTimeout = 60 * time.Second

// Media types used by the DICOMweb services
const (
	MediaTypeDicomJSON   = "application/dicom+json"
	MediaTypeDicom       = "application/dicom"
	MediaTypeOctetStream = "application/octet-stream"
)

// ErrMissingUID is returned when an operation lacks a required UID.
var ErrMissingUID = errors.New("dicomweb: missing required UID")

// Settings configures a Client.
type Settings struct {
	URL           string
	QidoURLPrefix string
	WadoURLPrefix string
	StowURLPrefix string
	Headers       map[string]string
	// ErrorInterceptor receives every error before it is returned.
	ErrorInterceptor func(error)
	HTTPClient       *http.Client
	Timeout          time.Duration
}

// HTTPError is returned for responses with a non-2xx status.
type HTTPError struct {
	Status int
	Method string
	URL    string
	Body   string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("dicomweb: %s %s: HTTP %d", e.Method, e.URL, e.Status)
}

// SearchOptions are the parameters of QIDO-RS searches. The study and
// series UIDs narrow the search resource.
type SearchOptions struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	QueryParams       map[string]string
	Limit             int
	Offset            int
	IncludeFields     []string
	Fuzzy             bool
}

// InstanceOptions address a study, series or instance for WADO-RS.
type InstanceOptions struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
}

// FramesOptions address frames of an instance.
type FramesOptions struct {
	InstanceOptions
	FrameNumbers []int
}

// StoreOptions are the parameters of a STOW-RS request. Datasets are
// Part-10 encoded instances.
type StoreOptions struct {
	StudyInstanceUID string
	Datasets         [][]byte
}

// Transport is a DICOMweb client.
type Transport interface {
	BaseURL() string
	Headers() map[string]string
	UpdateHeaders(fields map[string]string)
	SearchForStudies(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error)
	SearchForSeries(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error)
	SearchForInstances(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error)
	RetrieveStudyMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error)
	RetrieveSeriesMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error)
	RetrieveInstanceMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error)
	RetrieveInstance(ctx context.Context, opts InstanceOptions) ([]byte, error)
	RetrieveInstanceFrames(ctx context.Context, opts FramesOptions) ([][]byte, error)
	RetrieveBulkData(ctx context.Context, uri string) ([]byte, error)
	StoreInstances(ctx context.Context, opts StoreOptions) error
}

type headersKey struct{}

// WithHeaders returns a context whose DICOMweb requests carry the headers in
// addition to the client defaults.
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	merged := maps.Clone(HeadersFromContext(ctx))
	if merged == nil {
		merged = make(map[string]string, len(headers))
	}
	maps.Copy(merged, headers)
	return context.WithValue(ctx, headersKey{}, merged)
}

// HeadersFromContext returns the request-scoped headers, or nil.
func HeadersFromContext(ctx context.Context) map[string]string {
	if headers, ok := ctx.Value(headersKey{}).(map[string]string); ok {
		return headers
	}
	return nil
}

// Client talks QIDO-RS, WADO-RS and STOW-RS to a single archive.
type Client struct {
	baseURL          string
	qidoURL          string
	wadoURL          string
	stowURL          string
	httpClient       *http.Client
	errorInterceptor func(error)

	mu      sync.RWMutex
	headers map[string]string
}

var _ Transport = (*Client)(nil)

// NewClient creates a new DICOMweb client
func NewClient(s Settings) (*Client, error) {
	base := strings.TrimRight(s.URL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("dicomweb: invalid service URL %q: %w", s.URL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("dicomweb: service URL %q must be absolute", s.URL)
	}

	httpClient := s.HTTPClient
	if httpClient == nil {
		timeout := s.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	interceptor := s.ErrorInterceptor
	if interceptor == nil {
		interceptor = func(error) {}
	}

	headers := maps.Clone(s.Headers)
	if headers == nil {
		headers = make(map[string]string)
	}

	return &Client{
		baseURL:          base,
		qidoURL:          withPrefix(base, s.QidoURLPrefix),
		wadoURL:          withPrefix(base, s.WadoURLPrefix),
		stowURL:          withPrefix(base, s.StowURLPrefix),
		httpClient:       httpClient,
		errorInterceptor: interceptor,
		headers:          headers,
	}, nil
}

func withPrefix(base, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base
	}
	return base + "/" + prefix
}

// BaseURL returns the service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Headers returns a copy of the default request headers.
func (c *Client) Headers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.headers)
}

// UpdateHeaders merges fields into the default request headers.
func (c *Client) UpdateHeaders(fields map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.headers, fields)
}

// ---------------------------------------------------------------------------
// QIDO-RS
// ---------------------------------------------------------------------------

// SearchForStudies searches the archive for studies.
func (c *Client) SearchForStudies(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	return c.search(ctx, c.qidoURL+"/studies", opts)
}

// SearchForSeries searches for series, within a study if one is given.
func (c *Client) SearchForSeries(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	resource := "/series"
	if opts.StudyInstanceUID != "" {
		resource = "/studies/" + opts.StudyInstanceUID + "/series"
	}
	return c.search(ctx, c.qidoURL+resource, opts)
}

// SearchForInstances searches for instances, within a study or series if
// given.
func (c *Client) SearchForInstances(ctx context.Context, opts SearchOptions) ([]dicom.Dataset, error) {
	resource := "/instances"
	switch {
	case opts.StudyInstanceUID != "" && opts.SeriesInstanceUID != "":
		resource = "/studies/" + opts.StudyInstanceUID + "/series/" + opts.SeriesInstanceUID + "/instances"
	case opts.StudyInstanceUID != "":
		resource = "/studies/" + opts.StudyInstanceUID + "/instances"
	}
	return c.search(ctx, c.qidoURL+resource, opts)
}

func (c *Client) search(ctx context.Context, resource string, opts SearchOptions) ([]dicom.Dataset, error) {
	resp, err := c.do(ctx, http.MethodGet, resource+searchQuery(opts), MediaTypeDicomJSON, "", nil)
	if err != nil {
		return nil, err
	}
	return c.parseDatasets(resp)
}

func searchQuery(opts SearchOptions) string {
	values := url.Values{}
	for k, v := range opts.QueryParams {
		values.Set(k, v)
	}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		values.Set("offset", strconv.Itoa(opts.Offset))
	}
	if len(opts.IncludeFields) > 0 {
		values.Set("includefield", strings.Join(opts.IncludeFields, ","))
	}
	if opts.Fuzzy {
		values.Set("fuzzymatching", "true")
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// ---------------------------------------------------------------------------
// WADO-RS
// ---------------------------------------------------------------------------

// RetrieveStudyMetadata retrieves the metadata of all instances of a study.
func (c *Client) RetrieveStudyMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	if opts.StudyInstanceUID == "" {
		return nil, c.fail(fmt.Errorf("%w: Study Instance UID is required to retrieve study metadata", ErrMissingUID))
	}
	return c.metadata(ctx, c.wadoURL+"/studies/"+opts.StudyInstanceUID+"/metadata")
}

// RetrieveSeriesMetadata retrieves the metadata of all instances of a series.
func (c *Client) RetrieveSeriesMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	if opts.StudyInstanceUID == "" || opts.SeriesInstanceUID == "" {
		return nil, c.fail(fmt.Errorf("%w: Study and Series Instance UID are required to retrieve series metadata", ErrMissingUID))
	}
	return c.metadata(ctx, seriesPath(c.wadoURL, opts)+"/metadata")
}

// RetrieveInstanceMetadata retrieves the metadata of an instance.
func (c *Client) RetrieveInstanceMetadata(ctx context.Context, opts InstanceOptions) ([]dicom.Dataset, error) {
	if err := requireInstance(opts); err != nil {
		return nil, c.fail(err)
	}
	return c.metadata(ctx, instancePath(c.wadoURL, opts)+"/metadata")
}

func (c *Client) metadata(ctx context.Context, resource string) ([]dicom.Dataset, error) {
	resp, err := c.do(ctx, http.MethodGet, resource, MediaTypeDicomJSON, "", nil)
	if err != nil {
		return nil, err
	}
	return c.parseDatasets(resp)
}

// RetrieveInstance retrieves a Part-10 encoded instance.
func (c *Client) RetrieveInstance(ctx context.Context, opts InstanceOptions) ([]byte, error) {
	if err := requireInstance(opts); err != nil {
		return nil, c.fail(err)
	}
	accept := fmt.Sprintf(`multipart/related; type="%s"`, MediaTypeDicom)
	resp, err := c.do(ctx, http.MethodGet, instancePath(c.wadoURL, opts), accept, "", nil)
	if err != nil {
		return nil, err
	}
	return c.firstPart(resp)
}

// RetrieveInstanceFrames retrieves frames of an instance as uncompressed
// octet streams, one per requested frame.
func (c *Client) RetrieveInstanceFrames(ctx context.Context, opts FramesOptions) ([][]byte, error) {
	if err := requireInstance(opts.InstanceOptions); err != nil {
		return nil, c.fail(err)
	}
	if len(opts.FrameNumbers) == 0 {
		return nil, c.fail(errors.New("dicomweb: at least one frame number is required"))
	}
	numbers := make([]string, 0, len(opts.FrameNumbers))
	for _, n := range opts.FrameNumbers {
		numbers = append(numbers, strconv.Itoa(n))
	}
	resource := instancePath(c.wadoURL, opts.InstanceOptions) + "/frames/" + strings.Join(numbers, ",")
	accept := fmt.Sprintf(`multipart/related; type="%s"`, MediaTypeOctetStream)

	resp, err := c.do(ctx, http.MethodGet, resource, accept, "", nil)
	if err != nil {
		return nil, err
	}
	parts, err := parseMultipart(resp.contentType, resp.body)
	if err != nil {
		return nil, c.fail(err)
	}
	return parts, nil
}

// RetrieveBulkData retrieves the value of a bulk data element. Relative URIs
// are resolved against the WADO-RS URL.
func (c *Client) RetrieveBulkData(ctx context.Context, uri string) ([]byte, error) {
	resource := uri
	if u, err := url.Parse(uri); err == nil && !u.IsAbs() {
		resource = c.wadoURL + "/" + strings.TrimLeft(uri, "/")
	}
	accept := fmt.Sprintf(`multipart/related; type="%s"`, MediaTypeOctetStream)
	resp, err := c.do(ctx, http.MethodGet, resource, accept, "", nil)
	if err != nil {
		return nil, err
	}
	return c.firstPart(resp)
}

// ---------------------------------------------------------------------------
// STOW-RS
// ---------------------------------------------------------------------------

// StoreInstances stores Part-10 encoded instances, within a study if given.
func (c *Client) StoreInstances(ctx context.Context, opts StoreOptions) error {
	if len(opts.Datasets) == 0 {
		return c.fail(errors.New("dicomweb: at least one dataset is required to store instances"))
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, ds := range opts.Datasets {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", MediaTypeDicom)
		part, err := w.CreatePart(header)
		if err != nil {
			return c.fail(fmt.Errorf("dicomweb: failed to encode instance: %w", err))
		}
		if _, err := part.Write(ds); err != nil {
			return c.fail(fmt.Errorf("dicomweb: failed to encode instance: %w", err))
		}
	}
	if err := w.Close(); err != nil {
		return c.fail(fmt.Errorf("dicomweb: failed to encode instances: %w", err))
	}

	resource := c.stowURL + "/studies"
	if opts.StudyInstanceUID != "" {
		resource += "/" + opts.StudyInstanceUID
	}
	contentType := fmt.Sprintf(`multipart/related; type="%s"; boundary=%s`, MediaTypeDicom, w.Boundary())

	_, err := c.do(ctx, http.MethodPost, resource, MediaTypeDicomJSON, contentType, &body)
	return err
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

type response struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) fail(err error) error {
	c.errorInterceptor(err)
	return err
}

func (c *Client) requestHeaders(ctx context.Context) map[string]string {
	c.mu.RLock()
	headers := maps.Clone(c.headers)
	c.mu.RUnlock()
	maps.Copy(headers, HeadersFromContext(ctx))
	return headers
}

// do performs an HTTP request against the archive
func (c *Client) do(ctx context.Context, method, resource, accept, contentType string, body io.Reader) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, resource, body)
	if err != nil {
		return nil, c.fail(fmt.Errorf("dicomweb: failed to create request: %w", err))
	}
	for k, v := range c.requestHeaders(ctx) {
		req.Header.Set(k, v)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(fmt.Errorf("dicomweb: %s %s: %w", method, resource, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.fail(fmt.Errorf("dicomweb: failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(data)
		if len(text) > 512 {
			text = text[:512]
		}
		return nil, c.fail(&HTTPError{Status: resp.StatusCode, Method: method, URL: resource, Body: text})
	}

	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func (c *Client) parseDatasets(resp *response) ([]dicom.Dataset, error) {
	if resp.status == http.StatusNoContent {
		return []dicom.Dataset{}, nil
	}
	datasets, err := dicom.ParseDatasets(resp.body)
	if err != nil {
		return nil, c.fail(fmt.Errorf("dicomweb: failed to decode DICOM JSON: %w", err))
	}
	return datasets, nil
}

func (c *Client) firstPart(resp *response) ([]byte, error) {
	parts, err := parseMultipart(resp.contentType, resp.body)
	if err != nil {
		return nil, c.fail(err)
	}
	if len(parts) == 0 {
		return nil, c.fail(errors.New("dicomweb: multipart response has no parts"))
	}
	return parts[0], nil
}

// parseMultipart splits a multipart/related body into its parts. Bodies of
// any other media type are returned as a single part.
func parseMultipart(contentType string, body []byte) ([][]byte, error) {
	if contentType == "" {
		return [][]byte{body}, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("dicomweb: invalid content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return [][]byte{body}, nil
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("dicomweb: content type %q lacks boundary", contentType)
	}

	var parts [][]byte
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dicomweb: failed to read multipart response: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("dicomweb: failed to read multipart response: %w", err)
		}
		parts = append(parts, data)
	}
	return parts, nil
}

func requireInstance(opts InstanceOptions) error {
	if opts.StudyInstanceUID == "" || opts.SeriesInstanceUID == "" || opts.SOPInstanceUID == "" {
		return fmt.Errorf("%w: Study, Series and SOP Instance UID are required", ErrMissingUID)
	}
	return nil
}

func seriesPath(base string, opts InstanceOptions) string {
	return base + "/studies/" + opts.StudyInstanceUID + "/series/" + opts.SeriesInstanceUID
}

func instancePath(base string, opts InstanceOptions) string {
	return seriesPath(base, opts) + "/instances/" + opts.SOPInstanceUID
}
