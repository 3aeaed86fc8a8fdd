package viewer

import (
	"context"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/wsiviewer/backend/internal/domain/shared"
)

// Route query parameters
const (
	QueryPresentationState = "state"
	QueryAccessToken       = "access_token"
)

// Route addresses a study or a series of a study. It is the single source of
// truth for which series is displayed.
type Route struct {
	StudyInstanceUID  string     `json:"study_instance_uid"`
	SeriesInstanceUID string     `json:"series_instance_uid,omitempty"`
	Query             url.Values `json:"query,omitempty"`
}

// Path renders the route path without query string.
func (r Route) Path() string {
	if r.SeriesInstanceUID == "" {
		return "/study/" + r.StudyInstanceUID + "/"
	}
	return "/study/" + r.StudyInstanceUID + "/series/" + r.SeriesInstanceUID
}

// Location renders the route path with its query string.
func (r Route) Location() string {
	if q := r.Query.Encode(); q != "" {
		return r.Path() + "?" + q
	}
	return r.Path()
}

// WithSeries returns a copy of the route addressing another series.
func (r Route) WithSeries(seriesInstanceUID string) Route {
	out := r
	out.SeriesInstanceUID = seriesInstanceUID
	out.Query = cloneValues(r.Query)
	return out
}

// WithQuery returns a copy of the route with the query parameter set.
func (r Route) WithQuery(key, value string) Route {
	out := r
	out.Query = cloneValues(r.Query)
	if out.Query == nil {
		out.Query = url.Values{}
	}
	out.Query.Set(key, value)
	return out
}

// AccessToken returns the access token passed in the query string.
func (r Route) AccessToken() string {
	return r.Query.Get(QueryAccessToken)
}

// SelectedPresentationStateUID returns the presentation state chosen in the
// query string. An access token in the query disables the selection.
func (r Route) SelectedPresentationStateUID() string {
	if r.Query.Has(QueryAccessToken) {
		return ""
	}
	return r.Query.Get(QueryPresentationState)
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = slices.Clone(vals)
	}
	return out
}

// ReconstructionKey identifies what a viewer session displays. Whenever any
// part changes, both viewers are torn down and built again.
type ReconstructionKey struct {
	Path              string `json:"path"`
	StudyInstanceUID  string `json:"study_instance_uid"`
	SeriesInstanceUID string `json:"series_instance_uid"`
	SlideFingerprint  string `json:"slide_fingerprint"`
	ClientFingerprint string `json:"client_fingerprint"`
}

// String implements fmt.Stringer
func (k ReconstructionKey) String() string {
	return strings.Join([]string{k.Path, k.StudyInstanceUID, k.SeriesInstanceUID, k.SlideFingerprint, k.ClientFingerprint}, "|")
}

// PresentationStateSummary lists a presentation state found for the study.
type PresentationStateSummary struct {
	SOPInstanceUID    string `json:"sop_instance_uid"`
	SeriesInstanceUID string `json:"series_instance_uid"`
	ContentLabel      string `json:"content_label,omitempty"`
	Applied           bool   `json:"applied"`
}

// OpticalPathView is the display state of one optical path.
type OpticalPathView struct {
	OpticalPath
	Visible bool             `json:"visible"`
	Active  bool             `json:"active"`
	Style   OpticalPathStyle `json:"style"`
}

// SessionState is an immutable snapshot of a slide viewer session.
type SessionState struct {
	ID                            string                     `json:"id"`
	Key                           ReconstructionKey          `json:"key"`
	Route                         Route                      `json:"route"`
	Location                      string                     `json:"location"`
	ContainerIdentifier           string                     `json:"container_identifier"`
	IsMonochrome                  bool                       `json:"is_monochrome"`
	OpticalPaths                  []OpticalPathView          `json:"optical_paths"`
	VisibleOpticalPathIdentifiers []string                   `json:"visible_optical_path_identifiers"`
	ActiveOpticalPathIdentifiers  []string                   `json:"active_optical_path_identifiers"`
	VisibleRoiUIDs                []string                   `json:"visible_roi_uids"`
	VisibleSegmentUIDs            []string                   `json:"visible_segment_uids"`
	VisibleMappingUIDs            []string                   `json:"visible_mapping_uids"`
	VisibleAnnotationGroupUIDs    []string                   `json:"visible_annotation_group_uids"`
	ValidXCoordinateRange         [2]float64                 `json:"valid_x_coordinate_range"`
	ValidYCoordinateRange         [2]float64                 `json:"valid_y_coordinate_range"`
	PresentationStates            []PresentationStateSummary `json:"presentation_states"`
	AppliedPresentationStateUID   string                     `json:"applied_presentation_state_uid,omitempty"`
	Interactions                  map[string]bool            `json:"interactions"`
	Roi                           RoiState                   `json:"roi"`
	HasLabel                      bool                       `json:"has_label"`
	Warnings                      []string                   `json:"warnings"`
	Generation                    int                        `json:"generation"`
	CreatedAt                     time.Time                  `json:"created_at"`
	UpdatedAt                     time.Time                  `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot.
func (s SessionState) Clone() SessionState {
	out := s
	out.Route.Query = cloneValues(s.Route.Query)
	out.OpticalPaths = slices.Clone(s.OpticalPaths)
	out.VisibleOpticalPathIdentifiers = slices.Clone(s.VisibleOpticalPathIdentifiers)
	out.ActiveOpticalPathIdentifiers = slices.Clone(s.ActiveOpticalPathIdentifiers)
	out.VisibleRoiUIDs = slices.Clone(s.VisibleRoiUIDs)
	out.VisibleSegmentUIDs = slices.Clone(s.VisibleSegmentUIDs)
	out.VisibleMappingUIDs = slices.Clone(s.VisibleMappingUIDs)
	out.VisibleAnnotationGroupUIDs = slices.Clone(s.VisibleAnnotationGroupUIDs)
	out.PresentationStates = slices.Clone(s.PresentationStates)
	out.Warnings = slices.Clone(s.Warnings)
	out.Roi = s.Roi.clone()
	out.Interactions = maps.Clone(s.Interactions)
	return out
}

// WithViewerState returns a copy with optical path and interaction state
// read from the volume viewer.
func (s SessionState) WithViewerState(v VolumeViewer) SessionState {
	out := s.Clone()
	paths := v.GetAllOpticalPaths()
	out.OpticalPaths = make([]OpticalPathView, 0, len(paths))
	out.VisibleOpticalPathIdentifiers = []string{}
	out.ActiveOpticalPathIdentifiers = []string{}
	for _, p := range paths {
		view := OpticalPathView{
			OpticalPath: p,
			Visible:     v.IsOpticalPathVisible(p.Identifier),
			Active:      v.IsOpticalPathActive(p.Identifier),
			Style:       v.GetOpticalPathStyle(p.Identifier),
		}
		if view.Visible {
			out.VisibleOpticalPathIdentifiers = append(out.VisibleOpticalPathIdentifiers, p.Identifier)
		}
		if view.Active {
			out.ActiveOpticalPathIdentifiers = append(out.ActiveOpticalPathIdentifiers, p.Identifier)
		}
		out.OpticalPaths = append(out.OpticalPaths, view)
	}
	out.Interactions = v.Interactions()
	return out
}

// ErrSessionNotFound is returned by a SessionStore for unknown or expired
// sessions.
var ErrSessionNotFound = shared.NewDomainError(shared.CodeNotFound, "Viewer session not found")

// SessionStore persists session snapshots between requests.
type SessionStore interface {
	// Get returns ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (SessionState, error)
	Save(ctx context.Context, state SessionState, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}
