// Package slideviewer manages the viewer sessions displaying a slide.
package slideviewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
	"github.com/wsiviewer/backend/internal/domain/slide"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomfile"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// DefaultSessionTTL applies when Dependencies.SessionTTL is zero
const DefaultSessionTTL = 2 * time.Hour

// CaseLoader loads the slides of a study
type CaseLoader interface {
	LoadCase(ctx context.Context, route viewer.Route) *caseviewer.CaseView
}

// PresentationStateArchive is the archive holding presentation states
type PresentationStateArchive interface {
	SearchForInstances(ctx context.Context, opts dicomweb.SearchOptions) ([]dicom.Dataset, error)
	RetrieveInstance(ctx context.Context, opts dicomweb.InstanceOptions) ([]byte, error)
}

// ManifestStorage stores exported manifests
type ManifestStorage interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, name string, expiresIn time.Duration) (string, time.Time, error)
}

// Metrics observes viewer activity
type Metrics interface {
	SessionOpened(ctx context.Context, source string)
	PresentationStateApplied(ctx context.Context)
	ManifestExported(ctx context.Context)
}

// Dependencies of a Service. Cases, PresentationStates, Factory and Store
// are required.
type Dependencies struct {
	Cases              CaseLoader
	PresentationStates PresentationStateArchive
	Factory            viewer.Factory
	Store              viewer.SessionStore
	Annotations        *viewer.AnnotationOptions
	ClientFingerprint  string
	Preload            bool
	SessionTTL         time.Duration
	Manifests          ManifestStorage
	ManifestExpiry     time.Duration
	Metrics            Metrics
	Logger             *zap.Logger
	// ParseInstance decodes retrieved Part-10 instances. Defaults to
	// dicomfile.ParseDataset.
	ParseInstance func([]byte) (dicom.Dataset, error)
	Now           func() time.Time
	NewID         func() string
}

// liveSession holds the viewers of a session. The snapshot in state is the
// value last written to the store. Once closed, the viewers are torn down and
// the session is no longer registered.
type liveSession struct {
	mu      sync.Mutex
	viewers viewer.Viewers
	slide   *slide.Slide
	state   viewer.SessionState
	closed  bool

	// expiresAt mirrors the store TTL and is guarded by Service.mu.
	expiresAt time.Time
}

func (ls *liveSession) close() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.closed {
		ls.viewers.Cleanup()
		ls.closed = true
	}
}

// Service opens viewer sessions and drives their ROI drawing.
type Service struct {
	deps   Dependencies
	logger *zap.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

// NewService creates a new slide viewer service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Annotations == nil {
		deps.Annotations, _ = viewer.NewAnnotationOptions(nil)
	}
	if deps.SessionTTL == 0 {
		deps.SessionTTL = DefaultSessionTTL
	}
	if deps.ManifestExpiry == 0 {
		deps.ManifestExpiry = 15 * time.Minute
	}
	if deps.ParseInstance == nil {
		deps.ParseInstance = dicomfile.ParseDataset
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.New().String() }
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger,
		live:   make(map[string]*liveSession),
	}
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened(context.Context, string)    {}
func (nopMetrics) PresentationStateApplied(context.Context) {}
func (nopMetrics) ManifestExported(context.Context)         {}

// AnnotationOptions returns the configured annotation options.
func (s *Service) AnnotationOptions() *viewer.AnnotationOptions {
	return s.deps.Annotations
}

// Open displays the slide addressed by the route. When viewerID names a
// session whose reconstruction key is unchanged, that session is returned as
// is. Otherwise the session's viewers are torn down and built again. An empty
// or unknown viewerID opens a new session.
func (s *Service) Open(ctx context.Context, route viewer.Route, viewerID string) (viewer.SessionState, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "slide_viewer", "open",
		telemetry.SpanAttrStudyUID, route.StudyInstanceUID,
		telemetry.SpanAttrSeriesUID, route.SeriesInstanceUID,
	)
	defer span.End()

	cv := s.deps.Cases.LoadCase(ctx, route)
	if cv.Status != caseviewer.StatusLoaded {
		err := shared.NewDomainError(shared.CodeUpstreamError, cv.Error)
		telemetry.RecordError(span, err)
		return viewer.SessionState{}, err
	}

	seriesInstanceUID := cv.SelectedSeriesInstanceUID
	sl, ok := slide.FindBySeries(cv.Slides, seriesInstanceUID)
	if !ok {
		return viewer.SessionState{}, shared.NewDomainError(shared.CodeNotFound,
			fmt.Sprintf("No slide found for series %q.", seriesInstanceUID))
	}
	if route.SeriesInstanceUID == "" {
		route = route.WithSeries(seriesInstanceUID)
	}
	key := viewer.ReconstructionKey{
		Path:              route.Path(),
		StudyInstanceUID:  route.StudyInstanceUID,
		SeriesInstanceUID: seriesInstanceUID,
		SlideFingerprint:  sl.Fingerprint(),
		ClientFingerprint: s.deps.ClientFingerprint,
	}

	if viewerID != "" {
		state, reused, err := s.reopen(ctx, viewerID, route, key, sl)
		if err != nil {
			telemetry.RecordError(span, err)
			return viewer.SessionState{}, err
		}
		if reused || state.ID != "" {
			telemetry.SetAttributes(span, telemetry.SpanAttrViewerID, state.ID)
			return state, nil
		}
	}

	ls, err := s.build(ctx, s.deps.NewID(), 1, route, key, sl, viewer.NewRoiState())
	if err != nil {
		telemetry.RecordError(span, err)
		return viewer.SessionState{}, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrViewerID, ls.state.ID)
	s.deps.Metrics.SessionOpened(ctx, telemetry.SessionSourceCreated)
	return ls.state.Clone(), nil
}

// reopen handles Open for a known session. It returns an empty state when
// the session does not exist.
func (s *Service) reopen(ctx context.Context, id string, route viewer.Route, key viewer.ReconstructionKey, sl *slide.Slide) (viewer.SessionState, bool, error) {
	if ls, ok := s.lookup(id); ok {
		ls.mu.Lock()
		if !ls.closed && ls.state.Key == key {
			state := ls.state.Clone()
			ls.mu.Unlock()
			s.deps.Metrics.SessionOpened(ctx, telemetry.SessionSourceReused)
			return state, true, nil
		}
		generation := ls.state.Generation + 1
		previous := ls.state.Key
		ls.mu.Unlock()

		// Unregister before tearing down so transitions cannot reach
		// cleaned-up viewers.
		s.unregister(id, ls)
		ls.close()

		s.logger.Info("reconstructing viewers",
			zap.String("viewer_id", id),
			zap.String("previous_key", previous.String()),
			zap.String("key", key.String()),
		)
		rebuilt, err := s.build(ctx, id, generation, route, key, sl, viewer.NewRoiState())
		if err != nil {
			return viewer.SessionState{}, false, err
		}
		s.deps.Metrics.SessionOpened(ctx, telemetry.SessionSourceCreated)
		return rebuilt.state.Clone(), false, nil
	}

	stored, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, viewer.ErrSessionNotFound) {
			return viewer.SessionState{}, false, nil
		}
		return viewer.SessionState{}, false, fmt.Errorf("failed to load viewer session: %w", err)
	}
	generation := stored.Generation
	roi := stored.Roi
	if stored.Key != key {
		generation++
		roi = viewer.NewRoiState()
	}
	rebuilt, err := s.build(ctx, id, generation, route, key, sl, roi)
	if err != nil {
		return viewer.SessionState{}, false, err
	}
	s.deps.Metrics.SessionOpened(ctx, telemetry.SessionSourceCreated)
	return rebuilt.state.Clone(), false, nil
}

// build constructs both viewers for the slide, renders them and applies
// presentation states. The resulting session is registered and saved.
func (s *Service) build(ctx context.Context, id string, generation int, route viewer.Route, key viewer.ReconstructionKey, sl *slide.Slide, roi viewer.RoiState) (*liveSession, error) {
	viewers, err := viewer.ConstructViewers(s.deps.Factory, sl, s.deps.ClientFingerprint, s.deps.Preload)
	if err != nil {
		return nil, err
	}
	volume := viewers.Volume
	for _, p := range volume.GetAllOpticalPaths() {
		volume.DeactivateOpticalPath(p.Identifier)
	}

	bbox := volume.BoundingBox()
	now := s.deps.Now()
	state := viewer.SessionState{
		ID:                         id,
		Key:                        key,
		Route:                      route,
		Location:                   route.Location(),
		ContainerIdentifier:        sl.ContainerIdentifier(),
		IsMonochrome:               sl.AreVolumeImagesMonochrome(),
		VisibleRoiUIDs:             []string{},
		VisibleSegmentUIDs:         []string{},
		VisibleMappingUIDs:         []string{},
		VisibleAnnotationGroupUIDs: []string{},
		ValidXCoordinateRange:      bbox.XRange(),
		ValidYCoordinateRange:      bbox.YRange(),
		PresentationStates:         []viewer.PresentationStateSummary{},
		Roi:                        roi,
		HasLabel:                   viewers.Label != nil,
		Warnings:                   append([]string{}, sl.Warnings()...),
		Generation:                 generation,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}

	volume.Render(viewer.VolumeViewportContainer)
	if viewers.Label != nil {
		viewers.Label.Render(viewer.LabelViewportContainer)
	}
	roi.Restore(volume)

	ls := &liveSession{viewers: viewers, slide: sl}
	ls.state = s.loadPresentationStates(ctx, ls, state).WithViewerState(volume)

	if err := s.deps.Store.Save(ctx, ls.state, s.deps.SessionTTL); err != nil {
		viewers.Cleanup()
		return nil, fmt.Errorf("failed to save viewer session: %w", err)
	}

	s.register(id, ls)

	s.logger.Info("viewer session opened",
		zap.String("viewer_id", id),
		zap.String("study_instance_uid", key.StudyInstanceUID),
		zap.String("series_instance_uid", key.SeriesInstanceUID),
		zap.String("container_identifier", sl.ContainerIdentifier()),
		zap.Int("generation", generation),
	)
	return ls, nil
}

// Get returns the current snapshot of a session.
func (s *Service) Get(ctx context.Context, id string) (viewer.SessionState, error) {
	if ls, ok := s.lookup(id); ok {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if !ls.closed {
			return ls.state.Clone(), nil
		}
	}
	return s.deps.Store.Get(ctx, id)
}

// Close tears the session's viewers down and removes the session.
func (s *Service) Close(ctx context.Context, id string) error {
	if ls := s.forget(id); ls != nil {
		ls.close()
	} else if _, err := s.deps.Store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.deps.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete viewer session: %w", err)
	}
	s.logger.Info("viewer session closed", zap.String("viewer_id", id))
	return nil
}

// Shutdown tears down every live session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	live := s.live
	s.live = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, ls := range live {
		ls.close()
	}
}

// register makes ls the live session of id. A session it replaces is closed.
func (s *Service) register(id string, ls *liveSession) {
	s.mu.Lock()
	ls.expiresAt = s.deps.Now().Add(s.deps.SessionTTL)
	previous := s.live[id]
	s.live[id] = ls
	s.mu.Unlock()

	if previous != nil && previous != ls {
		previous.close()
	}
}

// unregister removes ls unless another session has replaced it already.
func (s *Service) unregister(id string, ls *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[id] == ls {
		delete(s.live, id)
	}
}

// touch extends the lifetime of a live session after its snapshot was saved.
func (s *Service) touch(ls *liveSession) {
	s.mu.Lock()
	ls.expiresAt = s.deps.Now().Add(s.deps.SessionTTL)
	s.mu.Unlock()
}

// lookup returns the live session of id after evicting expired sessions.
func (s *Service) lookup(id string) (*liveSession, bool) {
	s.evictExpired()
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	return ls, ok
}

// evictExpired tears down the live sessions whose TTL has passed. The store
// expires their snapshots on its own.
func (s *Service) evictExpired() {
	now := s.deps.Now()
	expired := make(map[string]*liveSession)
	s.mu.Lock()
	for id, ls := range s.live {
		if !now.Before(ls.expiresAt) {
			expired[id] = ls
			delete(s.live, id)
		}
	}
	s.mu.Unlock()

	for id, ls := range expired {
		ls.close()
		s.logger.Debug("viewer session expired", zap.String("viewer_id", id))
	}
}

func (s *Service) forget(id string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	if !ok {
		return nil
	}
	delete(s.live, id)
	return ls
}

// session returns the live session, rebuilding its viewers from the stored
// snapshot when this process does not hold them.
func (s *Service) session(ctx context.Context, id string) (*liveSession, error) {
	if ls, ok := s.lookup(id); ok {
		return ls, nil
	}

	stored, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.Open(ctx, stored.Route, id); err != nil {
		return nil, err
	}

	if ls, ok := s.lookup(id); ok {
		return ls, nil
	}
	return nil, viewer.ErrSessionNotFound
}
