package slideviewer

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
)

// Warnings added to a session snapshot
const (
	WarningPresentationStates = "Presentation State could not be loaded"
	WarningMissingICCProfile  = "No ICC profile was found for the color images of the slide"
)

const modalityPresentationState = "PR"

type presentationStateResult struct {
	index int
	ps    *dicom.AdvancedBlendingPresentationState
}

// loadPresentationStates searches the study's presentation states and
// applies the first matching one, or the one selected by the route, to the
// session's volume viewer. Failures are logged and never fail the session.
func (s *Service) loadPresentationStates(ctx context.Context, ls *liveSession, state viewer.SessionState) viewer.SessionState {
	studyInstanceUID := state.Route.StudyInstanceUID
	monochrome := ls.slide.AreVolumeImagesMonochrome()
	if !monochrome && !viewer.HasICCProfile(ls.slide) {
		state.Warnings = append(state.Warnings, WarningMissingICCProfile)
	}

	matched, err := s.deps.PresentationStates.SearchForInstances(ctx, dicomweb.SearchOptions{
		StudyInstanceUID: studyInstanceUID,
		QueryParams:      map[string]string{"Modality": modalityPresentationState},
	})
	if err != nil {
		s.logger.Error("Presentation State could not be loaded",
			zap.String("study_instance_uid", studyInstanceUID),
			zap.Error(err),
		)
		state.Warnings = append(state.Warnings, WarningPresentationStates)
		return state
	}

	selectedUID := state.Route.SelectedPresentationStateUID()
	var (
		mu      sync.Mutex
		results []presentationStateResult
		applied *dicom.AdvancedBlendingPresentationState
	)

	// Retrieval failures of single instances are logged, so the group never
	// returns an error.
	g, gctx := errgroup.WithContext(ctx)
	for index, instance := range matched {
		sopInstanceUID := instance.String(dicom.TagSOPInstanceUID)
		seriesInstanceUID := instance.String(dicom.TagSeriesInstanceUID)
		if !monochrome {
			s.logger.Info("ignore presentation state, application of presentation states for color images has not (yet) been implemented",
				zap.String("sop_instance_uid", sopInstanceUID),
			)
			continue
		}

		g.Go(func() error {
			s.logger.Debug("retrieve PR instance", zap.String("sop_instance_uid", sopInstanceUID))
			ps, err := s.retrievePresentationState(gctx, dicomweb.InstanceOptions{
				StudyInstanceUID:  studyInstanceUID,
				SeriesInstanceUID: seriesInstanceUID,
				SOPInstanceUID:    sopInstanceUID,
			})
			if err != nil {
				s.logger.Warn("failed to load presentation state",
					zap.String("sop_instance_uid", sopInstanceUID),
					zap.String("series_instance_uid", seriesInstanceUID),
					zap.String("study_instance_uid", studyInstanceUID),
					zap.Error(err),
				)
				return nil
			}
			if !viewer.PresentationStateMatches(ls.slide, ps) {
				return nil
			}
			s.logger.Info("include Advanced Blending Presentation State instance",
				zap.String("sop_instance_uid", ps.SOPInstanceUID),
				zap.Int("index", index),
			)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, presentationStateResult{index: index, ps: ps})
			if viewer.ShouldApplyPresentationState(index, ps, selectedUID) {
				s.logger.Info("apply Presentation State instance", zap.String("sop_instance_uid", ps.SOPInstanceUID))
				viewer.ApplyPresentationState(ls.viewers.Volume, ps)
				applied = ps
				s.deps.Metrics.PresentationStateApplied(ctx)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	state.PresentationStates = make([]viewer.PresentationStateSummary, 0, len(results))
	for _, r := range results {
		state.PresentationStates = append(state.PresentationStates, viewer.PresentationStateSummary{
			SOPInstanceUID:    r.ps.SOPInstanceUID,
			SeriesInstanceUID: r.ps.SeriesInstanceUID,
			ContentLabel:      r.ps.ContentLabel,
			Applied:           applied != nil && r.ps.SOPInstanceUID == applied.SOPInstanceUID,
		})
	}
	if applied != nil {
		state.AppliedPresentationStateUID = applied.SOPInstanceUID
		state.Route = state.Route.WithQuery(viewer.QueryPresentationState, applied.SOPInstanceUID)
		state.Location = state.Route.Location()
	}
	return state
}

func (s *Service) retrievePresentationState(ctx context.Context, opts dicomweb.InstanceOptions) (*dicom.AdvancedBlendingPresentationState, error) {
	data, err := s.deps.PresentationStates.RetrieveInstance(ctx, opts)
	if err != nil {
		return nil, err
	}
	ds, err := s.deps.ParseInstance(data)
	if err != nil {
		return nil, err
	}
	return dicom.NewAdvancedBlendingPresentationState(ds)
}
