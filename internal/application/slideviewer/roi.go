package slideviewer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// transition moves the ROI state of a session and persists the new snapshot.
func (s *Service) transition(ctx context.Context, id, method string, fn func(roi viewer.RoiState, v viewer.VolumeViewer) (viewer.RoiState, error)) (viewer.SessionState, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "slide_viewer", method, telemetry.SpanAttrViewerID, id)
	defer span.End()

	ls, err := s.session(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return viewer.SessionState{}, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		telemetry.RecordError(span, viewer.ErrSessionNotFound)
		return viewer.SessionState{}, viewer.ErrSessionNotFound
	}

	previous := ls.state.Roi
	roi, err := fn(previous, ls.viewers.Volume)
	if err != nil {
		s.logger.Error("ROI transition rejected",
			zap.String("viewer_id", id),
			zap.String("transition", method),
			zap.String("mode", string(previous.Mode)),
			zap.Error(err),
		)
		telemetry.RecordError(span, err)
		return viewer.SessionState{}, err
	}

	next := ls.state.WithViewerState(ls.viewers.Volume)
	next.Roi = roi
	next.UpdatedAt = s.deps.Now()
	if err := s.deps.Store.Save(ctx, next, s.deps.SessionTTL); err != nil {
		// The viewer must keep matching the snapshot that is still current.
		previous.Reapply(ls.viewers.Volume)
		telemetry.RecordError(span, err)
		return viewer.SessionState{}, fmt.Errorf("failed to save viewer session: %w", err)
	}
	ls.state = next
	s.touch(ls)
	return next.Clone(), nil
}

// ToggleDrawing starts configuring a new annotation, or stops drawing.
func (s *Service) ToggleDrawing(ctx context.Context, id string) (viewer.SessionState, error) {
	return s.transition(ctx, id, "toggle_drawing", func(roi viewer.RoiState, v viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.ToggleDrawing(v), nil
	})
}

// SelectFinding selects the finding of the annotation being configured.
func (s *Service) SelectFinding(ctx context.Context, id, codeValue string) (viewer.SessionState, error) {
	return s.transition(ctx, id, "select_finding", func(roi viewer.RoiState, _ viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.SelectFinding(s.deps.Annotations, codeValue)
	})
}

// SelectGeometryType selects the geometry of the annotation being configured.
func (s *Service) SelectGeometryType(ctx context.Context, id string, g viewer.GeometryType) (viewer.SessionState, error) {
	return s.transition(ctx, id, "select_geometry_type", func(roi viewer.RoiState, _ viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.SelectGeometryType(s.deps.Annotations, g)
	})
}

// SelectEvaluation answers an evaluation question of the selected finding.
func (s *Service) SelectEvaluation(ctx context.Context, id string, name viewer.CodedConcept, valueCode string) (viewer.SessionState, error) {
	return s.transition(ctx, id, "select_evaluation", func(roi viewer.RoiState, _ viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.SelectEvaluation(s.deps.Annotations, name, valueCode)
	})
}

// SetMeasurement toggles the measurement markup.
func (s *Service) SetMeasurement(ctx context.Context, id string, active bool) (viewer.SessionState, error) {
	return s.transition(ctx, id, "set_measurement", func(roi viewer.RoiState, _ viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.SetMeasurement(active)
	})
}

// CompleteConfiguration starts drawing the configured annotation.
func (s *Service) CompleteConfiguration(ctx context.Context, id string) (viewer.SessionState, error) {
	return s.transition(ctx, id, "complete_configuration", func(roi viewer.RoiState, v viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.CompleteConfiguration(v)
	})
}

// CancelConfiguration discards the annotation being configured.
func (s *Service) CancelConfiguration(ctx context.Context, id string) (viewer.SessionState, error) {
	return s.transition(ctx, id, "cancel_configuration", func(roi viewer.RoiState, v viewer.VolumeViewer) (viewer.RoiState, error) {
		return roi.CancelConfiguration(v)
	})
}
