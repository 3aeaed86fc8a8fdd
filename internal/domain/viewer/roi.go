package viewer

import (
	"fmt"
	"slices"

	"github.com/wsiviewer/backend/internal/domain/shared"
)

// RoiMode is the state of ROI drawing.
type RoiMode string

const (
	// RoiModeSelect is the idle state: ROIs can be selected.
	RoiModeSelect RoiMode = "select"
	// RoiModeConfiguring awaits finding, geometry and markup choices.
	RoiModeConfiguring RoiMode = "configuring"
	// RoiModeDrawing has the draw interaction active.
	RoiModeDrawing RoiMode = "drawing"
)

// Evaluation is a selected answer to an evaluation question.
type Evaluation struct {
	Name  CodedConcept `json:"name"`
	Value CodedConcept `json:"value"`
}

// RoiState is an immutable snapshot of the ROI drawing state. Transitions
// return a new snapshot and drive the volume viewer's interactions.
type RoiState struct {
	Mode                     RoiMode       `json:"mode"`
	SelectedFinding          *CodedConcept `json:"selected_finding,omitempty"`
	SelectedGeometryType     GeometryType  `json:"selected_geometry_type,omitempty"`
	SelectedMarkup           string        `json:"selected_markup,omitempty"`
	SelectedEvaluations      []Evaluation  `json:"selected_evaluations"`
	IsAnnotationModalVisible bool          `json:"is_annotation_modal_visible"`
}

// NewRoiState returns the idle state.
func NewRoiState() RoiState {
	return RoiState{Mode: RoiModeSelect, SelectedEvaluations: []Evaluation{}}
}

func (s RoiState) clone() RoiState {
	out := s
	if s.SelectedFinding != nil {
		f := *s.SelectedFinding
		out.SelectedFinding = &f
	}
	out.SelectedEvaluations = slices.Clone(s.SelectedEvaluations)
	if out.SelectedEvaluations == nil {
		out.SelectedEvaluations = []Evaluation{}
	}
	return out
}

// IsDrawingActive reports whether drawing was requested, either still being
// configured or with the draw interaction running.
func (s RoiState) IsDrawingActive() bool {
	return s.Mode == RoiModeConfiguring || s.Mode == RoiModeDrawing
}

func (s RoiState) requireConfiguring(action string) error {
	if s.Mode != RoiModeConfiguring {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("Cannot %s while ROI drawing is in %q mode.", action, s.Mode))
	}
	return nil
}

// ToggleDrawing switches drawing off if it is on, and otherwise opens the
// annotation configuration with all editing interactions disabled.
func (s RoiState) ToggleDrawing(v VolumeViewer) RoiState {
	next := s.clone()
	if s.IsDrawingActive() {
		v.DeactivateDrawInteraction()
		v.ActivateSelectInteraction()
		next.Mode = RoiModeSelect
		next.IsAnnotationModalVisible = false
		return next
	}
	v.DeactivateSelectInteraction()
	v.DeactivateSnapInteraction()
	v.DeactivateTranslateInteraction()
	v.DeactivateModifyInteraction()
	next.Mode = RoiModeConfiguring
	next.IsAnnotationModalVisible = true
	return next
}

// SelectFinding selects a configured finding and clears its evaluations.
func (s RoiState) SelectFinding(opts *AnnotationOptions, codeValue string) (RoiState, error) {
	if err := s.requireConfiguring("select a finding"); err != nil {
		return s, err
	}
	finding, ok := opts.FindingByCodeValue(codeValue)
	if !ok {
		return s, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Finding %q is not configured.", codeValue))
	}
	next := s.clone()
	next.SelectedFinding = &finding
	next.SelectedEvaluations = []Evaluation{}
	if next.SelectedGeometryType != "" && !opts.AllowsGeometryType(finding, next.SelectedGeometryType) {
		next.SelectedGeometryType = ""
	}
	return next, nil
}

// SelectGeometryType selects a geometry allowed for the selected finding.
func (s RoiState) SelectGeometryType(opts *AnnotationOptions, g GeometryType) (RoiState, error) {
	if err := s.requireConfiguring("select a geometry type"); err != nil {
		return s, err
	}
	if s.SelectedFinding == nil {
		return s, shared.NewDomainError(shared.CodeInvalidState, "A finding must be selected before the geometry type.")
	}
	if !opts.AllowsGeometryType(*s.SelectedFinding, g) {
		return s, shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("Geometry type %q is not allowed for finding %q.", g, s.SelectedFinding.CodeMeaning))
	}
	next := s.clone()
	next.SelectedGeometryType = g
	return next, nil
}

// SelectEvaluation records an answer, replacing any earlier answer to the
// same question.
func (s RoiState) SelectEvaluation(opts *AnnotationOptions, name CodedConcept, valueCode string) (RoiState, error) {
	if err := s.requireConfiguring("select an evaluation"); err != nil {
		return s, err
	}
	if s.SelectedFinding == nil {
		return s, shared.NewDomainError(shared.CodeInvalidState, "A finding must be selected before evaluations.")
	}
	question, answer, ok := opts.Evaluation(*s.SelectedFinding, name, valueCode)
	if !ok {
		return s, shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("Evaluation %q with value %q is not configured for the selected finding.", name.Key(), valueCode))
	}
	next := s.clone()
	next.SelectedEvaluations = slices.DeleteFunc(next.SelectedEvaluations, func(e Evaluation) bool {
		return e.Name.Equal(question.Name)
	})
	next.SelectedEvaluations = append(next.SelectedEvaluations, Evaluation{Name: question.Name, Value: answer})
	return next, nil
}

// SetMeasurement turns the measurement markup on or off.
func (s RoiState) SetMeasurement(active bool) (RoiState, error) {
	if err := s.requireConfiguring("change the markup"); err != nil {
		return s, err
	}
	next := s.clone()
	if active {
		next.SelectedMarkup = MarkupMeasurement
	} else {
		next.SelectedMarkup = ""
	}
	return next, nil
}

// CancelConfiguration closes the annotation configuration and returns to
// selection.
func (s RoiState) CancelConfiguration(v VolumeViewer) (RoiState, error) {
	if err := s.requireConfiguring("cancel the annotation configuration"); err != nil {
		return s, err
	}
	v.ActivateSelectInteraction()
	next := s.clone()
	next.Mode = RoiModeSelect
	next.IsAnnotationModalVisible = false
	return next, nil
}

// ErrIncompleteConfiguration is returned when drawing is started without a
// finding or geometry type.
var ErrIncompleteConfiguration = shared.NewDomainError(shared.CodeInvalidState, "could not complete annotation configuration")

// CompleteConfiguration starts drawing with the selected geometry and markup.
func (s RoiState) CompleteConfiguration(v VolumeViewer) (RoiState, error) {
	if err := s.requireConfiguring("complete the annotation configuration"); err != nil {
		return s, err
	}
	if s.SelectedFinding == nil || s.SelectedGeometryType == "" {
		return s, ErrIncompleteConfiguration
	}
	v.ActivateDrawInteraction(DrawOptions{
		GeometryType: s.SelectedGeometryType,
		Markup:       s.SelectedMarkup,
	})
	next := s.clone()
	next.Mode = RoiModeDrawing
	next.IsAnnotationModalVisible = false
	return next, nil
}

// Restore drives the interactions of a newly built volume viewer into the
// state the snapshot was taken in.
func (s RoiState) Restore(v VolumeViewer) {
	switch s.Mode {
	case RoiModeConfiguring, RoiModeDrawing:
		v.DeactivateSelectInteraction()
		v.DeactivateSnapInteraction()
		v.DeactivateTranslateInteraction()
		v.DeactivateModifyInteraction()
		if s.Mode == RoiModeDrawing {
			v.ActivateDrawInteraction(DrawOptions{
				GeometryType: s.SelectedGeometryType,
				Markup:       s.SelectedMarkup,
			})
		}
	}
}

// Reapply drives a viewer that a later transition may have moved back into
// the state of this snapshot.
func (s RoiState) Reapply(v VolumeViewer) {
	if s.Mode != RoiModeDrawing {
		v.DeactivateDrawInteraction()
	}
	if s.Mode == RoiModeSelect {
		v.ActivateSelectInteraction()
		return
	}
	s.Restore(v)
}
