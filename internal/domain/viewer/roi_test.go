package viewer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsiviewer/backend/internal/domain/shared"
)

var (
	tumor = CodedConcept{CodeValue: "108369006", CodingSchemeDesignator: "SCT", CodeMeaning: "Tumor"}
	stain = CodedConcept{CodeValue: "C0001", CodingSchemeDesignator: "DCM", CodeMeaning: "Staining intensity"}
	weak  = CodedConcept{CodeValue: "W", CodingSchemeDesignator: "DCM", CodeMeaning: "Weak"}
	high  = CodedConcept{CodeValue: "H", CodingSchemeDesignator: "DCM", CodeMeaning: "High"}
)

func newTestOptions(t *testing.T) *AnnotationOptions {
	t.Helper()
	opts, err := NewAnnotationOptions([]AnnotationConfig{
		{
			Finding:       tumor,
			GeometryTypes: []GeometryType{GeometryPolygon, GeometryPoint},
			Evaluations:   []EvaluationConfig{{Name: stain, Values: []CodedConcept{weak, high}}},
		},
	})
	require.NoError(t, err)
	return opts
}

func configuringState(t *testing.T) RoiState {
	t.Helper()
	v := &MockVolumeViewer{}
	v.On("DeactivateSelectInteraction").Return()
	v.On("DeactivateSnapInteraction").Return()
	v.On("DeactivateTranslateInteraction").Return()
	v.On("DeactivateModifyInteraction").Return()
	return NewRoiState().ToggleDrawing(v)
}

func TestRoiState_ToggleDrawing(t *testing.T) {
	t.Run("from select opens configuration", func(t *testing.T) {
		v := &MockVolumeViewer{}
		v.On("DeactivateSelectInteraction").Return().Once()
		v.On("DeactivateSnapInteraction").Return().Once()
		v.On("DeactivateTranslateInteraction").Return().Once()
		v.On("DeactivateModifyInteraction").Return().Once()

		next := NewRoiState().ToggleDrawing(v)

		assert.Equal(t, RoiModeConfiguring, next.Mode)
		assert.True(t, next.IsAnnotationModalVisible)
		assert.True(t, next.IsDrawingActive())
		v.AssertExpectations(t)
	})

	t.Run("from configuring returns to select", func(t *testing.T) {
		state := configuringState(t)
		v := &MockVolumeViewer{}
		v.On("DeactivateDrawInteraction").Return().Once()
		v.On("ActivateSelectInteraction").Return().Once()

		next := state.ToggleDrawing(v)

		assert.Equal(t, RoiModeSelect, next.Mode)
		assert.False(t, next.IsAnnotationModalVisible)
		v.AssertExpectations(t)
	})

	t.Run("snapshots are not mutated", func(t *testing.T) {
		before := NewRoiState()
		_ = configuringState(t)
		assert.Equal(t, RoiModeSelect, before.Mode)
	})
}

func TestRoiState_CompleteConfiguration(t *testing.T) {
	opts := newTestOptions(t)

	t.Run("requires finding and geometry", func(t *testing.T) {
		state := configuringState(t)
		v := &MockVolumeViewer{}

		next, err := state.CompleteConfiguration(v)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIncompleteConfiguration))
		assert.Equal(t, RoiModeConfiguring, next.Mode)
		v.AssertNotCalled(t, "ActivateDrawInteraction")
	})

	t.Run("finding without geometry is rejected", func(t *testing.T) {
		state, err := configuringState(t).SelectFinding(opts, tumor.CodeValue)
		require.NoError(t, err)

		_, err = state.CompleteConfiguration(&MockVolumeViewer{})
		assert.ErrorIs(t, err, ErrIncompleteConfiguration)
	})

	t.Run("starts drawing with geometry and markup", func(t *testing.T) {
		state, err := configuringState(t).SelectFinding(opts, tumor.CodeValue)
		require.NoError(t, err)
		state, err = state.SelectGeometryType(opts, GeometryPolygon)
		require.NoError(t, err)
		state, err = state.SetMeasurement(true)
		require.NoError(t, err)

		v := &MockVolumeViewer{}
		v.On("ActivateDrawInteraction", DrawOptions{GeometryType: GeometryPolygon, Markup: MarkupMeasurement}).Return().Once()

		next, err := state.CompleteConfiguration(v)
		require.NoError(t, err)
		assert.Equal(t, RoiModeDrawing, next.Mode)
		assert.False(t, next.IsAnnotationModalVisible)
		assert.True(t, next.IsDrawingActive())
		v.AssertExpectations(t)
	})

	t.Run("only from configuring", func(t *testing.T) {
		_, err := NewRoiState().CompleteConfiguration(&MockVolumeViewer{})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeInvalidState, domainErr.Code)
	})
}

func TestRoiState_CancelConfiguration(t *testing.T) {
	state := configuringState(t)
	v := &MockVolumeViewer{}
	v.On("ActivateSelectInteraction").Return().Once()

	next, err := state.CancelConfiguration(v)
	require.NoError(t, err)
	assert.Equal(t, RoiModeSelect, next.Mode)
	assert.False(t, next.IsAnnotationModalVisible)
	v.AssertExpectations(t)

	_, err = next.CancelConfiguration(v)
	assert.Error(t, err)
}

func TestRoiState_SelectFinding(t *testing.T) {
	opts := newTestOptions(t)
	state := configuringState(t)

	_, err := state.SelectFinding(opts, "unknown")
	assert.Error(t, err)

	state, err = state.SelectFinding(opts, tumor.CodeValue)
	require.NoError(t, err)
	state, err = state.SelectEvaluation(opts, stain, weak.CodeValue)
	require.NoError(t, err)
	require.Len(t, state.SelectedEvaluations, 1)

	state, err = state.SelectFinding(opts, tumor.CodeValue)
	require.NoError(t, err)
	assert.Empty(t, state.SelectedEvaluations)
	require.NotNil(t, state.SelectedFinding)
	assert.Equal(t, tumor, *state.SelectedFinding)
}

func TestRoiState_SelectGeometryType(t *testing.T) {
	opts := newTestOptions(t)
	state := configuringState(t)

	_, err := state.SelectGeometryType(opts, GeometryPolygon)
	assert.Error(t, err, "finding must be selected first")

	state, err = state.SelectFinding(opts, tumor.CodeValue)
	require.NoError(t, err)

	_, err = state.SelectGeometryType(opts, GeometryCircle)
	assert.Error(t, err, "circle is not allowed for the finding")

	state, err = state.SelectGeometryType(opts, GeometryPoint)
	require.NoError(t, err)
	assert.Equal(t, GeometryPoint, state.SelectedGeometryType)
}

func TestRoiState_SelectEvaluationReplacesSameQuestion(t *testing.T) {
	opts := newTestOptions(t)
	state, err := configuringState(t).SelectFinding(opts, tumor.CodeValue)
	require.NoError(t, err)

	state, err = state.SelectEvaluation(opts, stain, weak.CodeValue)
	require.NoError(t, err)
	state, err = state.SelectEvaluation(opts, stain, high.CodeValue)
	require.NoError(t, err)

	require.Len(t, state.SelectedEvaluations, 1)
	assert.Equal(t, high, state.SelectedEvaluations[0].Value)

	_, err = state.SelectEvaluation(opts, stain, "missing")
	assert.Error(t, err)
}

func TestRoiState_SetMeasurement(t *testing.T) {
	state := configuringState(t)

	on, err := state.SetMeasurement(true)
	require.NoError(t, err)
	assert.Equal(t, MarkupMeasurement, on.SelectedMarkup)

	off, err := on.SetMeasurement(false)
	require.NoError(t, err)
	assert.Empty(t, off.SelectedMarkup)

	_, err = NewRoiState().SetMeasurement(true)
	assert.Error(t, err)
}

func TestRoiState_Restore(t *testing.T) {
	t.Run("select touches nothing", func(t *testing.T) {
		v := &MockVolumeViewer{}
		NewRoiState().Restore(v)
		v.AssertExpectations(t)
	})

	t.Run("configuring disables editing", func(t *testing.T) {
		v := &MockVolumeViewer{}
		v.On("DeactivateSelectInteraction").Return().Once()
		v.On("DeactivateSnapInteraction").Return().Once()
		v.On("DeactivateTranslateInteraction").Return().Once()
		v.On("DeactivateModifyInteraction").Return().Once()

		configuringState(t).Restore(v)
		v.AssertExpectations(t)
	})

	t.Run("drawing resumes the draw interaction", func(t *testing.T) {
		state := RoiState{Mode: RoiModeDrawing, SelectedGeometryType: GeometryPolygon, SelectedMarkup: MarkupMeasurement}
		v := &MockVolumeViewer{}
		v.On("DeactivateSelectInteraction").Return().Once()
		v.On("DeactivateSnapInteraction").Return().Once()
		v.On("DeactivateTranslateInteraction").Return().Once()
		v.On("DeactivateModifyInteraction").Return().Once()
		v.On("ActivateDrawInteraction", DrawOptions{GeometryType: GeometryPolygon, Markup: MarkupMeasurement}).Return().Once()

		state.Restore(v)
		v.AssertExpectations(t)
	})
}

func TestRoiState_Reapply(t *testing.T) {
	t.Run("select stops drawing and enables selection", func(t *testing.T) {
		v := &MockVolumeViewer{}
		v.On("DeactivateDrawInteraction").Return().Once()
		v.On("ActivateSelectInteraction").Return().Once()

		NewRoiState().Reapply(v)
		v.AssertExpectations(t)
	})

	t.Run("configuring stops drawing and disables editing", func(t *testing.T) {
		v := &MockVolumeViewer{}
		v.On("DeactivateDrawInteraction").Return().Once()
		v.On("DeactivateSelectInteraction").Return().Once()
		v.On("DeactivateSnapInteraction").Return().Once()
		v.On("DeactivateTranslateInteraction").Return().Once()
		v.On("DeactivateModifyInteraction").Return().Once()

		configuringState(t).Reapply(v)
		v.AssertExpectations(t)
	})

	t.Run("model follows the snapshot", func(t *testing.T) {
		m := newTestModel(t, volumeImage("1.1", "A"))
		m.ActivateSelectInteraction()

		before := NewRoiState()
		after := before.ToggleDrawing(m)
		assert.Equal(t, RoiModeConfiguring, after.Mode)
		assert.False(t, m.Interactions()[InteractionSelect])

		before.Reapply(m)
		assert.True(t, m.Interactions()[InteractionSelect])
		assert.False(t, m.Interactions()[InteractionDraw])
	})
}
