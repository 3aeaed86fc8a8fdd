package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/logger"
	"github.com/wsiviewer/backend/internal/interfaces/http/dto"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
)

// viewerQueryParam names the session a client reopens when it navigates
const viewerQueryParam = "viewer"

// ViewerService manages the viewer sessions
type ViewerService interface {
	Open(ctx context.Context, route viewer.Route, viewerID string) (viewer.SessionState, error)
	Get(ctx context.Context, id string) (viewer.SessionState, error)
	Close(ctx context.Context, id string) error
	AnnotationOptions() *viewer.AnnotationOptions

	ToggleDrawing(ctx context.Context, id string) (viewer.SessionState, error)
	SelectFinding(ctx context.Context, id, codeValue string) (viewer.SessionState, error)
	SelectGeometryType(ctx context.Context, id string, g viewer.GeometryType) (viewer.SessionState, error)
	SelectEvaluation(ctx context.Context, id string, name viewer.CodedConcept, valueCode string) (viewer.SessionState, error)
	SetMeasurement(ctx context.Context, id string, active bool) (viewer.SessionState, error)
	CompleteConfiguration(ctx context.Context, id string) (viewer.SessionState, error)
	CancelConfiguration(ctx context.Context, id string) (viewer.SessionState, error)
}

// ViewerURI binds the session of a route
type ViewerURI struct {
	ID string `uri:"id" binding:"required,max=64"`
}

// ViewerHandler serves the slide viewer sessions
type ViewerHandler struct {
	BaseHandler
	viewers ViewerService
}

// NewViewerHandler creates a new ViewerHandler
func NewViewerHandler(viewers ViewerService) *ViewerHandler {
	return &ViewerHandler{viewers: viewers}
}

// Open displays a series. Passing the ID of an open session in the viewer
// query parameter keeps that session, and its viewers when nothing changed.
func (h *ViewerHandler) Open(c *gin.Context) {
	var uri SeriesURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	viewerID := c.Query(viewerQueryParam)
	ctx := logger.WithViewerID(c.Request.Context(), viewerID)
	state, err := h.viewers.Open(ctx, viewer.Route{
		StudyInstanceUID:  uri.Study,
		SeriesInstanceUID: uri.Series,
		Query:             routeQuery(c),
	}, viewerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Get returns the current snapshot of a session.
func (h *ViewerHandler) Get(c *gin.Context) {
	h.withSession(c, h.viewers.Get)
}

// Close tears down a session.
func (h *ViewerHandler) Close(c *gin.Context) {
	var uri ViewerURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if err := h.viewers.Close(c.Request.Context(), uri.ID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// AnnotationOptions returns the configured findings, geometry types,
// evaluations, measurements and styles.
func (h *ViewerHandler) AnnotationOptions(c *gin.Context) {
	h.Success(c, h.viewers.AnnotationOptions())
}

// ToggleDrawing starts configuring an annotation or stops drawing.
func (h *ViewerHandler) ToggleDrawing(c *gin.Context) {
	h.withSession(c, h.viewers.ToggleDrawing)
}

// CompleteConfiguration starts drawing the configured annotation.
func (h *ViewerHandler) CompleteConfiguration(c *gin.Context) {
	h.withSession(c, h.viewers.CompleteConfiguration)
}

// CancelConfiguration discards the annotation being configured.
func (h *ViewerHandler) CancelConfiguration(c *gin.Context) {
	h.withSession(c, h.viewers.CancelConfiguration)
}

// SelectFinding selects the finding of the annotation being configured.
func (h *ViewerHandler) SelectFinding(c *gin.Context) {
	var req dto.SelectFindingRequest
	h.withBody(c, &req, func(ctx context.Context, id string) (viewer.SessionState, error) {
		return h.viewers.SelectFinding(ctx, id, req.CodeValue)
	})
}

// SelectGeometryType selects the geometry of the annotation being configured.
func (h *ViewerHandler) SelectGeometryType(c *gin.Context) {
	var req dto.SelectGeometryTypeRequest
	h.withBody(c, &req, func(ctx context.Context, id string) (viewer.SessionState, error) {
		return h.viewers.SelectGeometryType(ctx, id, req.GeometryType)
	})
}

// SelectEvaluation answers an evaluation question of the selected finding.
func (h *ViewerHandler) SelectEvaluation(c *gin.Context) {
	var req dto.SelectEvaluationRequest
	h.withBody(c, &req, func(ctx context.Context, id string) (viewer.SessionState, error) {
		return h.viewers.SelectEvaluation(ctx, id, req.Name.ToConcept(), req.ValueCode)
	})
}

// SetMeasurement toggles the measurement markup.
func (h *ViewerHandler) SetMeasurement(c *gin.Context) {
	var req dto.SetMeasurementRequest
	h.withBody(c, &req, func(ctx context.Context, id string) (viewer.SessionState, error) {
		return h.viewers.SetMeasurement(ctx, id, *req.Active)
	})
}

func (h *ViewerHandler) withSession(c *gin.Context, fn func(ctx context.Context, id string) (viewer.SessionState, error)) {
	var uri ViewerURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	ctx := logger.WithViewerID(c.Request.Context(), uri.ID)
	state, err := fn(ctx, uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

func (h *ViewerHandler) withBody(c *gin.Context, req any, fn func(ctx context.Context, id string) (viewer.SessionState, error)) {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.withSession(c, fn)
}
