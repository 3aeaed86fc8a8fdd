package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/interfaces/http/dto"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
)

// CaseLoader loads the slides of a study
type CaseLoader interface {
	LoadCase(ctx context.Context, route viewer.Route) *caseviewer.CaseView
}

// StudyURI binds the study of a route
type StudyURI struct {
	Study string `uri:"study" binding:"required,dicomuid"`
}

// SeriesURI binds the study and series of a route
type SeriesURI struct {
	Study  string `uri:"study" binding:"required,dicomuid"`
	Series string `uri:"series" binding:"required,dicomuid"`
}

// CaseHandler serves the case viewer
type CaseHandler struct {
	BaseHandler
	cases CaseLoader
}

// NewCaseHandler creates a new CaseHandler
func NewCaseHandler(cases CaseLoader) *CaseHandler {
	return &CaseHandler{cases: cases}
}

// Get loads the slides of a study. An archive failure is reported as 502
// with the cause in the message.
func (h *CaseHandler) Get(c *gin.Context) {
	var uri StudyURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	cv := h.cases.LoadCase(c.Request.Context(), viewer.Route{
		StudyInstanceUID: uri.Study,
		Query:            routeQuery(c),
	})
	if cv.Status == caseviewer.StatusFailed {
		h.Error(c, http.StatusBadGateway, dto.ErrCodeUpstream, cv.Error)
		return
	}
	h.Success(c, cv)
}

// routeQuery returns the query of the viewer route: the request query without
// the parameters only the API uses.
func routeQuery(c *gin.Context) url.Values {
	query := c.Request.URL.Query()
	query.Del(viewerQueryParam)
	if len(query) == 0 {
		return nil
	}
	return query
}
