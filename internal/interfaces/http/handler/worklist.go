package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wsiviewer/backend/internal/application/worklist"
)

// WorklistService lists the studies of the archive
type WorklistService interface {
	SearchStudies(ctx context.Context) ([]worklist.StudySummary, error)
}

// WorklistHandler serves the work list
type WorklistHandler struct {
	BaseHandler
	worklist WorklistService
}

// NewWorklistHandler creates a new WorklistHandler
func NewWorklistHandler(svc WorklistService) *WorklistHandler {
	return &WorklistHandler{worklist: svc}
}

// List returns the slide microscopy studies of the archive.
func (h *WorklistHandler) List(c *gin.Context) {
	studies, err := h.worklist.SearchStudies(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if studies == nil {
		studies = []worklist.StudySummary{}
	}
	h.Success(c, studies)
}
