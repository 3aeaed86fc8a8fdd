package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wsiviewer/backend/internal/application/slideviewer"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
)

// ManifestExporter exports the slides of a study to object storage
type ManifestExporter interface {
	ExportManifest(ctx context.Context, studyInstanceUID string) (*slideviewer.Manifest, error)
}

// ManifestHandler serves manifest exports
type ManifestHandler struct {
	BaseHandler
	exporter ManifestExporter
}

// NewManifestHandler creates a new ManifestHandler
func NewManifestHandler(exporter ManifestExporter) *ManifestHandler {
	return &ManifestHandler{exporter: exporter}
}

// Export writes the slide manifest of a study and returns its download URL.
func (h *ManifestHandler) Export(c *gin.Context) {
	var uri StudyURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	manifest, err := h.exporter.ExportManifest(c.Request.Context(), uri.Study)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, manifest)
}
