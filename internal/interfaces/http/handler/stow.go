package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/wsiviewer/backend/internal/application/archive"
	"github.com/wsiviewer/backend/internal/interfaces/http/dto"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
)

// instancesFormField is the multipart form field carrying Part-10 files
const instancesFormField = "files"

// InstanceStore stores DICOM Part-10 instances in the archive
type InstanceStore interface {
	StoreInstances(ctx context.Context, studyInstanceUID string, instances [][]byte) ([]archive.StoredInstance, error)
}

// StowHandler stores instances, e.g. annotations exported by the viewer
type StowHandler struct {
	BaseHandler
	archive InstanceStore
}

// NewStowHandler creates a new StowHandler
func NewStowHandler(store InstanceStore) *StowHandler {
	return &StowHandler{archive: store}
}

// Store accepts Part-10 files uploaded as multipart/form-data and stores them
// in the archives of their storage classes.
func (h *StowHandler) Store(c *gin.Context) {
	var uri StudyURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		h.BadRequest(c, "Expected a multipart/form-data body")
		return
	}
	files := form.File[instancesFormField]
	if len(files) == 0 {
		h.BadRequest(c, fmt.Sprintf("No files in form field %q", instancesFormField))
		return
	}

	instances := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readFormFile(fh)
		if err != nil {
			h.BadRequest(c, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		instances = append(instances, data)
	}

	stored, err := h.archive.StoreInstances(c.Request.Context(), uri.Study, instances)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.StoredInstancesResponse{
		StudyInstanceUID: uri.Study,
		Instances:        make([]dto.StoredInstance, 0, len(stored)),
	}
	for _, s := range stored {
		resp.Instances = append(resp.Instances, dto.StoredInstance{
			SOPInstanceUID: s.SOPInstanceUID,
			SOPClassUID:    s.SOPClassUID,
			ServerID:       s.ServerID,
		})
	}
	h.Created(c, resp)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
