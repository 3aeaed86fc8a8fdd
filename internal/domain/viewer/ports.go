package viewer

import (
	"github.com/wsiviewer/backend/internal/domain/dicom"
)

// Interaction names of the volume viewer
const (
	InteractionSelect    = "select"
	InteractionDraw      = "draw"
	InteractionSnap      = "snap"
	InteractionTranslate = "translate"
	InteractionModify    = "modify"
)

// Viewport containers the viewers render into
const (
	VolumeViewportContainer = "volume-viewport"
	LabelViewportContainer  = "label-viewport"
)

// OpticalPath is an optical path as exposed by the volume viewer.
type OpticalPath struct {
	Identifier      string   `json:"identifier"`
	Description     string   `json:"description,omitempty"`
	SOPInstanceUIDs []string `json:"sop_instance_uids"`
	IsMonochromatic bool     `json:"is_monochromatic"`
}

// OpticalPathStyle controls how an optical path is blended into the display.
type OpticalPathStyle struct {
	Opacity         float64                `json:"opacity"`
	Color           []int                  `json:"color,omitempty"`
	PaletteColorLUT *dicom.PaletteColorLUT `json:"palette_color_lookup_table,omitempty"`
	LimitValues     *[2]float64            `json:"limit_values,omitempty"`
}

// BoundingBox is the extent of the slide in the slide coordinate system.
type BoundingBox struct {
	Offset [2]float64 `json:"offset"`
	Size   [2]float64 `json:"size"`
}

// XRange returns the valid range of x coordinates.
func (b BoundingBox) XRange() [2]float64 {
	return [2]float64{b.Offset[0], b.Offset[0] + b.Size[0]}
}

// YRange returns the valid range of y coordinates.
func (b BoundingBox) YRange() [2]float64 {
	return [2]float64{b.Offset[1], b.Offset[1] + b.Size[1]}
}

// DrawOptions configures the draw interaction.
type DrawOptions struct {
	GeometryType GeometryType `json:"geometry_type"`
	Markup       string       `json:"markup,omitempty"`
}

// VolumeViewer displays the VOLUME images of a slide.
type VolumeViewer interface {
	Render(container string)
	Cleanup()
	GetAllOpticalPaths() []OpticalPath
	ShowOpticalPath(identifier string)
	HideOpticalPath(identifier string)
	ActivateOpticalPath(identifier string)
	DeactivateOpticalPath(identifier string)
	IsOpticalPathVisible(identifier string) bool
	IsOpticalPathActive(identifier string) bool
	GetOpticalPathStyle(identifier string) OpticalPathStyle
	GetOpticalPathDefaultStyle(identifier string) OpticalPathStyle
	SetOpticalPathStyle(identifier string, style OpticalPathStyle)
	BoundingBox() BoundingBox
	ActivateSelectInteraction()
	DeactivateSelectInteraction()
	ActivateDrawInteraction(options DrawOptions)
	DeactivateDrawInteraction()
	DeactivateSnapInteraction()
	DeactivateTranslateInteraction()
	DeactivateModifyInteraction()
	Interactions() map[string]bool
}

// LabelViewer displays the LABEL image of a slide.
type LabelViewer interface {
	Render(container string)
	Cleanup()
	Metadata() *dicom.Image
}

// VolumeViewerOptions are the construction options of a volume viewer.
type VolumeViewerOptions struct {
	ClientKey string
	Metadata  []*dicom.Image
	Controls  []string
	Preload   bool
}

// LabelViewerOptions are the construction options of a label viewer.
type LabelViewerOptions struct {
	ClientKey    string
	Metadata     *dicom.Image
	ResizeFactor float64
	Orientation  string
}

// Factory builds viewers.
type Factory interface {
	NewVolumeViewer(opts VolumeViewerOptions) (VolumeViewer, error)
	NewLabelViewer(opts LabelViewerOptions) (LabelViewer, error)
}
