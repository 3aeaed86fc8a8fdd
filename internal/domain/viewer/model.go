package viewer

import (
	"maps"
	"sync"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
)

type opticalPathState struct {
	path    OpticalPath
	visible bool
	active  bool
	style   OpticalPathStyle
	initial OpticalPathStyle
}

// Model is an in-process VolumeViewer. It tracks optical path state and
// interactions for a front end that draws the tiles itself.
type Model struct {
	mu           sync.RWMutex
	options      VolumeViewerOptions
	paths        []*opticalPathState
	byID         map[string]*opticalPathState
	boundingBox  BoundingBox
	interactions map[string]bool
	drawOptions  *DrawOptions
	container    string
	cleanedUp    bool
}

var _ VolumeViewer = (*Model)(nil)

// NewModel builds a volume viewer model from the VOLUME images of a slide.
func NewModel(opts VolumeViewerOptions) (*Model, error) {
	if len(opts.Metadata) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Volume viewer requires metadata of at least one image.")
	}

	m := &Model{
		options:      opts,
		byID:         make(map[string]*opticalPathState),
		interactions: make(map[string]bool),
	}

	for _, img := range opts.Metadata {
		for _, p := range img.OpticalPaths {
			state, ok := m.byID[p.Identifier]
			if !ok {
				state = &opticalPathState{
					path: OpticalPath{
						Identifier:      p.Identifier,
						Description:     p.Description,
						IsMonochromatic: img.IsMonochrome(),
					},
					visible: true,
					active:  true,
				}
				state.initial = defaultStyle(img)
				state.style = state.initial
				m.byID[p.Identifier] = state
				m.paths = append(m.paths, state)
			}
			state.path.SOPInstanceUIDs = append(state.path.SOPInstanceUIDs, img.SOPInstanceUID)
		}
	}

	m.boundingBox = boundingBoxOf(opts.Metadata)
	return m, nil
}

func defaultStyle(img *dicom.Image) OpticalPathStyle {
	style := OpticalPathStyle{Opacity: 1}
	if img.IsMonochrome() {
		style.Color = []int{255, 255, 255}
		if img.BitsStored > 0 {
			style.LimitValues = &[2]float64{0, float64(int(1)<<img.BitsStored - 1)}
		}
	}
	return style
}

// boundingBoxOf uses the imaged volume of the largest image, falling back to
// the total pixel matrix when the physical size is unknown.
func boundingBoxOf(images []*dicom.Image) BoundingBox {
	var ref *dicom.Image
	for _, img := range images {
		if ref == nil || img.TotalPixelMatrixColumns*img.TotalPixelMatrixRows > ref.TotalPixelMatrixColumns*ref.TotalPixelMatrixRows {
			ref = img
		}
	}
	if ref.ImagedVolumeWidth > 0 && ref.ImagedVolumeHeight > 0 {
		return BoundingBox{Size: [2]float64{ref.ImagedVolumeWidth, ref.ImagedVolumeHeight}}
	}
	return BoundingBox{Size: [2]float64{float64(ref.TotalPixelMatrixColumns), float64(ref.TotalPixelMatrixRows)}}
}

// Options returns the construction options.
func (m *Model) Options() VolumeViewerOptions {
	return m.options
}

// Render records the container the viewer is attached to.
func (m *Model) Render(container string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.container = container
	m.cleanedUp = false
}

// Container returns the container the viewer was last rendered into.
func (m *Model) Container() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.container
}

// Cleanup detaches the viewer from its container.
func (m *Model) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.container = ""
	m.cleanedUp = true
	m.drawOptions = nil
	clear(m.interactions)
}

// IsCleanedUp reports whether Cleanup was called since the last Render.
func (m *Model) IsCleanedUp() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cleanedUp
}

func (m *Model) GetAllOpticalPaths() []OpticalPath {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OpticalPath, 0, len(m.paths))
	for _, s := range m.paths {
		p := s.path
		p.SOPInstanceUIDs = append([]string(nil), s.path.SOPInstanceUIDs...)
		out = append(out, p)
	}
	return out
}

func (m *Model) update(identifier string, fn func(*opticalPathState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[identifier]; ok {
		fn(s)
	}
}

func (m *Model) ShowOpticalPath(identifier string) {
	m.update(identifier, func(s *opticalPathState) { s.visible = true })
}

func (m *Model) HideOpticalPath(identifier string) {
	m.update(identifier, func(s *opticalPathState) { s.visible = false })
}

func (m *Model) ActivateOpticalPath(identifier string) {
	m.update(identifier, func(s *opticalPathState) { s.active = true })
}

func (m *Model) DeactivateOpticalPath(identifier string) {
	m.update(identifier, func(s *opticalPathState) { s.active = false })
}

func (m *Model) IsOpticalPathVisible(identifier string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[identifier]
	return ok && s.visible
}

func (m *Model) IsOpticalPathActive(identifier string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[identifier]
	return ok && s.active
}

func (m *Model) GetOpticalPathStyle(identifier string) OpticalPathStyle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.byID[identifier]; ok {
		return s.style
	}
	return OpticalPathStyle{}
}

func (m *Model) GetOpticalPathDefaultStyle(identifier string) OpticalPathStyle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.byID[identifier]; ok {
		return s.initial
	}
	return OpticalPathStyle{}
}

func (m *Model) SetOpticalPathStyle(identifier string, style OpticalPathStyle) {
	m.update(identifier, func(s *opticalPathState) { s.style = style })
}

func (m *Model) BoundingBox() BoundingBox {
	return m.boundingBox
}

func (m *Model) setInteraction(name string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[name] = active
}

func (m *Model) ActivateSelectInteraction()   { m.setInteraction(InteractionSelect, true) }
func (m *Model) DeactivateSelectInteraction() { m.setInteraction(InteractionSelect, false) }

func (m *Model) ActivateDrawInteraction(options DrawOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[InteractionDraw] = true
	m.drawOptions = &options
}

func (m *Model) DeactivateDrawInteraction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[InteractionDraw] = false
	m.drawOptions = nil
}

func (m *Model) DeactivateSnapInteraction()      { m.setInteraction(InteractionSnap, false) }
func (m *Model) DeactivateTranslateInteraction() { m.setInteraction(InteractionTranslate, false) }
func (m *Model) DeactivateModifyInteraction()    { m.setInteraction(InteractionModify, false) }

// Interactions returns a copy of the interaction flags.
func (m *Model) Interactions() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.interactions)
}

// DrawOptions returns the options of the active draw interaction.
func (m *Model) DrawOptions() (DrawOptions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.drawOptions == nil {
		return DrawOptions{}, false
	}
	return *m.drawOptions, true
}

// LabelModel is an in-process LabelViewer.
type LabelModel struct {
	mu        sync.Mutex
	options   LabelViewerOptions
	container string
}

var _ LabelViewer = (*LabelModel)(nil)

func (l *LabelModel) Render(container string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.container = container
}

func (l *LabelModel) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.container = ""
}

// Container returns the container the viewer was last rendered into.
func (l *LabelModel) Container() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.container
}

func (l *LabelModel) Metadata() *dicom.Image {
	return l.options.Metadata
}

// ModelFactory builds in-process viewer models.
type ModelFactory struct{}

func (ModelFactory) NewVolumeViewer(opts VolumeViewerOptions) (VolumeViewer, error) {
	return NewModel(opts)
}

func (ModelFactory) NewLabelViewer(opts LabelViewerOptions) (LabelViewer, error) {
	if opts.Metadata == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Label viewer requires metadata of a LABEL image.")
	}
	return &LabelModel{options: opts}, nil
}
