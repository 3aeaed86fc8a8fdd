package viewer

import (
	"fmt"

	"github.com/wsiviewer/backend/internal/domain/slide"
)

// Viewers is the pair of viewers displaying a slide. Label is nil when the
// slide has no LABEL image.
type Viewers struct {
	Volume VolumeViewer
	Label  LabelViewer
}

// Cleanup tears down both viewers.
func (v Viewers) Cleanup() {
	if v.Volume != nil {
		v.Volume.Cleanup()
	}
	if v.Label != nil {
		v.Label.Cleanup()
	}
}

// ConstructViewers builds the volume viewer for the slide's VOLUME images
// with select interaction enabled, and a label viewer for its first LABEL
// image if there is one.
func ConstructViewers(f Factory, s *slide.Slide, clientKey string, preload bool) (Viewers, error) {
	volume, err := f.NewVolumeViewer(VolumeViewerOptions{
		ClientKey: clientKey,
		Metadata:  s.VolumeImages(),
		Controls:  []string{"overview", "position"},
		Preload:   preload,
	})
	if err != nil {
		return Viewers{}, fmt.Errorf("failed to instantiate volume viewer for slide %q: %w", s.ContainerIdentifier(), err)
	}
	volume.ActivateSelectInteraction()

	viewers := Viewers{Volume: volume}
	if labels := s.LabelImages(); len(labels) > 0 {
		label, err := f.NewLabelViewer(LabelViewerOptions{
			ClientKey:    clientKey,
			Metadata:     labels[0],
			ResizeFactor: 1,
			Orientation:  "vertical",
		})
		if err != nil {
			volume.Cleanup()
			return Viewers{}, fmt.Errorf("failed to instantiate label viewer for slide %q: %w", s.ContainerIdentifier(), err)
		}
		viewers.Label = label
	}
	return viewers, nil
}
