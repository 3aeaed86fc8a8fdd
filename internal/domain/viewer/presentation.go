package viewer

import (
	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/slide"
)

// PresentationStateMatches reports whether the presentation state blends any
// series of the slide.
func PresentationStateMatches(s *slide.Slide, ps *dicom.AdvancedBlendingPresentationState) bool {
	return ps.ReferencesAnySeries(s.SeriesInstanceUIDs())
}

// ShouldApplyPresentationState decides whether the presentation state found
// at position index of the search result is applied. Without a selection the
// first result wins; otherwise only the selected instance is applied.
//
// Results are retrieved concurrently, so when both the first result and the
// selected instance match, whichever is applied last determines the display.
func ShouldApplyPresentationState(index int, ps *dicom.AdvancedBlendingPresentationState, selectedUID string) bool {
	if index == 0 && selectedUID == "" {
		return true
	}
	return selectedUID != "" && ps.SOPInstanceUID == selectedUID
}

// ApplyPresentationState resets every optical path to its default style,
// then styles, activates and shows the paths whose images are referenced by
// a blending item. It returns the identifiers of the styled paths.
func ApplyPresentationState(v VolumeViewer, ps *dicom.AdvancedBlendingPresentationState) []string {
	opticalPaths := v.GetAllOpticalPaths()
	styles := make(map[string]OpticalPathStyle)

	for _, path := range opticalPaths {
		id := path.Identifier
		v.HideOpticalPath(id)
		v.DeactivateOpticalPath(id)
		v.SetOpticalPathStyle(id, v.GetOpticalPathDefaultStyle(id))

		for _, item := range ps.BlendingItems {
			if item.ReferencedInstanceUIDs == nil {
				continue
			}
			for _, uid := range path.SOPInstanceUIDs {
				if !item.References(uid) {
					continue
				}
				style := OpticalPathStyle{Opacity: 1}
				if item.PaletteColorLUT != nil {
					lut := *item.PaletteColorLUT
					style.PaletteColorLUT = &lut
				}
				if item.VOIWindow != nil {
					limits := item.VOIWindow.LimitValues()
					style.LimitValues = &limits
				}
				styles[id] = style
				break
			}
		}
	}

	selected := make([]string, 0, len(styles))
	for _, path := range opticalPaths {
		style, ok := styles[path.Identifier]
		if !ok {
			continue
		}
		v.SetOpticalPathStyle(path.Identifier, style)
		v.ActivateOpticalPath(path.Identifier)
		v.ShowOpticalPath(path.Identifier)
		selected = append(selected, path.Identifier)
	}
	return selected
}

// HasICCProfile reports whether the first optical path of the first VOLUME
// image carries an ICC profile, inline or as bulk data.
func HasICCProfile(s *slide.Slide) bool {
	images := s.VolumeImages()
	if len(images) == 0 || len(images[0].OpticalPaths) == 0 {
		return false
	}
	return images[0].OpticalPaths[0].HasICCProfile
}
