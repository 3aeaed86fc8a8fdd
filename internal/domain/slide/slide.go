package slide

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
)

// Slide is an aggregate of image instances that depict the same physical
// glass slide. A Slide is immutable once constructed.
type Slide struct {
	description               string
	acquisitionUID            string
	frameOfReferenceUID       string
	containerIdentifier       string
	seriesInstanceUIDs        []string
	opticalPathIdentifiers    []string
	pyramidUIDs               []string
	areVolumeImagesMonochrome bool
	volumeImages              []*dicom.Image
	labelImages               []*dicom.Image
	overviewImages            []*dicom.Image
	warnings                  []string
}

func invalidSlide(format string, args ...any) error {
	return shared.NewDomainError(shared.CodeInvalidSlide, fmt.Sprintf(format, args...))
}

// NewSlide validates the images and builds a slide from them.
func NewSlide(images []*dicom.Image, description string) (*Slide, error) {
	if len(images) == 0 {
		return nil, invalidSlide("At least one image must be provided for a slide.")
	}

	s := &Slide{description: description}

	seriesSeen := make(map[string]bool)
	pathSeen := make(map[string]bool)
	containerIdentifiers := make(map[string]bool)
	volumeFrameOfReferenceUIDs := make(map[string]bool)
	acquisitionUIDs := make(map[string]bool)

	for _, img := range images {
		if img == nil {
			continue
		}
		containerIdentifiers[img.ContainerIdentifier] = true
		if !seriesSeen[img.SeriesInstanceUID] {
			seriesSeen[img.SeriesInstanceUID] = true
			s.seriesInstanceUIDs = append(s.seriesInstanceUIDs, img.SeriesInstanceUID)
		}
		if img.AcquisitionUID != "" {
			acquisitionUIDs[img.AcquisitionUID] = true
		}

		switch {
		case img.IsVolume():
			volumeFrameOfReferenceUIDs[img.FrameOfReferenceUID] = true
			for _, id := range img.OpticalPathIdentifiers() {
				if !pathSeen[id] {
					pathSeen[id] = true
					s.opticalPathIdentifiers = append(s.opticalPathIdentifiers, id)
				}
			}
			s.volumeImages = append(s.volumeImages, img)
		case img.HasFlavor(dicom.ImageFlavorLabel):
			s.labelImages = append(s.labelImages, img)
		case img.HasFlavor(dicom.ImageFlavorOverview):
			s.overviewImages = append(s.overviewImages, img)
		}
	}

	if len(s.volumeImages) == 0 {
		return nil, invalidSlide("At least one VOLUME image must be provided for a slide.")
	}

	if err := s.checkAcquisition(acquisitionUIDs); err != nil {
		return nil, err
	}

	samplesPerPixel := make(map[int]bool)
	notResampled := 0
	for _, img := range s.volumeImages {
		samplesPerPixel[img.SamplesPerPixel] = true
		if !img.IsResampled() {
			notResampled++
		}
	}
	if len(samplesPerPixel) > 1 {
		return nil, invalidSlide("All VOLUME images of a slide must have the same number of Samples per Pixel.")
	}
	if notResampled > len(s.opticalPathIdentifiers) {
		s.warnings = append(s.warnings,
			"the set of VOLUME images of a slide must contain only a single image that has not been resampled per optical path")
	}

	if len(containerIdentifiers) != 1 {
		return nil, invalidSlide("All images of a slide must have the same Container Identifier.")
	}
	s.containerIdentifier = singleKey(containerIdentifiers)

	if len(volumeFrameOfReferenceUIDs) != 1 {
		return nil, invalidSlide("All VOLUME images of a slide must have the same Frame of Reference UID.")
	}
	s.frameOfReferenceUID = singleKey(volumeFrameOfReferenceUIDs)

	if err := s.collectPyramidUIDs(); err != nil {
		return nil, err
	}

	s.areVolumeImagesMonochrome = s.volumeImages[0].IsMonochrome()
	return s, nil
}

// checkAcquisition allows at most one Acquisition UID across the slide, and
// forbids volume images that lack it next to volume images that carry it.
// Label and overview images may carry the UID alone.
func (s *Slide) checkAcquisition(acquisitionUIDs map[string]bool) error {
	const msg = "All VOLUME images of a slide must be part of the same acquisition and have the same Acquisition UID."
	if len(acquisitionUIDs) > 1 {
		return invalidSlide(msg)
	}
	withUID := 0
	for _, img := range s.volumeImages {
		if img.AcquisitionUID != "" {
			withUID++
		}
	}
	if withUID > 0 && withUID < len(s.volumeImages) {
		return invalidSlide(msg)
	}
	if len(acquisitionUIDs) == 1 {
		s.acquisitionUID = singleKey(acquisitionUIDs)
	}
	return nil
}

func (s *Slide) collectPyramidUIDs() error {
	perPath := make(map[string][]string)
	for _, img := range s.volumeImages {
		if img.PyramidUID == "" {
			continue
		}
		for _, id := range img.OpticalPathIdentifiers() {
			if !slices.Contains(perPath[id], img.PyramidUID) {
				perPath[id] = append(perPath[id], img.PyramidUID)
			}
		}
	}
	if len(perPath) == 0 {
		return nil
	}

	for _, id := range s.opticalPathIdentifiers {
		uids := perPath[id]
		switch len(uids) {
		case 0:
			return invalidSlide("The VOLUME images for optical path %q lack the Pyramid UID, while the images for other optical paths contain it.", id)
		case 1:
			s.pyramidUIDs = append(s.pyramidUIDs, uids[0])
		default:
			return invalidSlide("All VOLUME images for optical path %q must be part of the same multi-resolution pyramid.", id)
		}
	}
	return nil
}

// Description returns the slide description.
func (s *Slide) Description() string { return s.description }

// AcquisitionUID returns the Acquisition UID shared by the slide's images.
func (s *Slide) AcquisitionUID() (string, bool) {
	return s.acquisitionUID, s.acquisitionUID != ""
}

// FrameOfReferenceUID returns the Frame of Reference UID of the volume images.
func (s *Slide) FrameOfReferenceUID() string { return s.frameOfReferenceUID }

// ContainerIdentifier returns the identifier of the glass slide.
func (s *Slide) ContainerIdentifier() string { return s.containerIdentifier }

// AreVolumeImagesMonochrome reports whether the first volume image has a
// single MONOCHROME2 channel.
func (s *Slide) AreVolumeImagesMonochrome() bool { return s.areVolumeImagesMonochrome }

// SeriesInstanceUIDs returns the series the slide's images belong to.
func (s *Slide) SeriesInstanceUIDs() []string { return slices.Clone(s.seriesInstanceUIDs) }

// OpticalPathIdentifiers returns the optical paths of the volume images.
func (s *Slide) OpticalPathIdentifiers() []string { return slices.Clone(s.opticalPathIdentifiers) }

// PyramidUIDs returns one Pyramid UID per optical path, or nil if the volume
// images carry none.
func (s *Slide) PyramidUIDs() []string { return slices.Clone(s.pyramidUIDs) }

// VolumeImages returns the VOLUME and THUMBNAIL images.
func (s *Slide) VolumeImages() []*dicom.Image { return slices.Clone(s.volumeImages) }

// LabelImages returns the LABEL images.
func (s *Slide) LabelImages() []*dicom.Image { return slices.Clone(s.labelImages) }

// OverviewImages returns the OVERVIEW images.
func (s *Slide) OverviewImages() []*dicom.Image { return slices.Clone(s.overviewImages) }

// Warnings returns non-fatal consistency problems found during construction.
func (s *Slide) Warnings() []string { return slices.Clone(s.warnings) }

// HasSeries reports whether the series contributes images to the slide.
func (s *Slide) HasSeries(seriesInstanceUID string) bool {
	return slices.Contains(s.seriesInstanceUIDs, seriesInstanceUID)
}

// Fingerprint returns a stable identity of the slide content.
func (s *Slide) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", s.frameOfReferenceUID, s.containerIdentifier, s.acquisitionUID)
	for _, group := range [][]*dicom.Image{s.volumeImages, s.labelImages, s.overviewImages} {
		for _, img := range group {
			h.Write([]byte(img.SOPInstanceUID))
			h.Write([]byte{0})
		}
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

type slideJSON struct {
	Description               string         `json:"description"`
	AcquisitionUID            *string        `json:"acquisition_uid"`
	FrameOfReferenceUID       string         `json:"frame_of_reference_uid"`
	ContainerIdentifier       string         `json:"container_identifier"`
	SeriesInstanceUIDs        []string       `json:"series_instance_uids"`
	OpticalPathIdentifiers    []string       `json:"optical_path_identifiers"`
	PyramidUIDs               []string       `json:"pyramid_uids"`
	AreVolumeImagesMonochrome bool           `json:"are_volume_images_monochrome"`
	VolumeImages              []*dicom.Image `json:"volume_images"`
	LabelImages               []*dicom.Image `json:"label_images"`
	OverviewImages            []*dicom.Image `json:"overview_images"`
}

// MarshalJSON renders the slide for API responses.
func (s *Slide) MarshalJSON() ([]byte, error) {
	out := slideJSON{
		Description:               s.description,
		FrameOfReferenceUID:       s.frameOfReferenceUID,
		ContainerIdentifier:       s.containerIdentifier,
		SeriesInstanceUIDs:        nonNil(s.seriesInstanceUIDs),
		OpticalPathIdentifiers:    nonNil(s.opticalPathIdentifiers),
		PyramidUIDs:               nonNil(s.pyramidUIDs),
		AreVolumeImagesMonochrome: s.areVolumeImagesMonochrome,
		VolumeImages:              nonNil(s.volumeImages),
		LabelImages:               nonNil(s.labelImages),
		OverviewImages:            nonNil(s.overviewImages),
	}
	if uid, ok := s.AcquisitionUID(); ok {
		out.AcquisitionUID = &uid
	}
	return json.Marshal(out)
}

// String implements fmt.Stringer
func (s *Slide) String() string {
	return fmt.Sprintf("Slide{container=%q, series=[%s]}", s.containerIdentifier, strings.Join(s.seriesInstanceUIDs, ","))
}

func singleKey[K comparable](m map[K]bool) K {
	var key K
	for k := range m {
		key = k
	}
	return key
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
