package slide

import (
	"sort"

	"github.com/wsiviewer/backend/internal/domain/dicom"
)

type slideGroup struct {
	frameOfReferenceUID string
	containerIdentifier string
	acquisitionUID      string
	volumeImages        []*dicom.Image
	labelImages         []*dicom.Image
	overviewImages      []*dicom.Image
}

func (g *slideGroup) contains(img *dicom.Image) bool {
	return g.frameOfReferenceUID == img.FrameOfReferenceUID &&
		g.containerIdentifier == img.ContainerIdentifier &&
		g.acquisitionUID == img.AcquisitionUID
}

// CreateSlides groups the images of each series into slides. Series whose
// first volume image shares Frame of Reference UID, Container Identifier and
// Acquisition UID are merged into the same slide. The result is ordered by the
// numeric value of the Container Identifier of each slide's first volume image.
func CreateSlides(series [][]*dicom.Image) ([]*Slide, error) {
	var groups []*slideGroup

	for _, images := range series {
		if len(images) == 0 {
			continue
		}
		volumeImages := filter(images, (*dicom.Image).IsVolume)
		if len(volumeImages) == 0 {
			continue
		}
		ref := volumeImages[0]
		volumeImages = filter(volumeImages, func(img *dicom.Image) bool {
			return img.SamplesPerPixel == ref.SamplesPerPixel
		})
		labelImages := sameAcquisitionIfAmbiguous(filter(images, flavor(dicom.ImageFlavorLabel)), ref)
		overviewImages := sameAcquisitionIfAmbiguous(filter(images, flavor(dicom.ImageFlavorOverview)), ref)

		var group *slideGroup
		for _, g := range groups {
			if g.contains(ref) {
				group = g
				break
			}
		}
		if group == nil {
			group = &slideGroup{
				frameOfReferenceUID: ref.FrameOfReferenceUID,
				containerIdentifier: ref.ContainerIdentifier,
				acquisitionUID:      ref.AcquisitionUID,
			}
			groups = append(groups, group)
		}
		group.volumeImages = append(group.volumeImages, volumeImages...)
		group.labelImages = append(group.labelImages, labelImages...)
		group.overviewImages = append(group.overviewImages, overviewImages...)
	}

	slides := make([]*Slide, 0, len(groups))
	for _, g := range groups {
		images := make([]*dicom.Image, 0, len(g.volumeImages)+len(g.labelImages)+len(g.overviewImages))
		images = append(images, g.volumeImages...)
		images = append(images, g.labelImages...)
		images = append(images, g.overviewImages...)
		s, err := NewSlide(images, "")
		if err != nil {
			return nil, err
		}
		slides = append(slides, s)
	}

	// Identifiers that are absent or not numeric compare as equal to anything,
	// so such slides keep their input position relative to their neighbours.
	sort.SliceStable(slides, func(i, j int) bool {
		a, okA := slides[i].volumeImages[0].ContainerNumber()
		b, okB := slides[j].volumeImages[0].ContainerNumber()
		if !okA || !okB {
			return false
		}
		return a < b
	})

	return slides, nil
}

// FindBySeries returns the slide that contains images of the series.
func FindBySeries(slides []*Slide, seriesInstanceUID string) (*Slide, bool) {
	for _, s := range slides {
		if s.HasSeries(seriesInstanceUID) {
			return s, true
		}
	}
	return nil, false
}

// sameAcquisitionIfAmbiguous keeps only images acquired together with the
// reference image, but only when there is more than one candidate.
func sameAcquisitionIfAmbiguous(images []*dicom.Image, ref *dicom.Image) []*dicom.Image {
	if len(images) <= 1 {
		return images
	}
	return filter(images, func(img *dicom.Image) bool {
		return img.AcquisitionUID != "" && img.AcquisitionUID == ref.AcquisitionUID
	})
}

func flavor(f dicom.ImageFlavor) func(*dicom.Image) bool {
	return func(img *dicom.Image) bool { return img.HasFlavor(f) }
}

func filter(images []*dicom.Image, keep func(*dicom.Image) bool) []*dicom.Image {
	out := make([]*dicom.Image, 0, len(images))
	for _, img := range images {
		if img != nil && keep(img) {
			out = append(out, img)
		}
	}
	return out
}
