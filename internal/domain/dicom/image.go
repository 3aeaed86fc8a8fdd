package dicom

import (
	"strconv"
	"strings"

	"github.com/wsiviewer/backend/internal/domain/shared"
)

// ImageFlavor is the third value of the Image Type attribute of a VL whole
// slide microscopy image.
type ImageFlavor string

const (
	ImageFlavorVolume    ImageFlavor = "VOLUME"
	ImageFlavorLabel     ImageFlavor = "LABEL"
	ImageFlavorOverview  ImageFlavor = "OVERVIEW"
	ImageFlavorThumbnail ImageFlavor = "THUMBNAIL"
)

// Photometric interpretation of single channel images
const PhotometricMonochrome2 = "MONOCHROME2"

// OpticalPath describes one item of the Optical Path Sequence.
type OpticalPath struct {
	Identifier    string `json:"identifier"`
	Description   string `json:"description,omitempty"`
	HasICCProfile bool   `json:"has_icc_profile"`
}

// Image is the metadata of a VL Whole Slide Microscopy Image instance.
type Image struct {
	SOPClassUID               string        `json:"sop_class_uid"`
	SOPInstanceUID            string        `json:"sop_instance_uid"`
	StudyInstanceUID          string        `json:"study_instance_uid"`
	SeriesInstanceUID         string        `json:"series_instance_uid"`
	SeriesDescription         string        `json:"series_description,omitempty"`
	ImageType                 []string      `json:"image_type"`
	FrameOfReferenceUID       string        `json:"frame_of_reference_uid"`
	ContainerIdentifier       string        `json:"container_identifier"`
	AcquisitionUID            string        `json:"acquisition_uid,omitempty"`
	PyramidUID                string        `json:"pyramid_uid,omitempty"`
	SamplesPerPixel           int           `json:"samples_per_pixel"`
	PhotometricInterpretation string        `json:"photometric_interpretation"`
	BitsStored                int           `json:"bits_stored,omitempty"`
	Rows                      int           `json:"rows"`
	Columns                   int           `json:"columns"`
	TotalPixelMatrixRows      int           `json:"total_pixel_matrix_rows"`
	TotalPixelMatrixColumns   int           `json:"total_pixel_matrix_columns"`
	ImagedVolumeWidth         float64       `json:"imaged_volume_width,omitempty"`
	ImagedVolumeHeight        float64       `json:"imaged_volume_height,omitempty"`
	OpticalPaths              []OpticalPath `json:"optical_paths"`

	dataset Dataset
}

// NewImage reads image metadata from a DICOM JSON dataset.
func NewImage(ds Dataset) (*Image, error) {
	if ds.String(TagSOPInstanceUID) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Image metadata lacks SOP Instance UID.")
	}
	if ds.String(TagSeriesInstanceUID) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Image metadata lacks Series Instance UID.")
	}

	img := &Image{
		SOPClassUID:               ds.String(TagSOPClassUID),
		SOPInstanceUID:            ds.String(TagSOPInstanceUID),
		StudyInstanceUID:          ds.String(TagStudyInstanceUID),
		SeriesInstanceUID:         ds.String(TagSeriesInstanceUID),
		SeriesDescription:         ds.String(TagSeriesDescription),
		ImageType:                 ds.Strings(TagImageType),
		FrameOfReferenceUID:       ds.String(TagFrameOfReferenceUID),
		ContainerIdentifier:       ds.String(TagContainerIdentifier),
		AcquisitionUID:            ds.String(TagAcquisitionUID),
		PyramidUID:                ds.String(TagPyramidUID),
		PhotometricInterpretation: ds.String(TagPhotometricInterpretation),
		dataset:                   ds,
	}
	img.SamplesPerPixel, _ = ds.Int(TagSamplesPerPixel)
	img.BitsStored, _ = ds.Int(TagBitsStored)
	img.Rows, _ = ds.Int(TagRows)
	img.Columns, _ = ds.Int(TagColumns)
	img.TotalPixelMatrixRows, _ = ds.Int(TagTotalPixelMatrixRows)
	img.TotalPixelMatrixColumns, _ = ds.Int(TagTotalPixelMatrixColumns)
	img.ImagedVolumeWidth, _ = ds.Float(TagImagedVolumeWidth)
	img.ImagedVolumeHeight, _ = ds.Float(TagImagedVolumeHeight)

	for _, item := range ds.Sequence(TagOpticalPathSequence) {
		img.OpticalPaths = append(img.OpticalPaths, OpticalPath{
			Identifier:    item.String(TagOpticalPathIdentifier),
			Description:   item.String(TagOpticalPathDescription),
			HasICCProfile: item.Has(TagICCProfile),
		})
	}

	return img, nil
}

// Dataset returns the DICOM JSON the image was read from.
func (i *Image) Dataset() Dataset {
	return i.dataset
}

// Flavor returns the third value of Image Type, or "" if absent.
func (i *Image) Flavor() ImageFlavor {
	if len(i.ImageType) < 3 {
		return ""
	}
	return ImageFlavor(strings.TrimSpace(i.ImageType[2]))
}

// HasFlavor reports whether the image is of one of the given flavors.
func (i *Image) HasFlavor(flavors ...ImageFlavor) bool {
	flavor := i.Flavor()
	for _, f := range flavors {
		if flavor == f {
			return true
		}
	}
	return false
}

// IsVolume reports whether the image belongs to the multi-resolution pyramid.
// Thumbnails are treated as the lowest resolution level.
func (i *Image) IsVolume() bool {
	return i.HasFlavor(ImageFlavorVolume, ImageFlavorThumbnail)
}

// IsResampled reports whether the fourth value of Image Type is RESAMPLED.
func (i *Image) IsResampled() bool {
	return len(i.ImageType) > 3 && strings.TrimSpace(i.ImageType[3]) == "RESAMPLED"
}

// IsMonochrome reports whether the image has a single MONOCHROME2 channel.
func (i *Image) IsMonochrome() bool {
	return i.SamplesPerPixel == 1 && i.PhotometricInterpretation == PhotometricMonochrome2
}

// OpticalPathIdentifiers returns the identifiers of the image's optical paths.
func (i *Image) OpticalPathIdentifiers() []string {
	ids := make([]string, 0, len(i.OpticalPaths))
	for _, p := range i.OpticalPaths {
		ids = append(ids, p.Identifier)
	}
	return ids
}

// ContainerNumber parses the Container Identifier as a number.
func (i *Image) ContainerNumber() (float64, bool) {
	if strings.TrimSpace(i.ContainerIdentifier) == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(i.ContainerIdentifier), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
