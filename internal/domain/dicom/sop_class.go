package dicom

// StorageClass is a DICOM SOP Class UID identifying the type of a stored object.
type StorageClass string

// Storage classes the viewer routes requests for
const (
	StorageClassVLWholeSlideMicroscopyImage          StorageClass = "1.2.840.10008.5.1.4.1.1.77.1.6"
	StorageClassComprehensiveSR                      StorageClass = "1.2.840.10008.5.1.4.1.1.88.33"
	StorageClassComprehensive3DSR                    StorageClass = "1.2.840.10008.5.1.4.1.1.88.34"
	StorageClassSegmentation                         StorageClass = "1.2.840.10008.5.1.4.1.1.66.4"
	StorageClassMicroscopyBulkSimpleAnnotation       StorageClass = "1.2.840.10008.5.1.4.1.1.91.1"
	StorageClassParametricMap                        StorageClass = "1.2.840.10008.5.1.4.1.1.30"
	StorageClassAdvancedBlendingPresentationState    StorageClass = "1.2.840.10008.5.1.4.1.1.11.8"
	StorageClassColorSoftcopyPresentationState       StorageClass = "1.2.840.10008.5.1.4.1.1.11.2"
	StorageClassGrayscaleSoftcopyPresentationState   StorageClass = "1.2.840.10008.5.1.4.1.1.11.1"
	StorageClassPseudocolorSoftcopyPresentationState StorageClass = "1.2.840.10008.5.1.4.1.1.11.3"
)

var storageClassNames = map[StorageClass]string{
	StorageClassVLWholeSlideMicroscopyImage:          "VL Whole Slide Microscopy Image",
	StorageClassComprehensiveSR:                      "Comprehensive SR",
	StorageClassComprehensive3DSR:                    "Comprehensive 3D SR",
	StorageClassSegmentation:                         "Segmentation",
	StorageClassMicroscopyBulkSimpleAnnotation:       "Microscopy Bulk Simple Annotation",
	StorageClassParametricMap:                        "Parametric Map",
	StorageClassAdvancedBlendingPresentationState:    "Advanced Blending Presentation State",
	StorageClassColorSoftcopyPresentationState:       "Color Softcopy Presentation State",
	StorageClassGrayscaleSoftcopyPresentationState:   "Grayscale Softcopy Presentation State",
	StorageClassPseudocolorSoftcopyPresentationState: "Pseudocolor Softcopy Presentation State",
}

// StorageClasses returns every known storage class in a fixed order.
func StorageClasses() []StorageClass {
	return []StorageClass{
		StorageClassVLWholeSlideMicroscopyImage,
		StorageClassComprehensiveSR,
		StorageClassComprehensive3DSR,
		StorageClassSegmentation,
		StorageClassMicroscopyBulkSimpleAnnotation,
		StorageClassParametricMap,
		StorageClassAdvancedBlendingPresentationState,
		StorageClassColorSoftcopyPresentationState,
		StorageClassGrayscaleSoftcopyPresentationState,
		StorageClassPseudocolorSoftcopyPresentationState,
	}
}

// IsKnown reports whether the UID is one of the storage classes listed above.
func (s StorageClass) IsKnown() bool {
	_, ok := storageClassNames[s]
	return ok
}

// Name returns the human readable name of the storage class.
func (s StorageClass) Name() string {
	if name, ok := storageClassNames[s]; ok {
		return name
	}
	return string(s)
}

func (s StorageClass) String() string {
	return string(s)
}
