package dicom

// Tag is a DICOM attribute tag in the eight hex digit form used as the key of
// the DICOM JSON model, e.g. "0020000D".
type Tag string

// Attribute tags read by the viewer
const (
	TagImageType                     Tag = "00080008"
	TagSOPClassUID                   Tag = "00080016"
	TagAcquisitionUID                Tag = "00080017"
	TagSOPInstanceUID                Tag = "00080018"
	TagPyramidUID                    Tag = "00080019"
	TagStudyDate                     Tag = "00080020"
	TagStudyTime                     Tag = "00080030"
	TagAccessionNumber               Tag = "00080050"
	TagModality                      Tag = "00080060"
	TagModalitiesInStudy             Tag = "00080061"
	TagReferringPhysicianName        Tag = "00080090"
	TagStudyDescription              Tag = "00081030"
	TagSeriesDescription             Tag = "0008103E"
	TagReferencedSeriesSequence      Tag = "00081115"
	TagReferencedImageSequence       Tag = "00081140"
	TagReferencedSOPClassUID         Tag = "00081150"
	TagReferencedSOPInstanceUID      Tag = "00081155"
	TagReferencedInstanceSequence    Tag = "0008114A"
	TagPatientName                   Tag = "00100010"
	TagPatientID                     Tag = "00100020"
	TagPatientBirthDate              Tag = "00100030"
	TagPatientSex                    Tag = "00100040"
	TagStudyInstanceUID              Tag = "0020000D"
	TagSeriesInstanceUID             Tag = "0020000E"
	TagStudyID                       Tag = "00200010"
	TagSeriesNumber                  Tag = "00200011"
	TagInstanceNumber                Tag = "00200013"
	TagFrameOfReferenceUID           Tag = "00200052"
	TagNumberOfStudyRelatedSeries    Tag = "00201206"
	TagNumberOfStudyRelatedInstances Tag = "00201208"
	TagSamplesPerPixel               Tag = "00280002"
	TagPhotometricInterpretation     Tag = "00280004"
	TagNumberOfFrames                Tag = "00280008"
	TagRows                          Tag = "00280010"
	TagColumns                       Tag = "00280011"
	TagBitsAllocated                 Tag = "00280100"
	TagBitsStored                    Tag = "00280101"
	TagWindowCenter                  Tag = "00281050"
	TagWindowWidth                   Tag = "00281051"
	TagRedPaletteLUTDescriptor       Tag = "00281101"
	TagGreenPaletteLUTDescriptor     Tag = "00281102"
	TagBluePaletteLUTDescriptor      Tag = "00281103"
	TagPaletteColorLUTUID            Tag = "00281199"
	TagRedPaletteLUTData             Tag = "00281201"
	TagGreenPaletteLUTData           Tag = "00281202"
	TagBluePaletteLUTData            Tag = "00281203"
	TagSegmentedRedPaletteLUTData    Tag = "00281221"
	TagSegmentedGreenPaletteLUTData  Tag = "00281222"
	TagSegmentedBluePaletteLUTData   Tag = "00281223"
	TagICCProfile                    Tag = "00282000"
	TagSoftcopyVOILUTSequence        Tag = "00283110"
	TagContainerIdentifier           Tag = "00400512"
	TagSpecimenDescriptionSequence   Tag = "00400560"
	TagSpecimenShortDescription      Tag = "00400600"
	TagImagedVolumeWidth             Tag = "00480001"
	TagImagedVolumeHeight            Tag = "00480002"
	TagTotalPixelMatrixColumns       Tag = "00480006"
	TagTotalPixelMatrixRows          Tag = "00480007"
	TagOpticalPathSequence           Tag = "00480105"
	TagOpticalPathIdentifier         Tag = "00480106"
	TagOpticalPathDescription        Tag = "00480107"
	TagContentLabel                  Tag = "00700080"
	TagContentDescription            Tag = "00700081"
	TagPaletteColorLUTSequence       Tag = "0028140B"
	TagAdvancedBlendingSequence      Tag = "00701401"
)

// Value representations used when building datasets
const (
	VRAE = "AE"
	VRCS = "CS"
	VRDA = "DA"
	VRDS = "DS"
	VRFD = "FD"
	VRFL = "FL"
	VRIS = "IS"
	VRLO = "LO"
	VRLT = "LT"
	VROB = "OB"
	VROW = "OW"
	VRPN = "PN"
	VRSH = "SH"
	VRSQ = "SQ"
	VRSS = "SS"
	VRST = "ST"
	VRTM = "TM"
	VRUI = "UI"
	VRUL = "UL"
	VRUS = "US"
)
