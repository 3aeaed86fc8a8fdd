package worklist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// ModalitySlideMicroscopy is the modality of whole slide microscopy studies
const ModalitySlideMicroscopy = "SM"

// StudySearcher searches the archive holding the slide images
type StudySearcher interface {
	SearchForStudies(ctx context.Context, opts dicomweb.SearchOptions) ([]dicom.Dataset, error)
}

// StudySummary is a row of the work list
type StudySummary struct {
	StudyInstanceUID  string   `json:"study_instance_uid"`
	AccessionNumber   string   `json:"accession_number"`
	StudyID           string   `json:"study_id"`
	PatientID         string   `json:"patient_id"`
	PatientName       string   `json:"patient_name"`
	PatientBirthDate  string   `json:"patient_birth_date,omitempty"`
	PatientSex        string   `json:"patient_sex,omitempty"`
	StudyDate         string   `json:"study_date"`
	StudyDescription  string   `json:"study_description,omitempty"`
	ModalitiesInStudy []string `json:"modalities_in_study"`
	Location          string   `json:"location"`
}

// Service lists the slide microscopy studies of the archive
type Service struct {
	archive StudySearcher
	logger  *zap.Logger
}

// NewService creates a new work list service
func NewService(archive StudySearcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{archive: archive, logger: logger}
}

// SearchStudies returns every study containing slide microscopy images.
func (s *Service) SearchStudies(ctx context.Context) ([]StudySummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "worklist", "search_studies")
	defer span.End()

	datasets, err := s.archive.SearchForStudies(ctx, dicomweb.SearchOptions{
		QueryParams: map[string]string{"ModalitiesInStudy": ModalitySlideMicroscopy},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to search for studies: %w", err)
	}

	studies := make([]StudySummary, 0, len(datasets))
	for _, ds := range datasets {
		studies = append(studies, NewStudySummary(ds))
	}
	s.logger.Debug("work list loaded", zap.Int("studies", len(studies)))
	return studies, nil
}

// NewStudySummary maps a QIDO-RS study result to a work list row.
func NewStudySummary(ds dicom.Dataset) StudySummary {
	uid := ds.String(dicom.TagStudyInstanceUID)
	modalities := ds.Strings(dicom.TagModalitiesInStudy)
	if modalities == nil {
		modalities = []string{}
	}
	return StudySummary{
		StudyInstanceUID:  uid,
		AccessionNumber:   ds.String(dicom.TagAccessionNumber),
		StudyID:           ds.String(dicom.TagStudyID),
		PatientID:         ds.String(dicom.TagPatientID),
		PatientName:       ds.String(dicom.TagPatientName),
		PatientBirthDate:  ds.String(dicom.TagPatientBirthDate),
		PatientSex:        ds.String(dicom.TagPatientSex),
		StudyDate:         ds.String(dicom.TagStudyDate),
		StudyDescription:  ds.String(dicom.TagStudyDescription),
		ModalitiesInStudy: modalities,
		Location:          "/study/" + uid,
	}
}
