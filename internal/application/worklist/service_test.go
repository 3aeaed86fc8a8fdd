package worklist_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wsiviewer/backend/internal/application/worklist"
	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
)

type MockStudySearcher struct {
	mock.Mock
}

func (m *MockStudySearcher) SearchForStudies(ctx context.Context, opts dicomweb.SearchOptions) ([]dicom.Dataset, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dicom.Dataset), args.Error(1)
}

func studyDataset(uid string) dicom.Dataset {
	return dicom.Dataset{}.
		SetStrings(dicom.TagStudyInstanceUID, dicom.VRUI, uid).
		SetStrings(dicom.TagAccessionNumber, dicom.VRSH, "A-"+uid).
		SetStrings(dicom.TagStudyID, dicom.VRSH, "S1").
		SetStrings(dicom.TagPatientID, dicom.VRLO, "P-1").
		SetPersonName(dicom.TagPatientName, "Doe^Jane").
		SetStrings(dicom.TagStudyDate, dicom.VRDA, "20240131").
		SetStrings(dicom.TagModalitiesInStudy, dicom.VRCS, "SM", "PR")
}

func TestService_SearchStudies(t *testing.T) {
	archive := new(MockStudySearcher)
	archive.On("SearchForStudies", mock.Anything, dicomweb.SearchOptions{
		QueryParams: map[string]string{"ModalitiesInStudy": "SM"},
	}).Return([]dicom.Dataset{studyDataset("1.2.3"), studyDataset("1.2.4")}, nil)

	studies, err := worklist.NewService(archive, nil).SearchStudies(context.Background())
	require.NoError(t, err)
	require.Len(t, studies, 2)

	assert.Equal(t, worklist.StudySummary{
		StudyInstanceUID:  "1.2.3",
		AccessionNumber:   "A-1.2.3",
		StudyID:           "S1",
		PatientID:         "P-1",
		PatientName:       "Doe^Jane",
		StudyDate:         "20240131",
		ModalitiesInStudy: []string{"SM", "PR"},
		Location:          "/study/1.2.3",
	}, studies[0])
	assert.Equal(t, "/study/1.2.4", studies[1].Location)
	archive.AssertExpectations(t)
}

func TestService_SearchStudies_Empty(t *testing.T) {
	archive := new(MockStudySearcher)
	archive.On("SearchForStudies", mock.Anything, mock.Anything).Return([]dicom.Dataset{}, nil)

	studies, err := worklist.NewService(archive, nil).SearchStudies(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, studies)
	assert.Empty(t, studies)
}

func TestService_SearchStudies_ArchiveError(t *testing.T) {
	archiveErr := &dicomweb.HTTPError{Status: 502, Method: "GET", URL: "http://archive/studies"}
	archive := new(MockStudySearcher)
	archive.On("SearchForStudies", mock.Anything, mock.Anything).Return(nil, archiveErr)

	studies, err := worklist.NewService(archive, nil).SearchStudies(context.Background())
	assert.Nil(t, studies)

	var httpErr *dicomweb.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 502, httpErr.Status)
}

func TestNewStudySummary_MissingAttributes(t *testing.T) {
	summary := worklist.NewStudySummary(dicom.Dataset{}.SetStrings(dicom.TagStudyInstanceUID, dicom.VRUI, "9"))

	assert.Equal(t, "9", summary.StudyInstanceUID)
	assert.Empty(t, summary.PatientName)
	assert.Equal(t, []string{}, summary.ModalitiesInStudy)
}
