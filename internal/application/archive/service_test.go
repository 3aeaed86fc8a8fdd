package archive_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wsiviewer/backend/internal/application/archive"
	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
)

type MockStore struct {
	mock.Mock
	id       string
	writable bool
}

func (m *MockStore) ID() string     { return m.id }
func (m *MockStore) Writable() bool { return m.writable }

func (m *MockStore) StoreInstances(ctx context.Context, opts dicomweb.StoreOptions) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

// fakeParser treats each payload as "<study>|<class>|<sop>".
func fakeParser(data []byte) (dicom.Dataset, error) {
	parts := strings.Split(string(data), "|")
	if len(parts) != 3 {
		return nil, errors.New("not an instance")
	}
	return dicom.Dataset{}.
		SetStrings(dicom.TagStudyInstanceUID, dicom.VRUI, parts[0]).
		SetStrings(dicom.TagSOPClassUID, dicom.VRUI, parts[1]).
		SetStrings(dicom.TagSOPInstanceUID, dicom.VRUI, parts[2]), nil
}

var (
	classSR = string(dicom.StorageClassComprehensive3DSR)
	classPR = string(dicom.StorageClassAdvancedBlendingPresentationState)
)

func newService(images, annotations *MockStore) *archive.Service {
	return archive.NewService(func(c dicom.StorageClass) archive.Store {
		if c == dicom.StorageClassComprehensive3DSR {
			return annotations
		}
		return images
	}, archive.WithParser(fakeParser))
}

func TestService_StoreInstances(t *testing.T) {
	images := &MockStore{id: "images", writable: true}
	annotations := &MockStore{id: "annotations", writable: true}

	sr1 := []byte("1.2.3|" + classSR + "|sr-1")
	pr1 := []byte("1.2.3|" + classPR + "|pr-1")
	sr2 := []byte("1.2.3|" + classSR + "|sr-2")

	annotations.On("StoreInstances", mock.Anything, dicomweb.StoreOptions{
		StudyInstanceUID: "1.2.3",
		Datasets:         [][]byte{sr1, sr2},
	}).Return(nil)
	images.On("StoreInstances", mock.Anything, dicomweb.StoreOptions{
		StudyInstanceUID: "1.2.3",
		Datasets:         [][]byte{pr1},
	}).Return(nil)

	stored, err := newService(images, annotations).StoreInstances(context.Background(), "1.2.3", [][]byte{sr1, pr1, sr2})
	require.NoError(t, err)

	assert.Equal(t, []archive.StoredInstance{
		{SOPInstanceUID: "sr-1", SOPClassUID: classSR, ServerID: "annotations"},
		{SOPInstanceUID: "sr-2", SOPClassUID: classSR, ServerID: "annotations"},
		{SOPInstanceUID: "pr-1", SOPClassUID: classPR, ServerID: "images"},
	}, stored)
	images.AssertExpectations(t)
	annotations.AssertExpectations(t)
}

func TestService_StoreInstances_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		instances [][]byte
		code      string
	}{
		{name: "no instances", instances: nil, code: shared.CodeInvalidInput},
		{name: "unparsable", instances: [][]byte{[]byte("garbage")}, code: shared.CodeInvalidInput},
		{name: "other study", instances: [][]byte{[]byte("9.9|" + classSR + "|sr-1")}, code: shared.CodeInvalidInput},
		{
			name: "read only store",
			instances: [][]byte{
				[]byte("1.2.3|" + classSR + "|sr-1"),
				[]byte("1.2.3|" + classPR + "|pr-1"),
			},
			code: shared.CodeNotWritable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := &MockStore{id: "images", writable: false}
			annotations := &MockStore{id: "annotations", writable: true}

			stored, err := newService(images, annotations).StoreInstances(context.Background(), "1.2.3", tt.instances)

			assert.Nil(t, stored)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.code, domainErr.Code)
			annotations.AssertNotCalled(t, "StoreInstances", mock.Anything, mock.Anything)
		})
	}
}

func TestService_StoreInstances_ArchiveError(t *testing.T) {
	images := &MockStore{id: "images", writable: true}
	annotations := &MockStore{id: "annotations", writable: true}
	archiveErr := &dicomweb.HTTPError{Status: 409, Method: "POST", URL: "http://archive/studies"}
	annotations.On("StoreInstances", mock.Anything, mock.Anything).Return(archiveErr)

	_, err := newService(images, annotations).StoreInstances(context.Background(), "1.2.3",
		[][]byte{[]byte("1.2.3|" + classSR + "|sr-1")})

	var httpErr *dicomweb.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 409, httpErr.Status)
	assert.Contains(t, err.Error(), `server "annotations"`)
}

func TestService_StoreInstances_StoresSharingID(t *testing.T) {
	images := &MockStore{id: "archive", writable: true}
	annotations := &MockStore{id: "archive", writable: true}

	sr1 := []byte("1.2.3|" + classSR + "|sr-1")
	pr1 := []byte("1.2.3|" + classPR + "|pr-1")

	annotations.On("StoreInstances", mock.Anything, dicomweb.StoreOptions{
		StudyInstanceUID: "1.2.3",
		Datasets:         [][]byte{sr1},
	}).Return(nil)
	images.On("StoreInstances", mock.Anything, dicomweb.StoreOptions{
		StudyInstanceUID: "1.2.3",
		Datasets:         [][]byte{pr1},
	}).Return(nil)

	stored, err := newService(images, annotations).StoreInstances(context.Background(), "1.2.3", [][]byte{sr1, pr1})
	require.NoError(t, err)

	assert.Len(t, stored, 2)
	images.AssertExpectations(t)
	annotations.AssertExpectations(t)
}
