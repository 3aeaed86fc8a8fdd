package viewer

import (
	"github.com/stretchr/testify/mock"
)

// MockVolumeViewer is a mock implementation of VolumeViewer that records
// interaction calls. Optical path methods are inert.
type MockVolumeViewer struct {
	mock.Mock
}

func (m *MockVolumeViewer) Render(container string) {
	m.Called(container)
}

func (m *MockVolumeViewer) Cleanup() {
	m.Called()
}

func (m *MockVolumeViewer) GetAllOpticalPaths() []OpticalPath {
	return nil
}

func (m *MockVolumeViewer) ShowOpticalPath(string) {}

func (m *MockVolumeViewer) HideOpticalPath(string) {}

func (m *MockVolumeViewer) ActivateOpticalPath(string) {}

func (m *MockVolumeViewer) DeactivateOpticalPath(string) {}

func (m *MockVolumeViewer) IsOpticalPathVisible(string) bool {
	return false
}

func (m *MockVolumeViewer) IsOpticalPathActive(string) bool {
	return false
}

func (m *MockVolumeViewer) GetOpticalPathStyle(string) OpticalPathStyle {
	return OpticalPathStyle{}
}

func (m *MockVolumeViewer) GetOpticalPathDefaultStyle(string) OpticalPathStyle {
	return OpticalPathStyle{}
}

func (m *MockVolumeViewer) SetOpticalPathStyle(string, OpticalPathStyle) {}

func (m *MockVolumeViewer) BoundingBox() BoundingBox {
	return BoundingBox{}
}

func (m *MockVolumeViewer) ActivateSelectInteraction() {
	m.Called()
}

func (m *MockVolumeViewer) DeactivateSelectInteraction() {
	m.Called()
}

func (m *MockVolumeViewer) ActivateDrawInteraction(options DrawOptions) {
	m.Called(options)
}

func (m *MockVolumeViewer) DeactivateDrawInteraction() {
	m.Called()
}

func (m *MockVolumeViewer) DeactivateSnapInteraction() {
	m.Called()
}

func (m *MockVolumeViewer) DeactivateTranslateInteraction() {
	m.Called()
}

func (m *MockVolumeViewer) DeactivateModifyInteraction() {
	m.Called()
}

func (m *MockVolumeViewer) Interactions() map[string]bool {
	return nil
}
