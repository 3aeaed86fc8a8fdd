package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/interfaces/http/dto"
)

func serveCase(cases CaseLoader, target string) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/studies/:study", NewCaseHandler(cases).Get)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestCaseHandler_Get(t *testing.T) {
	t.Run("loaded case", func(t *testing.T) {
		cases := new(mockCases)
		route := viewer.Route{StudyInstanceUID: testStudyUID}
		cases.On("LoadCase", mock.Anything, route).Return(&caseviewer.CaseView{
			Route:    route,
			Status:   caseviewer.StatusLoaded,
			Location: "/studies/" + testStudyUID,
		})

		w := serveCase(cases, "/studies/"+testStudyUID)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeSuccess(t, w).Data.(map[string]any)
		assert.Equal(t, "loaded", data["status"])
		cases.AssertExpectations(t)
	})

	t.Run("query is kept without the viewer parameter", func(t *testing.T) {
		cases := new(mockCases)
		want := viewer.Route{
			StudyInstanceUID: testStudyUID,
			Query:            url.Values{"state": {"abc"}},
		}
		cases.On("LoadCase", mock.Anything, want).Return(&caseviewer.CaseView{Route: want, Status: caseviewer.StatusLoaded})

		w := serveCase(cases, "/studies/"+testStudyUID+"?state=abc&viewer=v1")

		assert.Equal(t, http.StatusOK, w.Code)
		cases.AssertExpectations(t)
	})

	t.Run("failed case", func(t *testing.T) {
		cases := new(mockCases)
		cases.On("LoadCase", mock.Anything, mock.Anything).Return(&caseviewer.CaseView{
			Status: caseviewer.StatusFailed,
			Error:  "Image metadata could not be retrieved",
		})

		w := serveCase(cases, "/studies/"+testStudyUID)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeUpstream, info.Code)
		assert.Equal(t, "Image metadata could not be retrieved", info.Message)
	})

	t.Run("invalid study UID", func(t *testing.T) {
		cases := new(mockCases)

		w := serveCase(cases, "/studies/not-a-uid")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeValidation, info.Code)
		cases.AssertNotCalled(t, "LoadCase", mock.Anything, mock.Anything)
	})
}
