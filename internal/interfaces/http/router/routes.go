package router

import (
	"github.com/wsiviewer/backend/internal/interfaces/http/handler"
)

// Handlers holds the handlers served under the versioned API. Proxy is nil
// unless the archive proxy is enabled.
type Handlers struct {
	System   *handler.SystemHandler
	Worklist *handler.WorklistHandler
	Cases    *handler.CaseHandler
	Viewers  *handler.ViewerHandler
	Stow     *handler.StowHandler
	Manifest *handler.ManifestHandler
	Proxy    *handler.ProxyHandler
}

// Groups returns the domain groups of the viewer API.
func (h Handlers) Groups() []*DomainGroup {
	system := NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping)

	worklist := NewDomainGroup("worklist", "/worklist").
		GET("", h.Worklist.List)

	studies := NewDomainGroup("studies", "/studies").
		GET("/:study", h.Cases.Get).
		GET("/:study/series/:series", h.Viewers.Open).
		POST("/:study/instances", h.Stow.Store).
		POST("/:study/manifest", h.Manifest.Export)

	viewers := NewDomainGroup("viewers", "/viewers").
		GET("/:id", h.Viewers.Get).
		DELETE("/:id", h.Viewers.Close)
	viewers.Group("roi", "/:id/roi").
		POST("/toggle", h.Viewers.ToggleDrawing).
		POST("/complete", h.Viewers.CompleteConfiguration).
		POST("/cancel", h.Viewers.CancelConfiguration).
		PUT("/finding", h.Viewers.SelectFinding).
		PUT("/geometry", h.Viewers.SelectGeometryType).
		PUT("/evaluation", h.Viewers.SelectEvaluation).
		PUT("/measurement", h.Viewers.SetMeasurement)

	annotations := NewDomainGroup("annotations", "/annotations").
		GET("", h.Viewers.AnnotationOptions)

	groups := []*DomainGroup{system, worklist, studies, viewers, annotations}
	if h.Proxy != nil {
		groups = append(groups, NewDomainGroup("dicomweb", "/dicomweb").Any("/*path", h.Proxy.Forward))
	}
	return groups
}
