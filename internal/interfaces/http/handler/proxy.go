package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/interfaces/http/dto"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
)

// ProxyHandler exposes the default archive under the API, so that a front
// end served from this origin can talk DICOMweb during development.
type ProxyHandler struct {
	BaseHandler
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
}

// NewProxyHandler creates a reverse proxy to the archive at targetURL
func NewProxyHandler(targetURL string, logger *zap.Logger) (*ProxyHandler, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", targetURL, err)
	}
	if !target.IsAbs() {
		return nil, fmt.Errorf("proxy target %q must be absolute", targetURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &ProxyHandler{target: target, logger: logger}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport:    otelhttp.NewTransport(http.DefaultTransport),
		ErrorHandler: h.proxyError,
	}
	return h, nil
}

// Forward passes the request on to the archive. An access token sent as
// query parameter is moved to the Authorization header.
func (h *ProxyHandler) Forward(c *gin.Context) {
	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = c.Param("path")
	req.URL.RawPath = ""

	query := req.URL.Query()
	if query.Has(middleware.AccessTokenQuery) {
		query.Del(middleware.AccessTokenQuery)
		req.URL.RawQuery = query.Encode()
	}
	if token := middleware.AccessToken(c); token != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+token)
	}

	h.proxy.ServeHTTP(c.Writer, req)
}

func (h *ProxyHandler) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("archive proxy request failed",
		zap.String("target", h.target.String()),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	body := dto.NewErrorResponseWithRequestID(dto.ErrCodeUpstream, "The image archive is unreachable", r.Header.Get(middleware.RequestIDHeader))
	_ = json.NewEncoder(w).Encode(body)
}
