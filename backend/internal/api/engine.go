package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewEngine builds the gin engine: middleware, /health, /metrics and the
// handler's endpoints under /api. A nil gatherer leaves /metrics out.
func NewEngine(h *Handler, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	engine.Use(RequestLogger(log))
	engine.Use(gin.Recovery())
	engine.Use(CORS())

	root := NewRouter(&engine.RouterGroup)
	root.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		root.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h.Register(root.Group("/api", ErrorHandler(log)))
	return engine
}
