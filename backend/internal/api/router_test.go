package api

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	return engine
}

func ok(c *gin.Context) { c.String(http.StatusOK, c.FullPath()) }

func routePaths(engine *gin.Engine) []string {
	var paths []string
	for _, r := range engine.Routes() {
		paths = append(paths, r.Method+" "+r.Path)
	}
	sort.Strings(paths)
	return paths
}

func TestRouter_OptionalTrailingSlash(t *testing.T) {
	engine := newTestEngine()
	r := NewRouter(&engine.RouterGroup)
	r.GET("/things", ok)
	r.GET("/things/:id/", ok)

	for _, path := range []string{"/things", "/things/", "/things/1", "/things/1/"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_Root(t *testing.T) {
	engine := newTestEngine()
	r := NewRouter(&engine.RouterGroup)
	r.GET("", ok)

	assert.Equal(t, []string{"GET /"}, routePaths(engine))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_GroupRoot(t *testing.T) {
	engine := newTestEngine()
	r := NewRouter(&engine.RouterGroup).Group("/api/")
	r.POST("/", ok)

	assert.Equal(t, []string{"POST /api", "POST /api/"}, routePaths(engine))
}

func TestRouter_Methods(t *testing.T) {
	engine := newTestEngine()
	r := NewRouter(&engine.RouterGroup)
	r.PATCH("x", ok)
	r.PUT("x", ok)
	r.DELETE("x", ok)

	assert.Equal(t, []string{
		"DELETE /x", "DELETE /x/",
		"PATCH /x", "PATCH /x/",
		"PUT /x", "PUT /x/",
	}, routePaths(engine))
}
