// Package api exposes the record store, cloner and partial-update applier
// over HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Router registers every route with and without a trailing slash, so both
// forms match without a redirect. The engine must have RedirectTrailingSlash
// disabled; NewEngine does that.
type Router struct {
	group *gin.RouterGroup
}

// NewRouter wraps group.
func NewRouter(group *gin.RouterGroup) *Router {
	return &Router{group: group}
}

// Group returns a router for a sub-path.
func (r *Router) Group(path string, handlers ...gin.HandlerFunc) *Router {
	return &Router{group: r.group.Group(strings.TrimSuffix(path, "/"), handlers...)}
}

func (r *Router) GET(path string, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodGet, path, handlers...)
}

func (r *Router) POST(path string, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodPost, path, handlers...)
}

func (r *Router) PATCH(path string, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodPatch, path, handlers...)
}

func (r *Router) PUT(path string, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodPut, path, handlers...)
}

func (r *Router) DELETE(path string, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodDelete, path, handlers...)
}

// Handle registers handlers for method on each form of path.
func (r *Router) Handle(method, path string, handlers ...gin.HandlerFunc) {
	for _, p := range r.patterns(path) {
		r.group.Handle(method, p, handlers...)
	}
}

// patterns returns the relative paths registered for path. The root of the
// top-level group is only ever "/": an empty pattern would not match and "//"
// would never be requested.
func (r *Router) patterns(path string) []string {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		if r.group.BasePath() == "/" {
			return []string{"/"}
		}
		return []string{"", "/"}
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return []string{trimmed, trimmed + "/"}
}
