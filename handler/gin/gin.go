// Package ginhandler mounts a handler.Handler on a gin router.
package ginhandler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/mightycache/handler"
)

type paramsKey struct{}

// Register routes HEAD, GET, PUT, POST and DELETE on path to h.
// Path parameters are available to h's KeyFunc through Param.
func Register(r gin.IRouter, path string, h *handler.Handler) {
	r.HEAD(path, wrap(h.Head))
	r.GET(path, wrap(h.Restore))
	r.PUT(path, wrap(h.Save))
	r.POST(path, wrap(h.Save))
	r.DELETE(path, wrap(h.Remove))
}

// Param returns a KeyFunc reading the gin path parameter name. Wildcard
// parameters (*name) lose their leading slash.
func Param(name string) handler.KeyFunc {
	return func(r *http.Request) string {
		ps, _ := r.Context().Value(paramsKey{}).(gin.Params)
		v := ps.ByName(name)
		if len(v) > 0 && v[0] == '/' {
			v = v[1:]
		}
		return v
	}
}

func wrap(fn http.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), paramsKey{}, c.Params)
		fn(c.Writer, c.Request.WithContext(ctx))
	}
}
