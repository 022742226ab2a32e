package entries

import (
	"github.com/labstack/echo/v4"
	"github.com/watchlog/watchlog/pkg/viewcache"
)

type RouteOptions struct {
	Service       *Service
	Submitter     *Submitter
	Cache         viewcache.Cache
	ImageMaxBytes int64
}

// RegisterRoutesWithGroup registers entry routes on a group that already
// requires authentication.
func RegisterRoutesWithGroup(g *echo.Group, opts RouteOptions) {
	h := &handler{
		entryService:  opts.Service,
		submitter:     opts.Submitter,
		cache:         opts.Cache,
		imageMaxBytes: opts.ImageMaxBytes,
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/options", h.options)
	g.GET("/:id", h.retrieve)
	g.POST("/:id/links", h.links)
}
