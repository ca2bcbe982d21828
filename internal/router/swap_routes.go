package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/middleware"
)

// RegisterSwaps registers swap request endpoints and the change stream.
func RegisterSwaps(e *echo.Echo, d Deps) {
	g := e.Group("/v1", authed(d)...)
	g.POST("/swaps", d.Swaps.Propose)
	g.GET("/swaps/incoming", d.Swaps.Incoming, d.Cache)
	g.GET("/swaps/outgoing", d.Swaps.Outgoing, d.Cache)
	g.GET("/swaps/:id", d.Swaps.Get)
	g.POST("/swaps/:id/accept", d.Swaps.Accept)
	g.POST("/swaps/:id/reject", d.Swaps.Reject)
	g.DELETE("/swaps/:id", d.Swaps.Delete)

	g.GET("/events", d.Events.Stream)
}

func authed(d Deps) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{middleware.JWTAuth(d.JWTSecret), d.RateLimit}
}
