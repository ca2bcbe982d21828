package router

import "github.com/labstack/echo/v4"

// RegisterSlots registers slot and marketplace endpoints. Listings go through
// the response cache; writes never do.
func RegisterSlots(e *echo.Echo, d Deps) {
	g := e.Group("/v1", authed(d)...)
	g.POST("/slots", d.Slots.Create)
	g.GET("/slots/mine", d.Slots.Mine, d.Cache)
	g.GET("/slots/:id", d.Slots.Get)
	g.PATCH("/slots/:id/status", d.Slots.SetStatus)
	g.DELETE("/slots/:id", d.Slots.Delete)
	g.GET("/marketplace", d.Slots.Marketplace, d.Cache)
}
