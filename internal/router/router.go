package router // package router defines how HTTP routes are registered for the API

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/slotswap/internal/handler"
	"github.com/iliyamo/slotswap/internal/middleware"
)

// Deps carries everything the routes need. A nil RateLimit or Cache turns
// that layer off.
type Deps struct {
	Log       *slog.Logger
	Health    echo.HandlerFunc
	Auth      *handler.AuthHandler
	Slots     *handler.SlotHandler
	Swaps     *handler.SwapHandler
	Events    *handler.EventsHandler
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.RateLimit == nil {
		d.RateLimit = noop
	}
	if d.Cache == nil {
		d.Cache = noop
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Recover())

	e.GET("/healthz", d.Health)
	RegisterAuth(e, d)
	RegisterSlots(e, d)
	RegisterSwaps(e, d)
	return e
}

// RegisterAuth registers /v1/auth and the caller profile.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth", d.RateLimit)
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)

	e.GET("/v1/me", d.Auth.Me, middleware.JWTAuth(d.JWTSecret), d.RateLimit)
}

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }
