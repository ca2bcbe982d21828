package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/middleware"
)

const requestTimeout = 5 * time.Second

// callerID returns the authenticated user. Routes behind JWTAuth always
// have one; a missing id means the route was wired without it.
func callerID(c echo.Context) (string, error) {
	if id := middleware.UserID(c); id != "" {
		return id, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
