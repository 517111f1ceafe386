package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

const (
	corsMethods = "GET, OPTIONS"
	corsHeaders = "Origin, Content-Type, Accept"
)

// ReadOnlyCORS lets browser dashboards on the listed origins read the API and
// open the stream. "*" admits any origin. Requests from other origins are
// served without CORS headers, which the browser then blocks.
func ReadOnlyCORS(origins []string) echo.MiddlewareFunc {
	anyOrigin := slices.Contains(origins, "*")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || !(anyOrigin || slices.Contains(origins, origin)) {
				return next(c)
			}
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if c.Request().Method != http.MethodOptions {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			return c.NoContent(http.StatusNoContent)
		}
	}
}
