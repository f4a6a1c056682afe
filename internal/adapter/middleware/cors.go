package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORS allows any origin. The allow-origin header is set on every response,
// with or without an Origin header; preflights are answered directly.
func CORS(allowHeaders ...string) echo.MiddlewareFunc {
	headers := strings.Join(append([]string{echo.HeaderContentType, HeaderIdempotencyKey}, allowHeaders...), ", ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")

			if req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
