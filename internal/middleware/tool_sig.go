package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/voicecall/internal/tools"
)

// ToolBodyKey is the context key holding the verified webhook body.
const ToolBodyKey = "toolBody"

// ToolSignature validates tool webhook requests under prefix using the
// HMAC signature header. Other paths pass through untouched.
func ToolSignature(prefix string, getSecret func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, prefix) {
				return next(c)
			}

			secret := getSecret()
			if secret == "" {
				return c.String(http.StatusInternalServerError, "TOOL_WEBHOOK_SECRET not configured")
			}

			bodyBytes, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			c.Request().Body = io.NopCloser(bytes.NewReader(bodyBytes))

			signature := c.Request().Header.Get(tools.SignatureHeader)
			if !tools.Verify(secret, signature, bodyBytes) {
				return c.String(http.StatusUnauthorized, "Invalid tool signature")
			}

			c.Set(ToolBodyKey, bodyBytes)
			return next(c)
		}
	}
}
