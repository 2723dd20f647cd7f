package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/voicecall/internal/config"
	"github.com/chadiek/voicecall/internal/devpipeline"
	"github.com/chadiek/voicecall/internal/metrics"
	"github.com/chadiek/voicecall/internal/middleware"
	"github.com/chadiek/voicecall/internal/tools"
)

const toolHookPrefix = "/hooks/tools/"

// Server bundles HTTP router and dependencies.
type Server struct {
	Router   http.Handler
	Pipeline *devpipeline.Pipeline
}

// New constructs the development server: a loopback voice pipeline, a
// signed tool webhook sink, health and metrics.
func New(cfg config.Config, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(middleware.ToolSignature(toolHookPrefix, func() string { return cfg.ToolWebhookSecret }))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	p := devpipeline.New(cfg.PipelineAuth, m, logger.With("component", "pipeline"))
	e.GET("/pipeline", echo.WrapHandler(p))

	e.POST(toolHookPrefix+":name", toolHook(logger))

	return &Server{Router: e, Pipeline: p}
}

// toolHook accepts an already verified invocation and logs it.
func toolHook(logger *slog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, ok := c.Get(middleware.ToolBodyKey).([]byte)
		if !ok {
			return c.String(http.StatusInternalServerError, "Failed to get verified body")
		}
		var inv tools.Invocation
		if err := json.Unmarshal(body, &inv); err != nil {
			return c.String(http.StatusBadRequest, "invalid invocation")
		}
		name := c.Param("name")
		if inv.Tool != name {
			return c.String(http.StatusBadRequest, "tool name mismatch")
		}
		logger.Info("tool invocation received", "tool", name, "fields", len(inv.Data))
		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted", "tool": name})
	}
}
