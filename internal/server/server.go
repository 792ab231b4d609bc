package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/hub"
	"github.com/nfrund/relay/internal/middleware"
)

// Dependencies are the services the HTTP surface is assembled from.
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Login    handlers.LoginService
	Recorder handlers.LoginRecorder
	Sessions auth.SessionVerifier
	History  handlers.HistoryReader
	Hub      *hub.Hub
	Presence handlers.PresenceLister
	Registry *prometheus.Registry
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	hub      *hub.Hub
	logger   *slog.Logger
	deps     Dependencies
	registry *prometheus.Registry
}

// New creates a new Server instance with its middleware stack installed.
// Routes are added by RegisterRoutes.
func New(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	setupErrorHandling(e)

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestLog())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: deps.Config.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "relay",
		Subsystem:  "http",
		Registerer: registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	return &Server{
		E:        e,
		Cfg:      deps.Config,
		hub:      deps.Hub,
		logger:   logger.With("component", "server"),
		deps:     deps,
		registry: registry,
	}
}

// setupErrorHandling installs an error handler that logs unhandled errors with
// a stack trace and hides their details from the client.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := he.Message
			if s, ok := msg.(string); ok {
				msg = echo.Map{"code": codeForStatus(he.Code), "message": s}
			}
			_ = c.JSON(he.Code, msg)
			return
		}

		middleware.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
			"error", err,
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"stack_trace", string(debug.Stack()),
		)
		_ = c.JSON(http.StatusInternalServerError, echo.Map{
			"code":    "internal_error",
			"message": http.StatusText(http.StatusInternalServerError),
		})
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadRequest:
		return "bad_request"
	default:
		return "http_error"
	}
}
