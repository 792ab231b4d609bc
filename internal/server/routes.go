package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/websocket"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	authHandler := handlers.NewAuthHandler(s.deps.Login, s.deps.Recorder)
	messageHandler := handlers.NewMessageHandler(s.deps.History)
	connectionHandler := handlers.NewConnectionHandler(s.hub)
	wsHandler := websocket.NewHandler(s.hub, websocket.Config{
		OriginPatterns: s.Cfg.CORSAllowedOrigins,
		MessageRate:    s.Cfg.WSMessageRate,
		MessageBurst:   s.Cfg.WSMessageBurst,
		PingInterval:   s.Cfg.WSPingInterval,
		ReadLimit:      int64(s.Cfg.MaxMessageLength) * 8,
	}, s.logger)

	requireAuth := middleware.Auth(s.deps.Sessions)
	rateLimiter := middleware.RateLimiter(s.Cfg.LoginRatePerMinute)

	s.E.POST("/auth/google", authHandler.Login, rateLimiter)
	s.E.GET("/messages", messageHandler.History, requireAuth)
	s.E.GET("/connections", connectionHandler.List, requireAuth)
	if s.deps.Presence != nil {
		s.E.GET("/presence", handlers.NewPresenceHandler(s.deps.Presence).GetPresence, requireAuth)
	}
	s.E.GET("/ws", wsHandler.Serve)

	s.E.GET("/health", handlers.Health)
	s.E.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))
}
