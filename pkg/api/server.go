// Package api exposes the HTTP surface: health, the WebSocket session
// channel, and the REST endpoints backing UI buttons. REST actions go
// through the same engine methods the LLM tools use, so both surfaces
// produce identical event streams.
package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/souschef-ai/souschef/pkg/config"
	"github.com/souschef-ai/souschef/pkg/session"
)

// Server hosts the HTTP and WebSocket endpoints.
type Server struct {
	cfg      *config.ServerConfig
	sessions *session.Service

	echo       *echo.Echo
	httpServer *http.Server

	// Host patterns accepted for WebSocket origins, derived from
	// cors_origins. Empty means same-origin only.
	originPatterns []string
}

// NewServer wires routes and middleware over the session registry.
func NewServer(cfg *config.ServerConfig, sessions *session.Service) *Server {
	s := &Server{
		cfg:            cfg,
		sessions:       sessions,
		echo:           echo.New(),
		originPatterns: originHosts(cfg.CORSOrigins),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(corsMiddleware(s.cfg.CORSOrigins))

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.sessionChannelHandler)

	e.GET("/recipes", s.listRecipesHandler)
	e.GET("/sessions", s.listSessionsHandler)

	e.POST("/sessions/:session_id/steps/:step_id/confirm", s.confirmStepHandler)
	e.POST("/sessions/:session_id/steps/:step_id/start-timer", s.startStepTimerHandler)
	e.POST("/sessions/:session_id/timers/:timer_id/cancel", s.cancelTimerHandler)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests. Live WebSocket sessions are torn
// down separately via the session service.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// originHosts reduces configured CORS origins to host patterns for the
// WebSocket accept check.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}
