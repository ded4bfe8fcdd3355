// Package api serves the operational HTTP surface: health, status,
// operator commands, Prometheus metrics and a websocket event feed.
// This is command dispatch and introspection, not a trading UI.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/engine"
	"forex-trading-bot/internal/events"
)

// Status is the snapshot served on /status
type Status struct {
	Connected     bool              `json:"connected"`
	Paused        bool              `json:"paused"`
	Symbols       []string          `json:"symbols"`
	OpenPositions []broker.Position `json:"open_positions"`
	DailyPnL      float64           `json:"daily_pnl"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// StatusProvider supplies the status snapshot; the main wiring
// implements it over the supervisor and risk manager
type StatusProvider interface {
	Status() Status
}

// Config holds the HTTP server settings
type Config struct {
	Addr    string
	Enabled bool
}

// Server is the gin HTTP server
type Server struct {
	cfg    Config
	sup    *engine.Supervisor
	status StatusProvider
	hub    *Hub
	log    zerolog.Logger
	http   *http.Server
}

// NewServer builds the server and wires the websocket hub to the bus
func NewServer(cfg Config, sup *engine.Supervisor, status StatusProvider, bus *events.Bus, log zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		sup:    sup,
		status: status,
		hub:    NewHub(log),
		log:    log.With().Str("component", "api").Logger(),
	}
	s.hub.Attach(bus)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", s.hub.HandleWS)

	commands := router.Group("/api/commands")
	{
		commands.POST("/pause", s.command(engine.CommandPause))
		commands.POST("/resume", s.command(engine.CommandResume))
		commands.POST("/close-all", s.command(engine.CommandCloseAll))
		commands.POST("/stop", s.command(engine.CommandStop))
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown; intended to run on its own goroutine
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("api server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) command(cmd engine.Command) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.sup.Send(cmd)
		s.log.Info().Str("command", string(cmd)).Str("remote", c.ClientIP()).Msg("command accepted")
		c.JSON(http.StatusAccepted, gin.H{"command": string(cmd), "accepted": true})
	}
}
