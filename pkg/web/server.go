// Package web serves the markerservo dashboard: live status, recent servo
// commands, history, metrics and the annotated camera feed.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/teslashibe/markerservo/pkg/history"
	"github.com/teslashibe/markerservo/pkg/hub"
	"github.com/teslashibe/markerservo/pkg/metrics"
	"github.com/teslashibe/markerservo/pkg/pipeline"
	"github.com/teslashibe/markerservo/pkg/telemetry"
)

//go:embed static
var static embed.FS

const (
	DefaultPort = 8080

	// Transitions kept in memory for /api/transitions
	recentTransitions = 100

	// Status snapshots are pushed at most this often unless something changed
	statusInterval = 250 * time.Millisecond

	shutdownTimeout = 5 * time.Second
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("web: server closed")

// Config holds dashboard settings.
type Config struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// Addr returns the listen address.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// HistorySource provides stored command records.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.CommandRecord, error)
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables /api/history.
func WithHistory(h HistorySource) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics enables /metrics for the given registry.
func WithMetrics(reg *prom.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is the web dashboard server
type Server struct {
	app      *fiber.App
	cfg      Config
	logger   *slog.Logger
	history  HistorySource
	registry *prom.Registry

	stateMu      sync.RWMutex
	status       pipeline.Status
	lastPushed   time.Time
	lastCommands uint64
	lastPresent  bool

	lnMu    sync.Mutex
	ln      net.Listener
	stopped bool

	eventsMu sync.RWMutex
	events   []telemetry.Event

	statusHub *hub.Hub
	eventHub  *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates the dashboard. Call Start or Serve to listen.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		events: make([]telemetry.Event, 0, recentTransitions),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.statusHub = hub.New("status", hub.WithReplay(), hub.WithLogger(s.logger))
	s.eventHub = hub.New("events", hub.WithLogger(s.logger))
	s.cameraHub = hub.New("camera", hub.WithLogger(s.logger))

	app := fiber.New(fiber.Config{
		AppName:               "markerservo",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transitions", s.handleTransitions)
	api.Get("/history", s.handleHistory)

	if s.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", serveHub(s.statusHub))
	app.Get("/ws/events", serveHub(s.eventHub))
	app.Get("/ws/camera", serveHub(s.cameraHub))

	s.app = app
	return s
}

func serveHub(h *hub.Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		client := hub.NewClient(h, c)
		if client == nil {
			return
		}
		client.Run()
	})
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until Shutdown. The hubs stop
// when ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.lnMu.Lock()
	if s.stopped {
		s.lnMu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.lnMu.Unlock()

	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	s.logger.Info("web dashboard listening", "url", "http://"+ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine and logs a failure.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		err := s.Start(ctx)
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, ErrServerClosed) {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and closes open connections. A Serve
// call that has not started yet returns ErrServerClosed.
func (s *Server) Shutdown() error {
	s.lnMu.Lock()
	s.stopped = true
	ln := s.ln
	s.lnMu.Unlock()

	err := s.app.ShutdownWithTimeout(shutdownTimeout)
	// The listener may not be registered with fiber yet
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	}
	return err
}

// UpdateStatus stores the latest loop snapshot and pushes it to status
// clients. It implements pipeline.StatusUpdater.
func (s *Server) UpdateStatus(st pipeline.Status) {
	s.stateMu.Lock()
	s.status = st
	present := len(st.MarkerIDs) > 0
	push := st.Commands != s.lastCommands ||
		present != s.lastPresent ||
		st.UpdatedAt.Sub(s.lastPushed) >= statusInterval
	if push {
		s.lastPushed = st.UpdatedAt
		s.lastCommands = st.Commands
		s.lastPresent = present
	}
	s.stateMu.Unlock()

	if push {
		if err := s.statusHub.BroadcastJSON(st); err != nil {
			s.logger.Warn("status broadcast failed", "error", err)
		}
	}
}

// Record keeps the transition for /api/transitions and pushes it to event
// clients. It implements pipeline.Sink.
func (s *Server) Record(_ context.Context, t pipeline.Transition) error {
	ev := telemetry.NewEvent(t)

	s.eventsMu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > recentTransitions {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	return s.eventHub.BroadcastJSON(ev)
}

// SendCameraFrame sends a JPEG frame to camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// Status returns the last snapshot received.
func (s *Server) Status() pipeline.Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

var (
	_ pipeline.Sink          = (*Server)(nil)
	_ pipeline.StatusUpdater = (*Server)(nil)
)
