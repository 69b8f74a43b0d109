package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/audit"
	"github.com/nerrad567/gray-logic-pixels/internal/device"
	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceRegistry is the part of device.Registry the API uses.
type DeviceRegistry interface {
	List() []*device.Device
	Get(id string) (*device.Device, bool)
	CreateAndPersist(ctx context.Context, id, typ string, raw map[string]any) (*device.Device, error)
	Remove(ctx context.Context, id string) error
}

// EventSource is the part of events.Bus the frame stream listens on.
type EventSource interface {
	Subscribe(t events.Type, handler events.Handler) (func(), error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry DeviceRegistry

	// Events feeds the WebSocket stream. Without it the stream stays silent.
	Events EventSource

	// Audit serves /audit. Without it those routes answer 503.
	Audit audit.Repository

	// Types lists the registered device types. Defaults to device.DefaultTypes.
	Types *device.TypeRegistry

	Version string
}

// Server is the HTTP API server for Gray Logic Pixels.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry DeviceRegistry
	events   EventSource
	audit    audit.Repository
	types    *device.TypeRegistry
	version  string
	hub      *Hub

	mu           sync.Mutex
	server       *http.Server
	listener     net.Listener
	cancel       context.CancelFunc
	unsubscribes []func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		events:   deps.Events,
		audit:    deps.Audit,
		types:    deps.Types,
		version:  deps.Version,
	}
	if s.types == nil {
		s.types = device.DefaultTypes
	}
	s.hub = NewHub(deps.Config.WebSocket, deps.Logger)
	return s, nil
}

// Start binds the listener, subscribes the WebSocket hub to device updates
// and serves HTTP in a background goroutine. The server can be stopped with
// Close().
//
// Returns an error if the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(srvCtx)

	if err := s.subscribeEvents(); err != nil {
		s.logger.Warn("frame stream disabled", "error", err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", serveErr)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// subscribeEvents forwards device updates and shutdown notices to the hub.
func (s *Server) subscribeEvents() error {
	if s.events == nil {
		return nil
	}

	unsubFrames, err := s.events.Subscribe(events.TypeDeviceUpdate, s.hub.handleDeviceUpdate)
	if err != nil {
		return fmt.Errorf("subscribing to device updates: %w", err)
	}
	unsubShutdown, err := s.events.Subscribe(events.TypeShutdown, s.hub.handleShutdown)
	if err != nil {
		unsubFrames()
		return fmt.Errorf("subscribing to shutdown events: %w", err)
	}

	s.unsubscribes = append(s.unsubscribes, unsubFrames, unsubShutdown)
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close gracefully shuts down the API server.
//
// It stops the frame stream, lets connected WebSocket clients drain what is
// already queued, then waits up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	for _, unsub := range s.unsubscribes {
		unsub()
	}
	s.unsubscribes = nil

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
