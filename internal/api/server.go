// Package api provides the HTTP REST API for Greenhouse Core.
//
// It exposes module registration, ownership, greenhouse grouping, sensor
// history, and threshold decisions to both human clients (mobile/web apps
// authenticated with JWT) and the modules themselves (authenticated with
// identity headers).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/verdantlogic/greenhouse-core/internal/audit"
	"github.com/verdantlogic/greenhouse-core/internal/auth"
	"github.com/verdantlogic/greenhouse-core/internal/greenhouse"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/mqtt"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultHistoryWindow is used when no history window is configured.
const defaultHistoryWindow = 24 * time.Hour

// TelemetryMirror forwards accepted sensor readings to a time-series store.
// Writes are fire-and-forget; the SQLite history remains the system of record.
type TelemetryMirror interface {
	WriteReading(moduleID, kind string, value float64, at time.Time)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Security    config.SecurityConfig
	History     config.HistoryConfig
	Logger      *logging.Logger
	Modules     module.Repository
	Sensors     module.HistoryRepository
	Greenhouses greenhouse.Repository
	Users       auth.UserRepository
	Audit       audit.Repository // optional: activity trail for account and ownership actions
	MQTT        *mqtt.Client     // optional: telemetry fan-out to the broker
	Mirror      TelemetryMirror  // optional: time-series mirror of readings
	Version     string
}

// Server is the HTTP API server for Greenhouse Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start(). It holds no request state
// between calls; every operation reads and writes through the repositories.
type Server struct {
	cfg         config.APIConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	modules     module.Repository
	sensors     module.HistoryRepository
	greenhouses greenhouse.Repository
	users       auth.UserRepository
	audit       audit.Repository
	mqtt        *mqtt.Client
	mirror      TelemetryMirror
	window      time.Duration
	version     string
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Modules == nil {
		return nil, fmt.Errorf("module repository is required")
	}
	if deps.Sensors == nil {
		return nil, fmt.Errorf("sensor history repository is required")
	}
	if deps.Greenhouses == nil {
		return nil, fmt.Errorf("greenhouse repository is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	// MQTT and the mirror are optional; readings are still persisted without them.

	window := time.Duration(deps.History.WindowHours) * time.Hour
	if window <= 0 {
		window = defaultHistoryWindow
	}

	return &Server{
		cfg:         deps.Config,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		modules:     deps.Modules,
		sensors:     deps.Sensors,
		greenhouses: deps.Greenhouses,
		users:       deps.Users,
		audit:       deps.Audit,
		mqtt:        deps.MQTT,
		mirror:      deps.Mirror,
		window:      window,
		version:     deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
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

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
