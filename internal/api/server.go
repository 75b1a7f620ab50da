package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/homegate/internal/audit"
	"github.com/nerrad567/homegate/internal/camera"
	"github.com/nerrad567/homegate/internal/crono"
	"github.com/nerrad567/homegate/internal/device"
	"github.com/nerrad567/homegate/internal/infrastructure/config"
	"github.com/nerrad567/homegate/internal/infrastructure/database"
	"github.com/nerrad567/homegate/internal/infrastructure/logging"
	"github.com/nerrad567/homegate/internal/schedule"
	"github.com/nerrad567/homegate/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultCommandTimeout bounds a toggle or query when Deps leaves it unset.
const defaultCommandTimeout = 3 * time.Second

// Commander is the slice of the correlation engine the handlers use.
// *correlation.Engine satisfies it.
type Commander interface {
	IsConnected() bool
	PublishErr(topic, payload string) error
	SendSwitch(d device.Device, on bool, source string) error
	AwaitStateTransition(ctx context.Context, deviceID string, expected bool, timeout time.Duration) error
	RequestReply(ctx context.Context, commandTopic, responseTopic, payload string, timeout time.Duration) (map[string]any, error)
	PendingCount() int
}

// OverrideRecorder is told about manual commands so the schedule evaluator
// leaves the device alone for a while. *schedule.Evaluator satisfies it.
type OverrideRecorder interface {
	SetManualOverride(deviceID string)
}

// HealthChecker is any component with a liveness probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AuditTrail records operator actions. *audit.Trail satisfies it.
type AuditTrail interface {
	Record(e audit.Entry)
	List(ctx context.Context, f audit.Filter) (*audit.Page, error)
}

// Metrics records HTTP and push-channel activity. *metrics.Recorder
// satisfies it.
type Metrics interface {
	HTTPRequest(method string, status int)
	SetPushClients(n int)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Session       config.SessionConfig
	Camera        config.CameraConfig
	Metrics       config.MetricsConfig
	Security      config.SecurityConfig
	Logger        *logging.Logger
	Registry      *device.Registry
	Commands      Commander
	Overrides     OverrideRecorder
	Schedules     schedule.Repository
	Cronos        *crono.Manager
	Sessions      *session.Manager
	CameraRelay   *camera.Relay
	Audit         AuditTrail // Optional operator audit trail
	Hub           *Hub // If set, the server uses this hub instead of creating its own
	DB            *database.DB
	HealthChecks  map[string]HealthChecker
	Recorder      Metrics
	MetricsHandle http.Handler // Prometheus exposition, mounted at Metrics.Path
	CmdTimeout    time.Duration
	Version       string
}

// Server is the HTTP API server for the gateway.
//
// It manages the HTTP listener, routes, middleware, and the push hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	sessionCfg    config.SessionConfig
	cameraCfg     config.CameraConfig
	metricsCfg    config.MetricsConfig
	secCfg        config.SecurityConfig
	logger        *logging.Logger
	registry      *device.Registry
	commands      Commander
	overrides     OverrideRecorder
	schedules     schedule.Repository
	cronos        *crono.Manager
	sessions      *session.Manager
	camera        *camera.Relay
	audit         AuditTrail
	db            *database.DB
	checks        map[string]HealthChecker
	recorder      Metrics
	metricsHandle http.Handler
	cmdTimeout    time.Duration
	version       string
	startTime     time.Time
	server        *http.Server
	hub           *Hub
	cancel        context.CancelFunc // cancels background goroutines on Close()
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
	if deps.Commands == nil {
		return nil, fmt.Errorf("command engine is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		sessionCfg:    deps.Session,
		cameraCfg:     deps.Camera,
		metricsCfg:    deps.Metrics,
		secCfg:        deps.Security,
		logger:        deps.Logger,
		registry:      deps.Registry,
		commands:      deps.Commands,
		overrides:     deps.Overrides,
		schedules:     deps.Schedules,
		cronos:        deps.Cronos,
		sessions:      deps.Sessions,
		camera:        deps.CameraRelay,
		audit:         deps.Audit,
		db:            deps.DB,
		checks:        deps.HealthChecks,
		recorder:      deps.Recorder,
		metricsHandle: deps.MetricsHandle,
		cmdTimeout:    deps.CmdTimeout,
		version:       deps.Version,
		startTime:     time.Now(),
		hub:           deps.Hub,
	}
	if s.cmdTimeout <= 0 {
		s.cmdTimeout = defaultCommandTimeout
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if s.recorder != nil {
		s.hub.SetMetrics(s.recorder)
	}

	return s, nil
}

// Hub returns the push hub, for components that broadcast through it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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

	if s.cancel != nil {
		s.cancel()
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
