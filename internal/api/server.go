package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v2"

	"grimm.is/speedctl/internal/api/openapi"
	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/clock"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/health"
	"grimm.is/speedctl/internal/i18n"
	"grimm.is/speedctl/internal/logging"
	"grimm.is/speedctl/internal/metrics"
	"grimm.is/speedctl/internal/operation"
	"grimm.is/speedctl/internal/ratelimit"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // Must outlast the longest action timeout
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerConfig returns the HTTP server defaults. The write timeout
// covers package installs, which may run for several minutes.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      11 * time.Minute,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher

	// Optional
	Client   ctlplane.ControlPlaneClient // health checks
	Audit    *audit.Store
	Metrics  *metrics.Registry
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Health   *health.Checker
	Limiter  *ratelimit.Limiter
	Logger   *logging.Logger

	// AuditLog logs invocations when Audit is nil.
	AuditLog bool
}

// Server handles API requests.
type Server struct {
	config     *config.Config
	dispatcher *dispatch.Dispatcher
	registry   *operation.Registry
	client     ctlplane.ControlPlaneClient
	audit      *audit.Store
	auditLog   bool
	metrics    *metrics.Registry
	gatherer   prometheus.Gatherer
	health     *health.Checker
	limiter    *ratelimit.Limiter
	rateWindow time.Duration
	logger     *logging.Logger
	startTime  time.Time

	mux *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("api: dispatcher is required")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else if cfg.API == nil {
		cfg.ApplyDefaults()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:     cfg,
		dispatcher: opts.Dispatcher,
		registry:   opts.Dispatcher.Registry(),
		client:     opts.Client,
		audit:      opts.Audit,
		auditLog:   opts.AuditLog,
		metrics:    opts.Metrics,
		gatherer:   gatherer,
		health:     opts.Health,
		limiter:    opts.Limiter,
		rateWindow: cfg.API.RateLimitWindow(),
		logger:     logger,
		startTime:  clock.Now(),
	}

	if s.limiter == nil && cfg.API.RateLimitRequests > 0 {
		s.limiter = ratelimit.NewLimiter(cfg.API.RateLimitRequests, s.rateWindow, nil)
	}

	if s.health == nil {
		s.health = health.NewChecker(brand.Version, 5*time.Second)
		if s.client != nil {
			s.health.Register("control-plane", health.StatusClientCheck(s.client))
		}
		if s.audit != nil {
			s.health.Register("audit", health.StoreCheck(s.audit))
		}
	}

	s.initRoutes()
	return s, nil
}

// initRoutes initializes the HTTP router
func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	// One route pair per registered operation
	for _, op := range s.registry.All() {
		h := s.rateLimit(op, s.operationHandler(op))
		path := openapi.ServicePrefix + op.Endpoint
		mux.Handle("GET "+path, h)
		mux.Handle("POST "+path, h)

		if op.Sync == operation.SyncParameterized && op.Arity() == 1 {
			seg := path + "/{" + op.Params[0].Name + "}"
			mux.Handle("GET "+seg, h)
			mux.Handle("POST "+seg, h)
		}
	}
	// Anything else under the service prefix is an unknown operation
	mux.HandleFunc(openapi.ServicePrefix+"{endpoint...}", s.handleUnknownEndpoint)

	mux.HandleFunc("GET /api/speedtest/operations", s.handleOperations)
	mux.HandleFunc("GET /api/openapi.json", s.handleOpenAPIJSON)
	mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPIYAML)
	mux.HandleFunc("GET /api/audit", s.handleAuditQuery)

	mux.Handle("GET /health", s.health.Handler())
	mux.Handle("GET /healthz", health.LivenessHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	// Chain: AccessLog -> RequestID -> i18n -> MaxBody -> Mux
	// Rate limiting is applied per operation route.
	return s.accessLogger(requestIDMiddleware(i18n.Middleware(maxBodyMiddleware(s.config.API.MaxBodyBytes)(s.mux))))
}

func (s *Server) newHTTPServer() *http.Server {
	cfg := DefaultServerConfig()
	return &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// Start listens on addr and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(listener)
}

// ServeListener serves on an existing listener.
func (s *Server) ServeListener(listener net.Listener) error {
	srv := s.newHTTPServer()

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("API server listening", "addr", listener.Addr().String(), "operations", s.registry.Len())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, openapi.Generate(s.registry, brand.Version))
}

func (s *Server) handleOpenAPIYAML(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(openapi.Generate(s.registry, brand.Version))
	if err != nil {
		WriteErrorCtx(w, r, http.StatusInternalServerError, i18n.MsgInternalError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(out)
}
