package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thruflo/voiceloops/internal/auth"
	"github.com/thruflo/voiceloops/internal/catalog"
	"github.com/thruflo/voiceloops/internal/config"
	"github.com/thruflo/voiceloops/internal/engine"
	"github.com/thruflo/voiceloops/internal/logging"
	"github.com/thruflo/voiceloops/internal/metrics"
	"github.com/thruflo/voiceloops/internal/pool"
	"github.com/thruflo/voiceloops/internal/status"
	"github.com/thruflo/voiceloops/internal/worker"
	"github.com/thruflo/voiceloops/web"
)

// Transport carries control calls and status polls to workers.
type Transport interface {
	worker.Sender
	worker.StatusFetcher
}

// Options holds server construction parameters.
type Options struct {
	// ConfigPath is where save_config persists the configuration.
	ConfigPath string

	// Config is the loaded configuration. Required.
	Config *config.Config

	// Addr overrides the listen address derived from Config.
	Addr string

	// ConfigOnly starts without an engine; see the package doc.
	ConfigOnly bool

	// Transport defaults to a worker.Client using Config's timeouts.
	Transport Transport

	// Registry receives the server's metrics and backs /metrics. A fresh
	// registry is created if nil.
	Registry *prometheus.Registry

	Logger *logging.Logger

	// Assets defaults to the embedded pages.
	Assets fs.FS
}

// runtime is the engine built from one configuration.
type runtime struct {
	engine *engine.Engine
	status *status.Aggregator
}

// Server is the console HTTP server.
type Server struct {
	configPath string
	addr       string
	transport  Transport
	registry   *prometheus.Registry
	metrics    metrics.Recorder
	logger     *logging.Logger
	assets     fs.FS
	router     *mux.Router
	guard      *auth.Guard

	// mu guards cfg and rt. rt is nil in config-only mode until the first
	// save.
	mu  sync.RWMutex
	cfg config.Config
	rt  *runtime

	// Lifecycle
	lifeMu   sync.Mutex
	server   *http.Server
	listener net.Listener
	started  bool
}

// New creates a Server. Unless ConfigOnly is set the engine is built
// immediately from the configured role's catalog.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}

	s := &Server{
		configPath: opts.ConfigPath,
		addr:       opts.Addr,
		transport:  opts.Transport,
		registry:   opts.Registry,
		logger:     opts.Logger,
		assets:     opts.Assets,
		cfg:        *opts.Config,
	}
	if s.configPath == "" {
		s.configPath = config.DefaultConfigFile
	}
	if s.addr == "" {
		s.addr = s.cfg.ListenAddr()
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	s.logger = s.logger.Named("server")
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.metrics = metrics.NewPrometheus(s.registry, "")
	if s.transport == nil {
		s.transport = worker.NewClient(
			worker.WithCallTimeout(s.cfg.Timeouts.Command),
			worker.WithStatusTimeout(s.cfg.Timeouts.Status),
			worker.WithLogger(s.logger),
			worker.WithMetrics(s.metrics),
		)
	}
	if s.assets == nil {
		s.assets = web.Embedded()
	}

	if s.cfg.PasswordHash != "" {
		guard, err := auth.NewGuard(s.cfg.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("invalid password hash: %w", err)
		}
		s.guard = guard
	}

	if !opts.ConfigOnly {
		s.rt = s.newRuntime(&s.cfg)
	}
	s.router = s.routes()
	return s, nil
}

// LoadCatalog reads the catalog for cfg's role. A missing or malformed file
// is logged and yields an empty catalog so the console still starts.
func LoadCatalog(cfg *config.Config, logger *logging.Logger) *catalog.Catalog {
	cat, err := catalog.Load(cfg.LoopsDir, cfg.Role)
	if err != nil {
		logger.Error("loop catalog unavailable", "role", cfg.Role, "error", err)
		return catalog.New(cfg.Role, nil)
	}
	logger.Info("loop catalog loaded", "role", cfg.Role, "loops", cat.Len())
	return cat
}

func (s *Server) newRuntime(cfg *config.Config) *runtime {
	specs := make([]pool.Spec, len(cfg.Workers))
	for i, w := range cfg.Workers {
		specs[i] = pool.Spec{Name: w.Name, Endpoint: w.Endpoint}
	}

	eng := engine.New(
		pool.New(specs),
		LoadCatalog(cfg, s.logger),
		s.transport,
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
	)
	return &runtime{
		engine: eng,
		status: status.NewAggregator(eng, s.transport, status.WithLogger(s.logger)),
	}
}

// Handler returns the server's router, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine returns the running engine, or nil in config-only mode.
func (s *Server) Engine() *engine.Engine {
	if rt := s.runtime(); rt != nil {
		return rt.engine
	}
	return nil
}

// Config returns a copy of the current configuration.
func (s *Server) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Workers = append([]config.WorkerConfig(nil), s.cfg.Workers...)
	return cfg
}

func (s *Server) runtime() *runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rt
}

// Start starts the HTTP server.
// The server runs until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.started {
		s.lifeMu.Unlock()
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.lifeMu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.started = true
	s.lifeMu.Unlock()

	s.logger.Info("listening", "addr", listener.Addr().String(), "config_only", s.runtime() == nil)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Stop(); err != nil {
				s.logger.Warn("shutdown failed", "error", err)
			}
		case <-stopped:
		}
	}()

	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.started || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.started = false
	return nil
}

// ListenAddr returns the actual address the server is listening on.
// Useful when port 0 is used to get an available port.
// Returns empty string if not started.
func (s *Server) ListenAddr() string {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// routes configures the HTTP routes.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	if s.guard != nil {
		r.Use(s.requireAuth)
	}

	// Routes stay flat on the root router so a wrong method yields 405.
	r.HandleFunc("/api/status", s.withEngine(s.handleStatus)).Methods(http.MethodGet)
	r.HandleFunc("/api/command", s.withEngine(s.handleCommand)).Methods(http.MethodPost)
	r.HandleFunc("/api/set_volume", s.withEngine(s.handleSetVolume)).Methods(http.MethodPost)
	r.HandleFunc("/api/loops", s.withEngine(s.handleLoops)).Methods(http.MethodGet)
	r.HandleFunc("/api/roles", s.handleRoles).Methods(http.MethodGet)
	r.HandleFunc("/api/get_config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/save_config", s.handleSaveConfig).Methods(http.MethodPost)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfigPage).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.FS(s.assets))),
	).Methods(http.MethodGet)

	return r
}

// withEngine rejects requests that need the engine while in config-only
// mode.
func (s *Server) withEngine(handler func(http.ResponseWriter, *http.Request, *runtime)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt := s.runtime()
		if rt == nil {
			http.Error(w, "not configured", http.StatusServiceUnavailable)
			return
		}
		handler(w, r, rt)
	}
}

// requireAuth applies the password guard to everything but /health.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	guarded := s.guard.Wrap(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start),
		)
	})
}
