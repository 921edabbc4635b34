// Package server assembles the HTTP service from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/GriffinCanCode/nbapi/internal/api/http"
	"github.com/GriffinCanCode/nbapi/internal/api/middleware"
	"github.com/GriffinCanCode/nbapi/internal/domain/history"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan/codec"
	"github.com/GriffinCanCode/nbapi/internal/domain/registry"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/config"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
	"github.com/GriffinCanCode/nbapi/internal/kernel/govm"
	"github.com/GriffinCanCode/nbapi/internal/kernel/jsvm"
	"github.com/GriffinCanCode/nbapi/internal/kernel/jupyter"
	"github.com/GriffinCanCode/nbapi/internal/providers/document"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	fetcher  *document.Fetcher
	selector *kernel.Selector
	registry *registry.Manager
	history  *history.Store
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config
	services atomic.Int64
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing nbapi server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("kernel_backend", cfg.Kernel.Backend),
		zap.String("registry_dir", cfg.Registry.Dir),
	)

	// Metrics first, the fetcher breaker reports into them
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("nbapi", logger.Component("tracing"))

	fetcher := document.New(cfg.Fetch, logger.Component("fetch"),
		document.WithBreakerListener(func(name string, _, to resilience.State) {
			metrics.RecordBreakerTransition(name, to.String())
		}),
	)

	selector, err := NewKernelSelector(cfg.Kernel, logger)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	format, err := codec.ParseFormat(cfg.Registry.Format)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	reg, err := registry.NewManager(cfg.Registry.Dir, format, logger.Component("registry"))
	if err != nil {
		tracer.Close()
		return nil, err
	}

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
		logger.Info("Run history enabled", zap.String("path", cfg.History.Path))
	}

	executor := plan.NewExecutor(fetcher, selector,
		plan.WithLogger(logger.Component("executor")),
		plan.WithStageTimeout(cfg.Kernel.StageTimeout),
		plan.WithObserver(plan.Observers{
			plan.NewLogObserver(logger.Component("executor")),
			monitoring.NewObserver(metrics),
		}),
	)

	s := &Server{
		fetcher:  fetcher,
		selector: selector,
		registry: reg,
		history:  store,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	httpLogger := logger.Component("http")
	router.Use(middleware.Recovery(httpLogger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.Logger(httpLogger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := api.NewHandlers(api.Deps{
		Discoverer:  plan.NewBuilder(fetcher, logger.Component("builder")),
		Executor:    executor,
		Registry:    reg,
		History:     historyDep(store),
		Tracer:      tracer,
		ArtifactDir: cfg.Artifacts.BaseDir,
		Health:      s.health,
		Logger:      logger.Component("api"),
	})
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router = router
	logger.Info("Server initialized successfully", zap.Strings("backends", selector.Backends()))
	return s, nil
}

// NewKernelSelector registers every interpreter backend. Python and unknown
// languages go to the Jupyter gateway.
func NewKernelSelector(cfg config.KernelConfig, logger *logging.Logger) (*kernel.Selector, error) {
	gateway, err := jupyter.New(jupyter.Config{
		GatewayURL:   cfg.GatewayURL,
		Token:        cfg.GatewayToken,
		DefaultName:  cfg.DefaultName,
		StartTimeout: cfg.StartTimeout,
	}, logger.Component("jupyter"))
	if err != nil {
		return nil, err
	}

	selector := kernel.NewSelector(cfg.Backend, jupyter.Name)
	selector.Register(jupyter.Name, gateway, "python")
	selector.Register(jsvm.Name, jsvm.New(jsvm.DefaultConfig(), logger.Component("jsvm")), "javascript")
	selector.Register(govm.Name, govm.New(logger.Component("govm")), "go")

	if cfg.Backend != kernel.BackendAuto {
		known := false
		for _, name := range selector.Backends() {
			known = known || name == cfg.Backend
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", kernel.ErrUnknownBackend, cfg.Backend)
		}
	}
	return selector, nil
}

// historyDep keeps a nil store from becoming a non-nil interface.
func historyDep(store *history.Store) api.History {
	if store == nil {
		return nil
	}
	return store
}

func (s *Server) health() gin.H {
	return gin.H{
		"backends":      s.selector.Backends(),
		"fetch_breaker": s.fetcher.BreakerState().String(),
		"services":      s.services.Load(),
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully. The registry
// is warmed before listening and watched while serving when enabled.
func (s *Server) Run(ctx context.Context) error {
	failed, err := s.registry.Warm(ctx)
	if err != nil {
		return fmt.Errorf("warm registry: %w", err)
	}
	for _, name := range failed {
		s.logger.Warn("Service failed to load", zap.String("service", name))
	}
	s.refreshServiceCount(ctx)

	srv := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if s.config.Registry.Watch {
		g.Go(func() error {
			return s.registry.Watch(gctx)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.refreshServiceCount(gctx)
			}
		}
	})

	return g.Wait()
}

func (s *Server) refreshServiceCount(ctx context.Context) {
	names, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to list services", zap.Error(err))
		return
	}
	s.services.Store(int64(len(names)))
	s.metrics.SetRegistryServices(len(names))
}

// Close releases the history store and stops the tracer.
func (s *Server) Close() error {
	s.tracer.Close()
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}
