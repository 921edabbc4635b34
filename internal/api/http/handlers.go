// Package http exposes discovery, the service registry, execution and run
// history over a gin router.
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/history"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/nbapi/internal/shared/id"
)

// Discoverer builds services from notebook URLs.
type Discoverer interface {
	Discover(ctx context.Context, url string) (*plan.Service, error)
}

// Executor runs service plans.
type Executor interface {
	Execute(ctx context.Context, svc *plan.Service, input plan.Input) (*plan.Report, error)
}

// Registry stores services by name.
type Registry interface {
	Save(ctx context.Context, name string, svc *plan.Service) error
	Load(ctx context.Context, name string) (*plan.Service, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

// History records runs.
type History interface {
	Begin(ctx context.Context, service string) (id.RunID, error)
	Finish(ctx context.Context, runID id.RunID, runErr error, digest string, stages []history.StageSummary) error
	Get(ctx context.Context, runID string) (*history.Run, error)
	List(ctx context.Context, service string, limit int) ([]*history.Run, error)
}

// Deps are the collaborators the handlers need. History and Tracer are optional.
type Deps struct {
	Discoverer  Discoverer
	Executor    Executor
	Registry    Registry
	History     History
	Tracer      *tracing.Tracer
	ArtifactDir string
	// Health contributes extra fields to the health response.
	Health func() gin.H
	Logger *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	discoverer  Discoverer
	executor    Executor
	registry    Registry
	history     History
	tracer      *tracing.Tracer
	artifactDir string
	health      func() gin.H
	locks       *keyedMutex
	logger      *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	artifactDir := deps.ArtifactDir
	if artifactDir == "" {
		artifactDir = "."
	}
	return &Handlers{
		discoverer:  deps.Discoverer,
		executor:    deps.Executor,
		registry:    deps.Registry,
		history:     deps.History,
		tracer:      deps.Tracer,
		artifactDir: artifactDir,
		health:      deps.Health,
		locks:       newKeyedMutex(),
		logger:      logger,
	}
}

// Register mounts the API routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	r.POST("/services/discover", h.DiscoverService)
	r.GET("/services", h.ListServices)
	r.GET("/services/*name", h.GetService)
	r.PUT("/services/*name", h.PutService)
	r.DELETE("/services/*name", h.DeleteService)

	r.POST("/execute/*name", h.ExecuteService)

	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"history": h.history != nil,
	}
	if h.health != nil {
		for k, v := range h.health() {
			resp[k] = v
		}
	}
	c.JSON(http.StatusOK, resp)
}

// requestLogger returns the handler logger tagged with the request trace.
func (h *Handlers) requestLogger(c *gin.Context) *zap.Logger {
	if traceID := tracing.GetTraceID(c.Request.Context()); traceID != "" {
		return h.logger.With(zap.String("trace_id", string(traceID)))
	}
	return h.logger
}

func serviceName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}

func fail(c *gin.Context, status int, err error, extra gin.H) {
	body := gin.H{
		"success": false,
		"error":   err.Error(),
	}
	for k, v := range extra {
		body[k] = v
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
