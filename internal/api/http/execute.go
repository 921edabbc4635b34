package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/artifact"
	"github.com/GriffinCanCode/nbapi/internal/domain/history"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/shared/id"
)

// ExecuteService runs a registered service with the input in the request body.
//
// The body is {"input": {...}} where each entry is a string or an object of
// strings. Executions of the same service are serialised.
func (h *Handlers) ExecuteService(c *gin.Context) {
	name := serviceName(c)
	ctx := c.Request.Context()
	logger := h.requestLogger(c).With(zap.String("service", name))

	var req struct {
		Input map[string]interface{} `json:"input"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, errors.New("invalid request: "+err.Error()), nil)
			return
		}
	}
	input, err := plan.InputFromMap(req.Input)
	if err != nil {
		fail(c, http.StatusBadRequest, err, gin.H{"kind": plan.KindInvalidInput})
		return
	}

	svc, err := h.registry.Load(ctx, name)
	if err != nil {
		fail(c, registryStatus(err), err, nil)
		return
	}

	unlock := h.locks.Lock(name)
	defer unlock()

	if h.tracer != nil {
		span, spanCtx := h.tracer.StartSpan(ctx, "execute")
		span.SetTag("service", name)
		ctx = spanCtx
		defer func() {
			if len(c.Errors) > 0 {
				span.SetError(c.Errors.Last())
			}
			span.Finish()
			h.tracer.Submit(span)
		}()
	}

	var runID id.RunID
	if h.history != nil {
		if runID, err = h.history.Begin(ctx, name); err != nil {
			logger.Warn("Failed to record run start", zap.Error(err))
		}
	}

	report, runErr := h.executor.Execute(ctx, svc, input)
	var collected []artifact.Collected
	if runErr == nil {
		collected, runErr = artifact.Collect(h.artifactDir, svc.Output)
	}
	h.finishRun(c, runID, runErr, report, logger)

	if runErr != nil {
		status, extra := executionStatus(runErr)
		if errors.Is(runErr, artifact.ErrMissing) {
			status, extra = http.StatusUnprocessableEntity, gin.H{"kind": "missing_artifact"}
		}
		if runID != "" {
			extra["run_id"] = runID.String()
		}
		logger.Warn("Execution failed", zap.Int("status", status), zap.Error(runErr))
		fail(c, status, runErr, extra)
		return
	}

	resp := gin.H{
		"success":   true,
		"report":    report,
		"artifacts": collected,
	}
	if runID != "" {
		resp["run_id"] = runID.String()
	}
	c.JSON(http.StatusOK, resp)
}

// finishRun closes the history record. It uses a fresh context so a cancelled
// request is still recorded.
func (h *Handlers) finishRun(c *gin.Context, runID id.RunID, runErr error, report *plan.Report, logger *zap.Logger) {
	if h.history == nil || runID == "" {
		return
	}
	digest, stages := history.Summarize(report)
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.history.Finish(ctx, runID, runErr, digest, stages); err != nil {
		logger.Warn("Failed to record run result", zap.String("run_id", runID.String()), zap.Error(err))
	}
}

// ListRuns lists recorded runs, newest first
func (h *Handlers) ListRuns(c *gin.Context) {
	if h.history == nil {
		fail(c, http.StatusNotFound, errors.New("run history is disabled"), nil)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw), nil)
			return
		}
		limit = n
	}

	runs, err := h.history.List(c.Request.Context(), c.Query("service"), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one recorded run
func (h *Handlers) GetRun(c *gin.Context) {
	if h.history == nil {
		fail(c, http.StatusNotFound, errors.New("run history is disabled"), nil)
		return
	}
	run, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, history.ErrNotFound) {
			status = http.StatusNotFound
		}
		fail(c, status, err, nil)
		return
	}
	c.JSON(http.StatusOK, run)
}
