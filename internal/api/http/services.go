package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan/codec"
	"github.com/GriffinCanCode/nbapi/internal/domain/registry"
)

// maxPlanBytes bounds uploaded service bodies.
const maxPlanBytes = 4 << 20

// DiscoverService builds a service from a notebook URL and optionally saves it.
func (h *Handlers) DiscoverService(c *gin.Context) {
	var req struct {
		URL  string `json:"url" binding:"required"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, errors.New("invalid request: "+err.Error()), nil)
		return
	}

	ctx := c.Request.Context()
	svc, err := h.discoverer.Discover(ctx, req.URL)
	if err != nil {
		h.requestLogger(c).Warn("Discovery failed", zap.String("url", req.URL), zap.Error(err))
		status, extra := executionStatus(err)
		fail(c, status, err, extra)
		return
	}

	resp := gin.H{
		"success": true,
		"service": svc,
		"inputs":  svc.InputKeys(),
	}
	if req.Name != "" {
		if err := h.registry.Save(ctx, req.Name, svc); err != nil {
			fail(c, registryStatus(err), err, nil)
			return
		}
		resp["name"] = req.Name
	}
	c.JSON(http.StatusOK, resp)
}

// ListServices lists the registered service names
func (h *Handlers) ListServices(c *gin.Context) {
	names, err := h.registry.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"services": names,
		"count":    len(names),
	})
}

// GetService returns one service
func (h *Handlers) GetService(c *gin.Context) {
	name := serviceName(c)
	if name == "" {
		h.ListServices(c)
		return
	}
	svc, err := h.registry.Load(c.Request.Context(), name)
	if err != nil {
		fail(c, registryStatus(err), err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    name,
		"service": svc,
	})
}

// PutService stores a service body under a name
func (h *Handlers) PutService(c *gin.Context) {
	name := serviceName(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPlanBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, err, nil)
		return
	}
	if len(body) > maxPlanBytes {
		fail(c, http.StatusRequestEntityTooLarge, errors.New("service body too large"), nil)
		return
	}

	svc, err := codec.Codec{Format: codec.FormatJSON}.Unmarshal(body)
	if err != nil {
		fail(c, http.StatusBadRequest, err, nil)
		return
	}

	unlock := h.locks.Lock(name)
	defer unlock()

	if err := h.registry.Save(c.Request.Context(), name, svc); err != nil {
		fail(c, registryStatus(err), err, nil)
		return
	}
	h.requestLogger(c).Info("Saved service", zap.String("service", name))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    name,
	})
}

// DeleteService removes a service
func (h *Handlers) DeleteService(c *gin.Context) {
	name := serviceName(c)

	unlock := h.locks.Lock(name)
	defer unlock()

	if err := h.registry.Delete(c.Request.Context(), name); err != nil {
		fail(c, registryStatus(err), err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    name,
	})
}

func registryStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidName), errors.Is(err, codec.ErrInvalidPlan):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// executionStatus maps an execution error to a response status and detail fields.
func executionStatus(err error) (int, gin.H) {
	extra := gin.H{"kind": plan.Kind(err)}

	var missing *plan.MissingCellError
	if errors.As(err, &missing) {
		extra["cell_id"] = missing.CellID
		if len(missing.Suggestions) > 0 {
			extra["suggestions"] = missing.Suggestions
		}
	}
	var input *plan.InputError
	if errors.As(err, &input) {
		extra["input"] = input.Key
	}
	var stage *plan.StageError
	if errors.As(err, &stage) {
		extra["stage"] = stage.Index
	}

	switch plan.Kind(err) {
	case plan.KindMissingInput, plan.KindInvalidInput:
		return http.StatusBadRequest, extra
	case plan.KindMissingCell:
		return http.StatusConflict, extra
	case plan.KindFetch:
		return http.StatusBadGateway, extra
	case plan.KindExecution:
		return http.StatusUnprocessableEntity, extra
	case plan.KindTimeout:
		return http.StatusGatewayTimeout, extra
	case plan.KindCanceled:
		return 499, extra
	default:
		return http.StatusInternalServerError, extra
	}
}
