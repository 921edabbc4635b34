package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestInstancesDoNotCollide(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.SetRegistryServices(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.RegistryServices))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RegistryServices))
}

func TestObserver(t *testing.T) {
	m := NewMetrics()
	obs := NewObserver(m)
	svc := &plan.Service{URL: "u"}

	obs.ExecutionStarted(svc)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsActive))

	obs.StageFinished(0, plan.Stage{CellID: "a"}, time.Millisecond, nil)
	obs.StageFinished(1, plan.Stage{CellID: "b"}, time.Millisecond, &plan.MissingCellError{CellID: "b"})
	obs.ExecutionFinished(svc, time.Second, &plan.MissingCellError{CellID: "b"})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExecutionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StagesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StagesTotal.WithLabelValues(plan.KindMissingCell)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues(plan.KindMissingCell)))

	obs.ExecutionStarted(svc)
	obs.ExecutionFinished(svc, time.Second, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues(plan.KindInternal)))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := NewMetrics()
	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/services/*name", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/services/a", "/services/b/c", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/services/*name", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nbapi_http_requests_total")
	assert.Contains(t, string(body), "nbapi_uptime_seconds")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestBreakerTransitions(t *testing.T) {
	m := NewMetrics()
	m.RecordBreakerTransition("document-fetch", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("document-fetch", "open")))
}
