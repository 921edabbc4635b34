package monitoring

import (
	"time"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
)

// Observer records plan execution events as metrics.
type Observer struct {
	metrics *Metrics
}

// NewObserver creates an execution observer backed by metrics.
func NewObserver(metrics *Metrics) *Observer {
	return &Observer{metrics: metrics}
}

func (o *Observer) ExecutionStarted(*plan.Service) {
	o.metrics.ExecutionsActive.Inc()
}

func (o *Observer) StageStarted(int, plan.Stage) {}

func (o *Observer) StageFinished(_ int, _ plan.Stage, elapsed time.Duration, err error) {
	o.metrics.StagesTotal.WithLabelValues(outcome(err)).Inc()
	o.metrics.StageDuration.Observe(elapsed.Seconds())
}

func (o *Observer) ExecutionFinished(_ *plan.Service, elapsed time.Duration, err error) {
	o.metrics.ExecutionsActive.Dec()
	label := outcome(err)
	o.metrics.ExecutionsTotal.WithLabelValues(label).Inc()
	o.metrics.ExecutionDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return plan.Kind(err)
}
