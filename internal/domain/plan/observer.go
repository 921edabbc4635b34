package plan

import (
	"time"

	"go.uber.org/zap"
)

// Observer receives execution events. Each executor carries its own observer,
// so concurrent executions can report to different sinks.
type Observer interface {
	ExecutionStarted(svc *Service)
	StageStarted(index int, stage Stage)
	StageFinished(index int, stage Stage, elapsed time.Duration, err error)
	ExecutionFinished(svc *Service, elapsed time.Duration, err error)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ExecutionStarted(*Service)                        {}
func (NopObserver) StageStarted(int, Stage)                          {}
func (NopObserver) StageFinished(int, Stage, time.Duration, error)   {}
func (NopObserver) ExecutionFinished(*Service, time.Duration, error) {}

// Observers fans events out in order.
type Observers []Observer

func (o Observers) ExecutionStarted(svc *Service) {
	for _, obs := range o {
		obs.ExecutionStarted(svc)
	}
}

func (o Observers) StageStarted(index int, stage Stage) {
	for _, obs := range o {
		obs.StageStarted(index, stage)
	}
}

func (o Observers) StageFinished(index int, stage Stage, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.StageFinished(index, stage, elapsed, err)
	}
}

func (o Observers) ExecutionFinished(svc *Service, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.ExecutionFinished(svc, elapsed, err)
	}
}

// LogObserver writes events to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates an observer logging to logger.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) ExecutionStarted(svc *Service) {
	l.logger.Info("Execution started",
		zap.String("url", svc.URL),
		zap.Int("stages", len(svc.Plan)),
	)
}

func (l *LogObserver) StageStarted(index int, stage Stage) {
	l.logger.Debug("Stage started",
		zap.Int("stage", index),
		zap.String("cell_id", stage.CellID),
		zap.Bool("source", stage.Source != ""),
	)
}

func (l *LogObserver) StageFinished(index int, stage Stage, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.Int("stage", index),
		zap.String("cell_id", stage.CellID),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		l.logger.Warn("Stage failed", append(fields, zap.Error(err))...)
		return
	}
	l.logger.Debug("Stage finished", fields...)
}

func (l *LogObserver) ExecutionFinished(svc *Service, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("url", svc.URL),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		l.logger.Error("Execution failed", append(fields, zap.Error(err))...)
		return
	}
	l.logger.Info("Execution finished", fields...)
}
