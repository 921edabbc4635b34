// Package jsvm runs JavaScript notebooks in an in-process goja runtime.
//
// Each session owns one runtime, so globals assigned by one cell are visible to
// the cells after it. Parameter annotations are rewritten from "#@param" to
// "//@param" before evaluation. Module loading, process access and timers are
// unavailable.
package jsvm

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

// Name is the backend name used by kernel.Selector.
const Name = "jsvm"

// Config defines runtime limits.
type Config struct {
	MaxCallStackSize int
}

// DefaultConfig returns the runtime limits used by the server.
func DefaultConfig() Config {
	return Config{MaxCallStackSize: 1024}
}

// Kernel starts goja sessions.
type Kernel struct {
	config Config
	logger *zap.Logger
}

// New creates a JavaScript kernel.
func New(config Config, logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{config: config, logger: logger}
}

// Start creates a fresh runtime for doc.
func (k *Kernel) Start(_ context.Context, doc *notebook.Document) (kernel.Session, error) {
	s := newSession(k.config)
	k.logger.Debug("Started JavaScript session", zap.Int("cells", len(doc.Cells)))
	return s, nil
}
