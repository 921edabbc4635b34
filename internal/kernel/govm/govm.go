// Package govm runs Go notebooks in an in-process yaegi interpreter.
//
// Each session owns one interpreter evaluated in REPL mode, so declarations
// made by one cell stay in scope for later cells. Parameter annotations are
// rewritten from "#@param" to "//@param" before evaluation. Standard library
// packages are available; unsafe and syscall are not.
package govm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/domain/param"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

// Name is the backend name used by kernel.Selector.
const Name = "govm"

// Kernel starts yaegi sessions.
type Kernel struct {
	logger *zap.Logger
}

// New creates a Go kernel.
func New(logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{logger: logger}
}

// Start creates a fresh interpreter for doc.
func (k *Kernel) Start(_ context.Context, doc *notebook.Document) (kernel.Session, error) {
	s := &session{}
	s.interp = interp.New(interp.Options{Stdout: &s.stdout, Stderr: &s.stderr})
	if err := s.interp.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	k.logger.Debug("Started Go session", zap.Int("cells", len(doc.Cells)))
	return s, nil
}

// lockedBuffer is written by interpreted code and drained between executions.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

type session struct {
	mu     sync.Mutex
	interp *interp.Interpreter
	stdout lockedBuffer
	stderr lockedBuffer
	closed bool
}

func (s *session) ExecuteCell(ctx context.Context, index int, source string) (*kernel.Result, error) {
	return s.run(ctx, index, source)
}

func (s *session) ExecuteSource(ctx context.Context, source string) (*kernel.Result, error) {
	return s.run(ctx, -1, source)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.interp = nil
	return nil
}

func (s *session) run(ctx context.Context, index int, source string) (*kernel.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kernel.ErrSessionClosed
	}

	start := time.Now()
	s.stdout.drain()
	s.stderr.drain()

	val, err := s.interp.EvalWithContext(ctx, param.RewriteComments(source, "//"))

	result := &kernel.Result{Index: index}
	if out := s.stdout.drain(); out != "" {
		result.Outputs = append(result.Outputs, kernel.Output{Kind: kernel.OutputStream, Name: "stdout", Text: out})
	}
	if out := s.stderr.drain(); out != "" {
		result.Outputs = append(result.Outputs, kernel.Output{Kind: kernel.OutputStream, Name: "stderr", Text: out})
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, convertError(err)
	}

	if text, ok := render(val); ok {
		result.Outputs = append(result.Outputs, kernel.Output{
			Kind: kernel.OutputResult,
			Data: map[string]string{"text/plain": text},
		})
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

func render(v reflect.Value) (string, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return "", false
	}
	// Declared functions are not echoed.
	if v.Kind() == reflect.Func {
		return "", false
	}
	return fmt.Sprint(v.Interface()), true
}

func convertError(err error) error {
	var p interp.Panic
	if errors.As(err, &p) {
		return &kernel.ExecutionError{
			Name:      "panic",
			Value:     fmt.Sprint(p.Value),
			Traceback: strings.Split(strings.TrimSpace(string(p.Stack)), "\n"),
		}
	}
	return &kernel.ExecutionError{Name: "error", Value: err.Error()}
}
