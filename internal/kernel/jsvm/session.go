package jsvm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/nbapi/internal/domain/param"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

type session struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	outputs []kernel.Output
}

func newSession(config Config) *session {
	s := &session{vm: goja.New()}
	if config.MaxCallStackSize > 0 {
		s.vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}
	s.setupGlobals()
	return s
}

func (s *session) ExecuteCell(ctx context.Context, index int, source string) (*kernel.Result, error) {
	return s.run(ctx, index, "cell-"+strconv.Itoa(index)+".js", source)
}

func (s *session) ExecuteSource(ctx context.Context, source string) (*kernel.Result, error) {
	return s.run(ctx, -1, "source.js", source)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vm = nil
	s.outputs = nil
	return nil
}

func (s *session) run(ctx context.Context, index int, name, source string) (*kernel.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vm == nil {
		return nil, kernel.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	s.outputs = nil

	prog, err := goja.Compile(name, param.RewriteComments(source, "//"), false)
	if err != nil {
		return nil, &kernel.ExecutionError{Name: "SyntaxError", Value: err.Error()}
	}

	vm := s.vm
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(context.Cause(ctx))
		close(interrupted)
	})
	val, err := vm.RunProgram(prog)
	if !stop() {
		<-interrupted
		vm.ClearInterrupt()
	}

	if err != nil {
		return nil, s.convertError(ctx, err)
	}

	result := &kernel.Result{
		Index:   index,
		Outputs: s.outputs,
		Elapsed: time.Since(start),
	}
	if text, ok := s.render(val); ok {
		result.Outputs = append(result.Outputs, kernel.Output{
			Kind: kernel.OutputResult,
			Data: map[string]string{"text/plain": text},
		})
	}
	s.outputs = nil
	return result, nil
}

// setupGlobals removes host access and installs console capture.
func (s *session) setupGlobals() {
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = s.vm.Set(name, goja.Undefined())
	}

	console := s.vm.NewObject()
	_ = console.Set("log", s.consoleFunc("stdout"))
	_ = console.Set("info", s.consoleFunc("stdout"))
	_ = console.Set("debug", s.consoleFunc("stdout"))
	_ = console.Set("warn", s.consoleFunc("stderr"))
	_ = console.Set("error", s.consoleFunc("stderr"))
	_ = s.vm.Set("console", console)

	_ = s.vm.Set("display", s.display)

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = s.vm.Set("setTimeout", noop)
	_ = s.vm.Set("setInterval", noop)
}

func (s *session) consoleFunc(stream string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		s.appendStream(stream, strings.Join(parts, " ")+"\n")
		return goja.Undefined()
	}
}

// appendStream merges consecutive writes to the same stream.
func (s *session) appendStream(name, text string) {
	if n := len(s.outputs); n > 0 {
		last := &s.outputs[n-1]
		if last.Kind == kernel.OutputStream && last.Name == name {
			last.Text += text
			return
		}
	}
	s.outputs = append(s.outputs, kernel.Output{Kind: kernel.OutputStream, Name: name, Text: text})
}

// display(value[, mimetype]) emits rich output, plain text by default.
func (s *session) display(call goja.FunctionCall) goja.Value {
	mimetype := "text/plain"
	if m := call.Argument(1); !goja.IsUndefined(m) {
		mimetype = m.String()
	}
	text, _ := s.render(call.Argument(0))
	s.outputs = append(s.outputs, kernel.Output{
		Kind: kernel.OutputDisplay,
		Data: map[string]string{mimetype: text},
	})
	return goja.Undefined()
}

// render formats a completion value; objects are shown as JSON.
func (s *session) render(val goja.Value) (string, bool) {
	if val == nil || goja.IsUndefined(val) {
		return "", false
	}
	if obj, ok := val.(*goja.Object); ok && obj.ClassName() != "Function" {
		if b, err := obj.MarshalJSON(); err == nil {
			return string(b), true
		}
	}
	return val.String(), true
}

func (s *session) convertError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause := context.Cause(ctx); cause != nil {
			return fmt.Errorf("execution interrupted: %w", cause)
		}
		return fmt.Errorf("execution interrupted: %v", interrupted.Value())
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		execErr := &kernel.ExecutionError{Name: "Error", Value: exception.Value().String()}
		if obj, ok := exception.Value().(*goja.Object); ok {
			if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
				execErr.Name = name.String()
			}
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				execErr.Value = msg.String()
			}
		}
		execErr.Traceback = strings.Split(strings.TrimSpace(exception.String()), "\n")
		return execErr
	}

	return err
}
