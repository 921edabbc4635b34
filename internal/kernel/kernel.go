// Package kernel defines the interpreter session contract used by the plan executor.
//
// A Kernel starts one Session per execution. A Session is a stateful execution
// context: every cell or source submitted to it runs against the bindings left by
// earlier submissions, the way a notebook runs top to bottom. Sessions are owned by
// a single execution and are not safe for concurrent use.
//
// Backends:
//   - jupyter: a Jupyter kernel gateway reached over REST and websocket
//   - jsvm: an in-process JavaScript runtime
//   - govm: an in-process Go interpreter
package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
)

// Kernel starts interpreter sessions.
type Kernel interface {
	Start(ctx context.Context, doc *notebook.Document) (Session, error)
}

// Session executes code with cumulative state.
type Session interface {
	// ExecuteCell runs source as the cell at index of the document the
	// session was started for.
	ExecuteCell(ctx context.Context, index int, source string) (*Result, error)
	// ExecuteSource runs literal source text outside any cell.
	ExecuteSource(ctx context.Context, source string) (*Result, error)
	Close() error
}

// OutputKind classifies a piece of execution output.
type OutputKind string

const (
	OutputStream  OutputKind = "stream"
	OutputResult  OutputKind = "execute_result"
	OutputDisplay OutputKind = "display_data"
	OutputError   OutputKind = "error"
)

// Output is one piece of output produced while executing.
type Output struct {
	Kind OutputKind `json:"kind"`
	// Name is the stream name ("stdout", "stderr") for stream outputs.
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`
	// Data holds rich representations keyed by MIME type.
	Data map[string]string `json:"data,omitempty"`
}

// Result is what one execution produced.
type Result struct {
	// Index is the cell position, or -1 for literal source.
	Index   int           `json:"index"`
	Outputs []Output      `json:"outputs,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Text concatenates all stream and plain-text result outputs.
func (r *Result) Text() string {
	var sb strings.Builder
	for _, out := range r.Outputs {
		switch out.Kind {
		case OutputStream:
			sb.WriteString(out.Text)
		case OutputResult, OutputDisplay:
			if txt, ok := out.Data["text/plain"]; ok {
				sb.WriteString(txt)
			} else {
				sb.WriteString(out.Text)
			}
		}
	}
	return sb.String()
}

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrUnknownBackend = errors.New("unknown kernel backend")
)

// ExecutionError is an error raised by the code itself while it ran.
type ExecutionError struct {
	Name      string
	Value     string
	Traceback []string
}

func (e *ExecutionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("execution failed: %s", e.Name)
	}
	return fmt.Sprintf("execution failed: %s: %s", e.Name, e.Value)
}
