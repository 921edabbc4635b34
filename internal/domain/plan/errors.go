package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

var (
	// ErrMissingInput is matched by lookups of input keys the caller did not supply.
	ErrMissingInput = errors.New("missing input")
	// ErrFetch is matched by failures to fetch or parse the notebook document.
	ErrFetch = errors.New("fetch failed")
	// ErrMissingCell is matched when a stage targets a cell the document no longer has.
	ErrMissingCell = errors.New("missing cell")
	// ErrInvalidInput is matched by caller input that is not a map of strings.
	ErrInvalidInput = errors.New("invalid input")
)

// InputError reports an input key absent from the caller input.
type InputError struct {
	Key string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("missing input %q", e.Key)
}

func (e *InputError) Is(target error) bool {
	return target == ErrMissingInput
}

// FetchError wraps a document fetch failure.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// MissingCellError reports a stage cell id absent from the fetched document.
type MissingCellError struct {
	CellID string
	// Suggestions lists cell ids in the document that look like CellID.
	Suggestions []string
}

func (e *MissingCellError) Error() string {
	msg := fmt.Sprintf("cell %q not found in document", e.CellID)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *MissingCellError) Is(target error) bool {
	return target == ErrMissingCell
}

// StageError carries the failing stage's position in the plan.
type StageError struct {
	Index  int
	CellID string
	Err    error
}

func (e *StageError) Error() string {
	if e.CellID != "" {
		return fmt.Sprintf("stage %d (cell %s): %v", e.Index, e.CellID, e.Err)
	}
	return fmt.Sprintf("stage %d: %v", e.Index, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Error kinds returned by Kind.
const (
	KindMissingInput = "missing_input"
	KindInvalidInput = "invalid_input"
	KindMissingCell  = "missing_cell"
	KindFetch        = "fetch"
	KindExecution    = "execution"
	KindTimeout      = "timeout"
	KindCanceled     = "canceled"
	KindInternal     = "internal"
)

// Kind classifies an error returned by Executor.Execute. It returns "" for nil.
func Kind(err error) string {
	var execErr *kernel.ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrMissingCell):
		return KindMissingCell
	case errors.Is(err, ErrFetch):
		return KindFetch
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &execErr):
		return KindExecution
	default:
		return KindInternal
	}
}
