package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"missing input", &InputError{Key: "x"}, KindMissingInput},
		{"invalid input", fmt.Errorf("%w: input n must be a string", ErrInvalidInput), KindInvalidInput},
		{"missing cell", &MissingCellError{CellID: "abc"}, KindMissingCell},
		{"fetch", &FetchError{URL: "u", Err: errors.New("502")}, KindFetch},
		{"fetch timeout", &FetchError{URL: "u", Err: context.DeadlineExceeded}, KindFetch},
		{"stage execution", &StageError{Index: 1, Err: &kernel.ExecutionError{Name: "ValueError"}}, KindExecution},
		{"stage timeout", &StageError{Index: 1, Err: fmt.Errorf("run: %w", context.DeadlineExceeded)}, KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestMissingCellErrorMessage(t *testing.T) {
	err := &MissingCellError{CellID: "load", Suggestions: []string{"load-data", "loader"}}
	assert.Equal(t, `cell "load" not found in document (did you mean load-data, loader?)`, err.Error())
	assert.Equal(t, `cell "x" not found in document`, (&MissingCellError{CellID: "x"}).Error())
}
