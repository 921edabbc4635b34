package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
)

type namedKernel struct {
	name    string
	started []*notebook.Document
}

func (k *namedKernel) Start(_ context.Context, doc *notebook.Document) (Session, error) {
	k.started = append(k.started, doc)
	return nil, nil
}

func docFor(language string) *notebook.Document {
	return &notebook.Document{Kernelspec: notebook.Kernelspec{Language: language}}
}

func TestSelectorResolve(t *testing.T) {
	s := NewSelector(BackendAuto, "jupyter")
	s.Register("jsvm", &namedKernel{}, "javascript")
	s.Register("govm", &namedKernel{}, "go")
	s.Register("jupyter", &namedKernel{})

	tests := []struct {
		language string
		want     string
	}{
		{"javascript", "jsvm"},
		{"JavaScript", "jsvm"},
		{"go", "govm"},
		{"python", "jupyter"},
		{"", "jupyter"},
	}
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Resolve(docFor(tt.language)))
		})
	}
	assert.Equal(t, "jupyter", s.Resolve(nil))
	assert.Equal(t, []string{"govm", "jsvm", "jupyter"}, s.Backends())
}

func TestSelectorFixedBackend(t *testing.T) {
	js := &namedKernel{}
	s := NewSelector("jsvm", "jupyter")
	s.Register("jsvm", js, "javascript")

	doc := docFor("python")
	_, err := s.Start(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, js.started, 1)
	assert.Same(t, doc, js.started[0])
}

func TestSelectorUnknownBackend(t *testing.T) {
	s := NewSelector("lua", "")
	_, err := s.Start(context.Background(), docFor("lua"))
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
