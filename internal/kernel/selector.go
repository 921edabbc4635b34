package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
)

// BackendAuto selects a backend from the document kernelspec language.
const BackendAuto = "auto"

// Selector routes Start to a named backend.
type Selector struct {
	mu       sync.RWMutex
	backends map[string]Kernel
	byLang   map[string]string
	fallback string
	backend  string
}

// NewSelector creates a selector that starts sessions on backend. With
// BackendAuto the document language decides, falling back to fallback.
func NewSelector(backend, fallback string) *Selector {
	return &Selector{
		backends: make(map[string]Kernel),
		byLang:   make(map[string]string),
		fallback: fallback,
		backend:  backend,
	}
}

// Register adds a backend and the kernelspec languages it serves.
func (s *Selector) Register(name string, k Kernel, languages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends[name] = k
	for _, lang := range languages {
		s.byLang[lang] = name
	}
}

// Backends returns the registered backend names.
func (s *Selector) Backends() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the backend name that would serve doc.
func (s *Selector) Resolve(doc *notebook.Document) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend != BackendAuto && s.backend != "" {
		return s.backend
	}
	if doc != nil {
		if name, ok := s.byLang[doc.Language()]; ok {
			return name
		}
	}
	return s.fallback
}

// Start implements Kernel.
func (s *Selector) Start(ctx context.Context, doc *notebook.Document) (Session, error) {
	name := s.Resolve(doc)

	s.mu.RLock()
	k, ok := s.backends[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return k.Start(ctx, doc)
}
