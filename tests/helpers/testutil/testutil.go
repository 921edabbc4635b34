// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

// MockFetcher is a mock implementation of plan.Fetcher for testing.
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks the Fetch method.
func (m *MockFetcher) Fetch(ctx context.Context, url string) (*notebook.Document, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notebook.Document), args.Error(1)
}

// MockKernel is a mock implementation of kernel.Kernel for testing.
type MockKernel struct {
	mock.Mock
}

// Start mocks the Start method.
func (m *MockKernel) Start(ctx context.Context, doc *notebook.Document) (kernel.Session, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(kernel.Session), args.Error(1)
}

// MockSession is a mock implementation of kernel.Session for testing.
type MockSession struct {
	mock.Mock
}

// ExecuteCell mocks the ExecuteCell method.
func (m *MockSession) ExecuteCell(ctx context.Context, index int, source string) (*kernel.Result, error) {
	args := m.Called(ctx, index, source)
	if fn, ok := args.Get(0).(func(context.Context, int, string) *kernel.Result); ok {
		return fn(ctx, index, source), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kernel.Result), args.Error(1)
}

// ExecuteSource mocks the ExecuteSource method.
func (m *MockSession) ExecuteSource(ctx context.Context, source string) (*kernel.Result, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kernel.Result), args.Error(1)
}

// Close mocks the Close method.
func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NewMockFetcher creates a mock fetcher serving doc for every URL.
func NewMockFetcher(t *testing.T, doc *notebook.Document) *MockFetcher {
	t.Helper()
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything).Return(doc, nil).Maybe()
	return m
}

// NewMockSession creates a mock session whose executions succeed with an empty
// result and whose Close succeeds.
func NewMockSession(t *testing.T) *MockSession {
	t.Helper()
	m := new(MockSession)

	m.On("ExecuteCell", mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, index int, _ string) *kernel.Result {
			return &kernel.Result{Index: index}
		}, nil).
		Maybe()

	m.On("ExecuteSource", mock.Anything, mock.Anything).
		Return(&kernel.Result{Index: -1}, nil).
		Maybe()

	m.On("Close").Return(nil).Maybe()

	return m
}

// NewMockKernel creates a mock kernel that starts session for every document.
func NewMockKernel(t *testing.T, session kernel.Session) *MockKernel {
	t.Helper()
	m := new(MockKernel)
	m.On("Start", mock.Anything, mock.Anything).Return(session, nil).Maybe()
	return m
}

// CodeCell describes a cell for NewDocument. An empty ID leaves the cell unidentified.
type CodeCell struct {
	ID     string
	Source string
}

// NewDocument builds a parsed document holding the given code cells, in order.
func NewDocument(t *testing.T, cells ...CodeCell) *notebook.Document {
	t.Helper()

	doc := &notebook.Document{
		Kernelspec: notebook.Kernelspec{Name: "python3", Language: "python"},
		Format:     4,
	}
	var digest strings.Builder
	for _, c := range cells {
		cell := notebook.Cell{Type: notebook.CellCode, Source: c.Source, Metadata: map[string]interface{}{}}
		if c.ID != "" {
			cell.Metadata["id"] = c.ID
		}
		doc.Cells = append(doc.Cells, cell)
		fmt.Fprintf(&digest, "%s\x00%s\x00", c.ID, c.Source)
	}
	doc.Digest = notebook.Digest([]byte(digest.String()))
	return doc
}

// NotebookJSON renders cells as an nbformat v4 payload. Cells with an empty ID
// are written without metadata ids.
func NotebookJSON(language string, cells ...CodeCell) string {
	var sb strings.Builder
	sb.WriteString(`{"nbformat": 4, "nbformat_minor": 5, "metadata": {"kernelspec": {"name": "`)
	sb.WriteString(language)
	sb.WriteString(`", "language": "`)
	sb.WriteString(language)
	sb.WriteString(`"}}, "cells": [`)
	for i, c := range cells {
		if i > 0 {
			sb.WriteString(", ")
		}
		metadata := "{}"
		if c.ID != "" {
			metadata = fmt.Sprintf(`{"id": %q}`, c.ID)
		}
		fmt.Fprintf(&sb, `{"cell_type": "code", "metadata": %s, "source": %q, "outputs": []}`, metadata, c.Source)
	}
	sb.WriteString("]}")
	return sb.String()
}
