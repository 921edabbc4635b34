package plan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

const (
	maxSuggestions     = 3
	maxSuggestDistance = 3
)

// Report describes a successful execution.
type Report struct {
	URL     string        `json:"url"`
	Digest  string        `json:"digest"`
	Stages  []StageReport `json:"stages"`
	Elapsed time.Duration `json:"elapsed"`
}

// StageReport holds what one stage produced.
type StageReport struct {
	Index   int              `json:"index"`
	CellID  string           `json:"cell_id,omitempty"`
	Results []*kernel.Result `json:"results"`
	Elapsed time.Duration    `json:"elapsed"`
}

// Executor replays service plans against freshly fetched documents.
type Executor struct {
	fetcher      Fetcher
	kernel       kernel.Kernel
	observer     Observer
	logger       *zap.Logger
	stageTimeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver sets the sink for execution events.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithStageTimeout bounds each stage. Zero means no bound.
func WithStageTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.stageTimeout = d
	}
}

// NewExecutor creates an executor that fetches documents with fetcher and runs
// them in sessions started by k.
func NewExecutor(fetcher Fetcher, k kernel.Kernel, opts ...ExecutorOption) *Executor {
	e := &Executor{
		fetcher:  fetcher,
		kernel:   k,
		observer: NopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs svc's plan with input.
//
// The document is fetched again, one session is started for it, and stages
// run strictly in plan order, each awaited before the next. The first failure
// stops the run. The session is closed whether or not the run succeeds.
func (e *Executor) Execute(ctx context.Context, svc *Service, input Input) (report *Report, err error) {
	start := time.Now()
	e.observer.ExecutionStarted(svc)
	defer func() {
		e.observer.ExecutionFinished(svc, time.Since(start), err)
	}()

	doc, err := e.fetcher.Fetch(ctx, svc.URL)
	if err != nil {
		return nil, &FetchError{URL: svc.URL, Err: err}
	}
	cells := doc.Index()

	session, err := e.kernel.Start(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("Failed to close session", zap.String("url", svc.URL), zap.Error(cerr))
		}
	}()

	report = &Report{
		URL:    svc.URL,
		Digest: doc.Digest,
		Stages: make([]StageReport, 0, len(svc.Plan)),
	}
	for i, stage := range svc.Plan {
		sr, err := e.runStage(ctx, session, cells, i, stage, input)
		if err != nil {
			return nil, err
		}
		report.Stages = append(report.Stages, *sr)
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

func (e *Executor) runStage(
	ctx context.Context,
	session kernel.Session,
	cells map[string]notebook.CodeCell,
	index int,
	stage Stage,
	input Input,
) (sr *StageReport, err error) {
	start := time.Now()
	e.observer.StageStarted(index, stage)
	defer func() {
		e.observer.StageFinished(index, stage, time.Since(start), err)
		if err != nil {
			err = &StageError{Index: index, CellID: stage.CellID, Err: err}
		}
	}()

	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}

	sr = &StageReport{Index: index, CellID: stage.CellID}

	if stage.CellID != "" {
		cell, ok := cells[stage.CellID]
		if !ok {
			return nil, &MissingCellError{
				CellID:      stage.CellID,
				Suggestions: suggestCells(stage.CellID, cells),
			}
		}
		source, err := Substitute(cell.Cell.Source, stage.Vars, input)
		if err != nil {
			return nil, err
		}
		result, err := session.ExecuteCell(ctx, cell.Index, source)
		if err != nil {
			return nil, err
		}
		sr.Results = append(sr.Results, result)
	}

	if stage.Source != "" {
		source, err := Substitute(stage.Source, stage.Vars, input)
		if err != nil {
			return nil, err
		}
		result, err := session.ExecuteSource(ctx, source)
		if err != nil {
			return nil, err
		}
		sr.Results = append(sr.Results, result)
	}

	sr.Elapsed = time.Since(start)
	return sr, nil
}

// suggestCells returns document cell ids close to id, closest first.
func suggestCells(id string, cells map[string]notebook.CodeCell) []string {
	type candidate struct {
		id       string
		distance int
	}
	var found []candidate
	for other := range cells {
		d := fuzzy.LevenshteinDistance(id, other)
		if d <= maxSuggestDistance || fuzzy.MatchFold(id, other) {
			found = append(found, candidate{id: other, distance: d})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].id < found[j].id
	})

	var ids []string
	for i := 0; i < len(found) && i < maxSuggestions; i++ {
		ids = append(ids, found[i].id)
	}
	return ids
}
