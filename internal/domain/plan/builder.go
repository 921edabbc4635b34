package plan

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/domain/param"
)

// Fetcher loads a notebook document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*notebook.Document, error)
}

// Builder discovers services from notebook documents.
type Builder struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewBuilder creates a builder that fetches documents with fetcher.
func NewBuilder(fetcher Fetcher, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{fetcher: fetcher, logger: logger}
}

// Discover fetches the document at url once and builds its service.
func (b *Builder) Discover(ctx context.Context, url string) (*Service, error) {
	doc, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	svc := BuildPlan(url, doc)

	code := 0
	for _, cell := range doc.Cells {
		if cell.IsCode() {
			code++
		}
	}
	if skipped := code - len(svc.Plan); skipped > 0 {
		b.logger.Debug("Code cells without id left out of plan",
			zap.String("url", url),
			zap.Int("skipped", skipped),
		)
	}
	b.logger.Info("Discovered service",
		zap.String("url", url),
		zap.String("digest", doc.Digest),
		zap.Int("stages", len(svc.Plan)),
	)
	return svc, nil
}

// BuildPlan assembles the service for doc: one stage per identified code cell,
// in document order, holding every parameter default found in that cell. When a
// cell declares the same identifier twice the last declaration wins.
func BuildPlan(url string, doc *notebook.Document) *Service {
	svc := &Service{
		URL:    url,
		Input:  map[string]DataType{},
		Output: map[string]Artifact{},
		Plan:   []Stage{},
	}

	for _, cell := range doc.CodeCells() {
		vars := make(map[string]Value)
		for _, line := range param.Scan(cell.Cell.Source) {
			vars[line.Ident] = Constant(line.Value)
		}
		svc.Plan = append(svc.Plan, Stage{Vars: vars, CellID: cell.ID})
	}
	return svc
}
