package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
)

// CleaningReport summarizes what normalization left missing.
type CleaningReport struct {
	Rows    int            `json:"rows"`
	Missing map[string]int `json:"missing"`
}

// Incomplete lists the columns with at least one missing cell, sorted.
func (r CleaningReport) Incomplete() []string {
	cols := make([]string, 0, len(r.Missing))
	for col, n := range r.Missing {
		if n > 0 {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// Preprocessor turns a freshly loaded dataset into the prepared one:
// normalized identifiers, typed numeric columns and the intensity score.
type Preprocessor struct {
	weights Weights
	logger  *monitoring.Logger
}

// NewPreprocessor creates a new preprocessor
func NewPreprocessor(weights Weights, logger *monitoring.Logger) *Preprocessor {
	return &Preprocessor{weights: weights, logger: logger}
}

// Process runs the Normalizer then the Score Deriver.
func (p *Preprocessor) Process(ctx context.Context, raw *dataset.Dataset) (*dataset.Dataset, CleaningReport, error) {
	start := time.Now()
	normalized, err := dataset.Normalize(raw)
	if err != nil {
		return nil, CleaningReport{}, err
	}
	p.logger.PipelineLogger("normalize", raw.Source, normalized.Len(), time.Since(start), false)

	if err := ctx.Err(); err != nil {
		return nil, CleaningReport{}, err
	}

	start = time.Now()
	scored, err := p.weights.Derive(normalized)
	if err != nil {
		return nil, CleaningReport{}, err
	}
	p.logger.PipelineLogger("score", raw.Source, scored.Len(), time.Since(start), false)

	report := CleaningReport{Rows: scored.Len(), Missing: dataset.MissingCounts(scored)}
	if incomplete := report.Incomplete(); len(incomplete) > 0 {
		attrs := []any{"source", raw.Source, "rows", report.Rows}
		for _, col := range incomplete {
			attrs = append(attrs, col, report.Missing[col])
		}
		p.logger.Warn("Missing values after normalization", attrs...)
	}

	return scored, report, nil
}
