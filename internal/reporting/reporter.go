package reporting

import (
	"context"

	"github.com/inferloop/seqrnn/pkg/interfaces"
	"github.com/inferloop/seqrnn/pkg/models"
)

// MultiReporter fans progress out to every configured sink in order. The
// first sink error aborts the call.
type MultiReporter struct {
	reporters []interfaces.Reporter
}

// NewMultiReporter creates a reporter over the non-nil sinks
func NewMultiReporter(reporters ...interfaces.Reporter) *MultiReporter {
	m := &MultiReporter{}
	for _, r := range reporters {
		m.Add(r)
	}
	return m
}

// Add appends a sink
func (m *MultiReporter) Add(r interfaces.Reporter) {
	if r != nil {
		m.reporters = append(m.reporters, r)
	}
}

// Len returns the number of sinks
func (m *MultiReporter) Len() int {
	return len(m.reporters)
}

// ReportRound forwards a validation round to every sink
func (m *MultiReporter) ReportRound(ctx context.Context, round *models.ValidationRound) error {
	for _, r := range m.reporters {
		if err := r.ReportRound(ctx, round); err != nil {
			return err
		}
	}
	return nil
}

// ReportSummary forwards the run summary to every sink
func (m *MultiReporter) ReportSummary(ctx context.Context, summary *models.RunSummary) error {
	for _, r := range m.reporters {
		if err := r.ReportSummary(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error
func (m *MultiReporter) Close() error {
	var first error
	for _, r := range m.reporters {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
