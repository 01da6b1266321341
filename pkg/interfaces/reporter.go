package interfaces

import (
	"context"

	"github.com/inferloop/seqrnn/pkg/models"
)

// Reporter receives training progress. Implementations are called
// synchronously from the training loop.
type Reporter interface {
	// ReportRound is called after every validation round
	ReportRound(ctx context.Context, round *models.ValidationRound) error

	// ReportSummary is called once when training stops
	ReportSummary(ctx context.Context, summary *models.RunSummary) error

	// Close flushes and releases the sink
	Close() error
}
