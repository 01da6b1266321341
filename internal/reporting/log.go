package reporting

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/models"
)

// LogReporter writes progress lines through logrus
type LogReporter struct {
	logger *logrus.Logger
}

// NewLogReporter creates a log reporter
func NewLogReporter(logger *logrus.Logger) *LogReporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogReporter{logger: logger}
}

// ReportRound logs "epoch e, minibatch i/n, validation error x %" and the
// test error when a test partition is present.
func (l *LogReporter) ReportRound(_ context.Context, round *models.ValidationRound) error {
	fields := logrus.Fields{
		"run_id":          round.RunID,
		"iteration":       round.Iteration,
		"patience":        round.Patience,
		"improved":        round.Improved,
		"patience_raised": round.PatienceRaised,
	}
	if round.ValidationAUC != nil {
		fields["validation_auc"] = *round.ValidationAUC
	}
	entry := l.logger.WithFields(fields)

	if round.Metric == constants.MetricNLL {
		entry.Infof("epoch %d, minibatch %d/%d, validation nll %f",
			round.Epoch, round.Minibatch, round.NumMinibatches, round.ValidationScore)
	} else {
		entry.Infof("epoch %d, minibatch %d/%d, validation error %f %%",
			round.Epoch, round.Minibatch, round.NumMinibatches, round.ValidationScore*100)
	}
	if round.TestScore != nil {
		entry.Infof("     epoch %d, minibatch %d/%d, test error %f %%",
			round.Epoch, round.Minibatch, round.NumMinibatches, *round.TestScore*100)
	}
	return nil
}

// ReportSummary logs the best score and the training speed
func (l *LogReporter) ReportSummary(_ context.Context, summary *models.RunSummary) error {
	entry := l.logger.WithFields(logrus.Fields{
		"run_id":         summary.RunID,
		"stop_reason":    summary.StopReason,
		"iterations":     summary.Iterations,
		"best_iteration": summary.BestIteration,
		"duration":       summary.Duration.String(),
	})
	entry.Infof("Optimization complete with best validation score of %f", summary.BestValidation)
	entry.Infof("The code ran for %d epochs, with %f epochs/sec", summary.Epochs, summary.EpochsPerSecond)
	return nil
}

// Close is a no-op
func (l *LogReporter) Close() error {
	return nil
}
