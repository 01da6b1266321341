package trainer

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/internal/evaluation"
	"github.com/inferloop/seqrnn/internal/rnn"
	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/interfaces"
	"github.com/inferloop/seqrnn/pkg/models"
)

// Model is what the trainer needs from a sequence classifier. Params must
// return the live tensors so that optimizer steps update the model.
type Model interface {
	InputDim() int
	Params() *rnn.Params
	Gradients(batch []dataset.Sequence) (float64, *rnn.Params, error)
	Errors(batch []dataset.Sequence) (float64, error)
	NLL(batch []dataset.Sequence) (float64, error)
}

// Trainer runs minibatch gradient descent with patience-based early stopping.
type Trainer struct {
	model     Model
	split     *dataset.Split
	config    Config
	reporter  interfaces.Reporter
	logger    *logrus.Logger
	optimizer *SGD
	binary    bool
	runID     string
}

// NewTrainer validates the configuration and checks that the data fits the model.
func NewTrainer(model Model, split *dataset.Split, config Config, reporter interfaces.Reporter, logger *logrus.Logger) (*Trainer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if model == nil {
		return nil, errors.NewConfigurationError(errors.CodeMissingField, "model is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := split.Validate(); err != nil {
		return nil, err
	}
	if split.Train.Dim() != model.InputDim() {
		return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("data has %d features, model expects %d", split.Train.Dim(), model.InputDim()))
	}
	for _, p := range []*dataset.Partition{split.Train, split.Valid, split.Test} {
		if p != nil && p.NumBatches(config.BatchSize) == 0 {
			return nil, errors.NewDataError(errors.CodeInsufficientData,
				fmt.Sprintf("partition %q has %d sequences, fewer than one batch of %d", p.Name, p.Len(), config.BatchSize))
		}
	}

	return &Trainer{
		model:    model,
		split:    split,
		config:   config,
		reporter: reporter,
		logger:   logger,
		binary:   split.Classes() == 2,
		runID:    uuid.New().String(),
	}, nil
}

// RunID identifies the run in every report
func (t *Trainer) RunID() string {
	return t.runID
}

// Run trains until patience is exhausted, the epoch ceiling is reached or ctx
// is cancelled. On cancellation the partial summary is returned with the
// context error. Each call starts from zero momentum.
func (t *Trainer) Run(ctx context.Context) (*models.RunSummary, error) {
	t.optimizer = NewSGD(t.config.LearningRate, t.config.Momentum)
	nTrain := t.split.Train.NumBatches(t.config.BatchSize)
	stopper := NewEarlyStopping(t.config.Patience, t.config.PatienceIncrease, t.config.ImprovementThreshold, nTrain)

	t.logger.WithFields(logrus.Fields{
		"run_id":               t.runID,
		"train_batches":        nTrain,
		"valid_batches":        t.split.Valid.NumBatches(t.config.BatchSize),
		"batch_size":           t.config.BatchSize,
		"learning_rate":        t.config.LearningRate,
		"validation_metric":    t.config.ValidationMetric,
		"validation_frequency": stopper.Frequency(),
	}).Info("Starting training")

	summary := &models.RunSummary{
		RunID:     t.runID,
		StartedAt: time.Now(),
	}
	finish := func(reason string, iter int, epoch int, cost float64) {
		summary.FinishedAt = time.Now()
		summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
		summary.Epochs = epoch
		summary.Iterations = iter + 1
		summary.BestValidation = stopper.Best()
		summary.BestIteration = stopper.BestIteration()
		summary.Patience = stopper.Patience()
		summary.StopReason = reason
		summary.FinalTrainCost = cost
		if secs := summary.Duration.Seconds(); secs > 0 {
			summary.EpochsPerSecond = float64(epoch) / secs
		}
	}

	iter := -1
	epoch := 0
	var cost float64
	for epoch < t.config.Epochs {
		epoch++
		for mb := 0; mb < nTrain; mb++ {
			if err := ctx.Err(); err != nil {
				finish(constants.StopCancelled, iter, epoch, cost)
				return summary, err
			}

			var err error
			cost, err = t.step(mb)
			if err != nil {
				return nil, err
			}
			iter = (epoch-1)*nTrain + mb

			if stopper.ShouldValidate(iter) {
				round, err := t.validate(epoch, mb, nTrain, iter, cost, stopper)
				if err != nil {
					return nil, err
				}
				if err := t.report(ctx, round); err != nil {
					return nil, err
				}
			}

			if stopper.Exhausted(iter) {
				finish(constants.StopPatienceExhausted, iter, epoch, cost)
				return summary, t.reportSummary(ctx, summary)
			}
		}
	}

	finish(constants.StopEpochCeiling, iter, epoch, cost)
	return summary, t.reportSummary(ctx, summary)
}

// step runs one forward/backward pass on minibatch mb and applies the update.
func (t *Trainer) step(mb int) (float64, error) {
	batch, err := t.split.Train.Batch(mb, t.config.BatchSize)
	if err != nil {
		return 0, err
	}
	cost, grads, err := t.model.Gradients(batch)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, errors.NewNumericalError(errors.CodeNumericalDegeneracy,
			fmt.Sprintf("training cost became %v at minibatch %d", cost, mb))
	}
	if err := t.optimizer.Step(t.model.Params(), grads); err != nil {
		return 0, err
	}
	return cost, nil
}

func (t *Trainer) validate(epoch, mb, nTrain, iter int, cost float64, stopper *EarlyStopping) (*models.ValidationRound, error) {
	score, err := t.score(t.split.Valid, t.config.ValidationMetric)
	if err != nil {
		return nil, err
	}
	decision := stopper.Observe(iter, score)

	round := &models.ValidationRound{
		RunID:           t.runID,
		Epoch:           epoch,
		Minibatch:       mb + 1,
		NumMinibatches:  nTrain,
		Iteration:       iter,
		Metric:          t.config.ValidationMetric,
		ValidationScore: score,
		TrainCost:       cost,
		BestValidation:  decision.Best,
		Patience:        decision.Patience,
		Improved:        decision.Improved,
		PatienceRaised:  decision.PatienceRaised,
		Timestamp:       time.Now(),
	}

	if t.split.Test != nil {
		testScore, err := t.score(t.split.Test, constants.MetricError)
		if err != nil {
			return nil, err
		}
		round.TestScore = &testScore
	}

	if scorer, ok := t.model.(evaluation.Scorer); ok && t.binary {
		auc, err := evaluation.SequenceAUC(scorer, t.split.Valid.Sequences)
		switch {
		case err == nil:
			round.ValidationAUC = &auc
		case stderrors.Is(err, errors.ErrInsufficientData):
			t.logger.WithField("run_id", t.runID).Debug("Validation AUC undefined for a single class")
		default:
			return nil, err
		}
	}
	return round, nil
}

// score returns the mean of metric over the full minibatches of p.
func (t *Trainer) score(p *dataset.Partition, metric string) (float64, error) {
	n := p.NumBatches(t.config.BatchSize)
	var sum float64
	for i := 0; i < n; i++ {
		batch, err := p.Batch(i, t.config.BatchSize)
		if err != nil {
			return 0, err
		}
		var v float64
		if metric == constants.MetricNLL {
			v, err = t.model.NLL(batch)
		} else {
			v, err = t.model.Errors(batch)
		}
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(n), nil
}

func (t *Trainer) report(ctx context.Context, round *models.ValidationRound) error {
	if t.reporter == nil {
		return nil
	}
	return t.reporter.ReportRound(ctx, round)
}

func (t *Trainer) reportSummary(ctx context.Context, summary *models.RunSummary) error {
	if t.reporter == nil {
		return nil
	}
	return t.reporter.ReportSummary(ctx, summary)
}
