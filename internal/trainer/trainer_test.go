package trainer

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/internal/rnn"
	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/models"
)

// stubModel replays a fixed sequence of validation scores; the last one
// repeats forever.
type stubModel struct {
	params *rnn.Params
	scores []float64
	cost   float64
	calls  int
	steps  int
}

func newStubModel(scores ...float64) *stubModel {
	return &stubModel{
		params: &rnn.Params{
			W: mat.NewDense(1, 1, nil),
			U: mat.NewDense(2, 1, nil),
			B: mat.NewDense(1, 1, nil),
			V: mat.NewDense(1, 2, nil),
			C: mat.NewDense(1, 2, nil),
		},
		scores: scores,
		cost:   0.5,
	}
}

func (m *stubModel) InputDim() int { return 2 }

func (m *stubModel) Params() *rnn.Params { return m.params }

func (m *stubModel) Gradients(batch []dataset.Sequence) (float64, *rnn.Params, error) {
	m.steps++
	grads := rnn.ZerosLike(m.params)
	grads.C.Set(0, 0, 1)
	return m.cost, grads, nil
}

func (m *stubModel) Errors(batch []dataset.Sequence) (float64, error) {
	i := m.calls
	if i >= len(m.scores) {
		i = len(m.scores) - 1
	}
	m.calls++
	return m.scores[i], nil
}

func (m *stubModel) NLL(batch []dataset.Sequence) (float64, error) {
	return m.Errors(batch)
}

type recordingReporter struct {
	rounds  []*models.ValidationRound
	summary *models.RunSummary
}

func (r *recordingReporter) ReportRound(_ context.Context, round *models.ValidationRound) error {
	r.rounds = append(r.rounds, round)
	return nil
}

func (r *recordingReporter) ReportSummary(_ context.Context, summary *models.RunSummary) error {
	r.summary = summary
	return nil
}

func (r *recordingReporter) Close() error { return nil }

func constantPartition(t *testing.T, name string, n int) *dataset.Partition {
	t.Helper()
	seqs := make([]dataset.Sequence, n)
	for i := range seqs {
		seqs[i] = dataset.Sequence{X: mat.NewDense(1, 2, []float64{float64(i), 1}), Y: []int{i % 2}}
	}
	p, err := dataset.NewPartition(name, seqs)
	require.NoError(t, err)
	return p
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func scenarioConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.1
	cfg.BatchSize = 1
	cfg.Epochs = 100
	cfg.Patience = 10
	cfg.PatienceIncrease = 2
	cfg.ImprovementThreshold = 0.995
	return cfg
}

func TestTrainerEarlyStoppingScenario(t *testing.T) {
	model := newStubModel(1.0, 0.5, 0.51, 0.506)
	split := &dataset.Split{
		Train: constantPartition(t, "train", 5),
		Valid: constantPartition(t, "valid", 1),
	}
	reporter := &recordingReporter{}

	tr, err := NewTrainer(model, split, scenarioConfig(), reporter, quietLogger())
	require.NoError(t, err)

	summary, err := tr.Run(context.Background())
	require.NoError(t, err)

	// Five batches per epoch and patience/2 = 5, so validation runs after
	// iterations 4, 9 and 14. Only the 0.5 reading beats best·0.995 with
	// iter·2 above the current patience, raising it to 18.
	require.Len(t, reporter.rounds, 3)
	iters := []int{4, 9, 14}
	scores := []float64{1.0, 0.5, 0.51}
	improved := []bool{true, true, false}
	raised := []bool{false, true, false}
	patience := []float64{10, 18, 18}
	for i, round := range reporter.rounds {
		assert.Equal(t, iters[i], round.Iteration, "round %d", i)
		assert.Equal(t, scores[i], round.ValidationScore, "round %d", i)
		assert.Equal(t, improved[i], round.Improved, "round %d", i)
		assert.Equal(t, raised[i], round.PatienceRaised, "round %d", i)
		assert.Equal(t, patience[i], round.Patience, "round %d", i)
		assert.Equal(t, tr.RunID(), round.RunID)
		assert.Nil(t, round.TestScore)
	}
	assert.Equal(t, 2, reporter.rounds[1].Epoch)
	assert.Equal(t, 5, reporter.rounds[1].Minibatch)
	assert.Equal(t, 5, reporter.rounds[1].NumMinibatches)

	assert.Equal(t, constants.StopPatienceExhausted, summary.StopReason)
	assert.Equal(t, 19, summary.Iterations)
	assert.Equal(t, 19, model.steps)
	assert.Equal(t, 4, summary.Epochs)
	assert.Equal(t, 18.0, summary.Patience)
	assert.Equal(t, 0.5, summary.BestValidation)
	assert.Equal(t, 9, summary.BestIteration)
	assert.Same(t, summary, reporter.summary)
	assert.Equal(t, tr.RunID(), summary.RunID)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))

	// Every step applied -rate·grad to c[0,0].
	assert.InDelta(t, -0.1*19, model.params.C.At(0, 0), 1e-9)
}

func TestTrainerEpochCeiling(t *testing.T) {
	model := newStubModel(1.0, 0.9, 0.8, 0.7, 0.6, 0.5)
	split := &dataset.Split{
		Train: constantPartition(t, "train", 5),
		Valid: constantPartition(t, "valid", 2),
	}
	cfg := scenarioConfig()
	cfg.Patience = 1000
	cfg.Epochs = 3

	tr, err := NewTrainer(model, split, cfg, nil, quietLogger())
	require.NoError(t, err)
	summary, err := tr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, constants.StopEpochCeiling, summary.StopReason)
	assert.Equal(t, 3, summary.Epochs)
	assert.Equal(t, 15, summary.Iterations)
	assert.Equal(t, 15, model.steps)
	// Three rounds over two validation batches each, averaged pairwise.
	assert.Equal(t, 6, model.calls)
	assert.InDelta(t, 0.55, summary.BestValidation, 1e-12)
}

func TestTrainerRunResetsMomentum(t *testing.T) {
	model := newStubModel(1.0)
	split := &dataset.Split{
		Train: constantPartition(t, "train", 2),
		Valid: constantPartition(t, "valid", 1),
	}
	cfg := scenarioConfig()
	cfg.Momentum = 0.5
	cfg.Patience = 1000
	cfg.Epochs = 1

	tr, err := NewTrainer(model, split, cfg, nil, quietLogger())
	require.NoError(t, err)

	// Two steps from zero velocity: v = -0.1, then v = 0.5·v - 0.1 = -0.15.
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -0.25, model.params.C.At(0, 0), 1e-12)

	// A second run starts from zero velocity again.
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -0.5, model.params.C.At(0, 0), 1e-12)
	assert.Equal(t, 4, model.steps)
}

func TestTrainerReportsTestError(t *testing.T) {
	model := newStubModel(0.25)
	split := &dataset.Split{
		Train: constantPartition(t, "train", 4),
		Valid: constantPartition(t, "valid", 1),
		Test:  constantPartition(t, "test", 2),
	}
	cfg := scenarioConfig()
	cfg.Epochs = 1
	reporter := &recordingReporter{}

	tr, err := NewTrainer(model, split, cfg, reporter, quietLogger())
	require.NoError(t, err)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, reporter.rounds, 1)
	require.NotNil(t, reporter.rounds[0].TestScore)
	assert.Equal(t, 0.25, *reporter.rounds[0].TestScore)
	// The stub does not expose probabilities, so no AUC.
	assert.Nil(t, reporter.rounds[0].ValidationAUC)
}

func TestTrainerCancellation(t *testing.T) {
	model := newStubModel(1.0)
	split := &dataset.Split{
		Train: constantPartition(t, "train", 5),
		Valid: constantPartition(t, "valid", 1),
	}
	tr, err := NewTrainer(model, split, scenarioConfig(), nil, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, constants.StopCancelled, summary.StopReason)
	assert.Equal(t, 0, model.steps)
}

func TestTrainerNumericalDegeneracy(t *testing.T) {
	model := newStubModel(1.0)
	model.cost = math.NaN()
	split := &dataset.Split{
		Train: constantPartition(t, "train", 5),
		Valid: constantPartition(t, "valid", 1),
	}
	tr, err := NewTrainer(model, split, scenarioConfig(), nil, quietLogger())
	require.NoError(t, err)

	_, err = tr.Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrNumericalDegeneracy)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNumerical))
}

func TestNewTrainerValidation(t *testing.T) {
	split := &dataset.Split{
		Train: constantPartition(t, "train", 5),
		Valid: constantPartition(t, "valid", 1),
	}

	_, err := NewTrainer(nil, split, scenarioConfig(), nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	bad := scenarioConfig()
	bad.LearningRate = 0
	_, err = NewTrainer(newStubModel(1), split, bad, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	wide := &dataset.Split{
		Train: constantPartition(t, "train", 5),
		Valid: constantPartition(t, "valid", 1),
	}
	_, err = NewTrainer(&wideModel{newStubModel(1)}, wide, scenarioConfig(), nil, nil)
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	big := scenarioConfig()
	big.BatchSize = 2
	_, err = NewTrainer(newStubModel(1), split, big, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	_, err = NewTrainer(newStubModel(1), &dataset.Split{Train: split.Train}, scenarioConfig(), nil, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyPartition)
}

type wideModel struct {
	*stubModel
}

func (m *wideModel) InputDim() int { return 3 }

func TestTrainerSeparableSmoke(t *testing.T) {
	opts := dataset.DefaultSyntheticOptions()
	split, err := dataset.GenerateGaussian(opts)
	require.NoError(t, err)

	model, err := rnn.NewSequenceModel(rnn.ModelConfig{
		InputDim:   opts.Dim,
		HiddenDim:  8,
		Classes:    2,
		Activation: constants.ActivationTanh,
		L2Reg:      1e-5,
	}, rand.New(rand.NewSource(1234)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.LearningRate = 0.1
	cfg.BatchSize = 10
	cfg.Epochs = 30
	reporter := &recordingReporter{}

	tr, err := NewTrainer(model, split, cfg, reporter, quietLogger())
	require.NoError(t, err)
	summary, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.StopEpochCeiling, summary.StopReason)

	trainErr, err := model.Errors(split.Train.Sequences)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, 1-trainErr, 0.95)

	require.NotEmpty(t, reporter.rounds)
	last := reporter.rounds[len(reporter.rounds)-1]
	assert.Less(t, last.ValidationScore, 0.05)
	require.NotNil(t, last.ValidationAUC)
	assert.Greater(t, *last.ValidationAUC, 0.95)
}
