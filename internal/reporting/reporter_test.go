package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func sampleRound() *models.ValidationRound {
	return &models.ValidationRound{
		RunID:           "run-1",
		Epoch:           2,
		Minibatch:       5,
		NumMinibatches:  5,
		Iteration:       9,
		Metric:          "error",
		ValidationScore: 0.125,
		TestScore:       floatPtr(0.25),
		TrainCost:       0.4,
		BestValidation:  0.125,
		Patience:        18,
		Improved:        true,
		PatienceRaised:  true,
		Timestamp:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func sampleSummary() *models.RunSummary {
	started := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	return &models.RunSummary{
		RunID:           "run-1",
		Epochs:          4,
		Iterations:      19,
		BestValidation:  0.125,
		BestIteration:   9,
		Patience:        18,
		StopReason:      "patience_exhausted",
		Duration:        2 * time.Second,
		EpochsPerSecond: 2,
		StartedAt:       started,
		FinishedAt:      started.Add(2 * time.Second),
	}
}

type countingReporter struct {
	rounds, summaries, closes int
	err                       error
}

func (c *countingReporter) ReportRound(context.Context, *models.ValidationRound) error {
	c.rounds++
	return c.err
}

func (c *countingReporter) ReportSummary(context.Context, *models.RunSummary) error {
	c.summaries++
	return c.err
}

func (c *countingReporter) Close() error {
	c.closes++
	return c.err
}

func TestMultiReporterFansOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	multi := NewMultiReporter(a, nil, b)
	assert.Equal(t, 2, multi.Len())

	ctx := context.Background()
	require.NoError(t, multi.ReportRound(ctx, sampleRound()))
	require.NoError(t, multi.ReportSummary(ctx, sampleSummary()))
	require.NoError(t, multi.Close())

	for _, r := range []*countingReporter{a, b} {
		assert.Equal(t, 1, r.rounds)
		assert.Equal(t, 1, r.summaries)
		assert.Equal(t, 1, r.closes)
	}
}

func TestMultiReporterFirstErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	a, b := &countingReporter{err: boom}, &countingReporter{}
	multi := NewMultiReporter(a, b)

	assert.ErrorIs(t, multi.ReportRound(context.Background(), sampleRound()), boom)
	assert.Equal(t, 0, b.rounds)

	// Close still reaches every sink.
	assert.ErrorIs(t, multi.Close(), boom)
	assert.Equal(t, 1, b.closes)
}

func TestLogReporter(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	r := NewLogReporter(logger)

	require.NoError(t, r.ReportRound(context.Background(), sampleRound()))
	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "epoch 2, minibatch 5/5, validation error 12.500000 %", entries[0].Message)
	assert.Equal(t, "     epoch 2, minibatch 5/5, test error 25.000000 %", entries[1].Message)
	assert.Equal(t, "run-1", entries[0].Data["run_id"])
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)

	hook.Reset()
	round := sampleRound()
	round.Metric = "nll"
	round.TestScore = nil
	require.NoError(t, r.ReportRound(context.Background(), round))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "epoch 2, minibatch 5/5, validation nll 0.125000", hook.LastEntry().Message)

	hook.Reset()
	require.NoError(t, r.ReportSummary(context.Background(), sampleSummary()))
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "The code ran for 4 epochs, with 2.000000 epochs/sec", hook.LastEntry().Message)
	assert.Equal(t, "patience_exhausted", hook.LastEntry().Data["stop_reason"])
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())

	cfg := Config{
		Influx:   InfluxConfig{Enabled: true},
		Redis:    RedisConfig{Enabled: true},
		Postgres: PostgresConfig{Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	var verrs *apperrors.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Errors, 5)
}

func TestBuildLogOnly(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	multi, err := Build(context.Background(), Config{}, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, multi.Len())
	require.NoError(t, multi.ReportRound(context.Background(), sampleRound()))
	require.NoError(t, multi.Close())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := Build(context.Background(), Config{Redis: RedisConfig{Enabled: true}}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
}
