package trainer

import (
	"math"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Config holds the optimization and early-stopping settings of a run.
type Config struct {
	LearningRate float64 `mapstructure:"learning_rate" json:"learning_rate"`
	// L2Reg is applied by the model's loss; it is carried here because it is
	// configured with the other optimization settings.
	L2Reg                float64 `mapstructure:"l2_reg" json:"l2_reg"`
	Momentum             float64 `mapstructure:"momentum" json:"momentum"`
	BatchSize            int     `mapstructure:"batch_size" json:"batch_size"`
	Epochs               int     `mapstructure:"n_epochs" json:"n_epochs"`
	Patience             int     `mapstructure:"patience" json:"patience"`
	PatienceIncrease     float64 `mapstructure:"patience_increase" json:"patience_increase"`
	ImprovementThreshold float64 `mapstructure:"improvement_threshold" json:"improvement_threshold"`
	ValidationMetric     string  `mapstructure:"validation_metric" json:"validation_metric"`
}

// DefaultConfig returns the settings of the reference EEG experiments
func DefaultConfig() Config {
	return Config{
		LearningRate:         constants.DefaultLearningRate,
		L2Reg:                constants.DefaultL2Reg,
		BatchSize:            constants.DefaultBatchSize,
		Epochs:               constants.DefaultEpochs,
		Patience:             constants.DefaultPatience,
		PatienceIncrease:     constants.DefaultPatienceIncrease,
		ImprovementThreshold: constants.DefaultImprovementThreshold,
		ValidationMetric:     constants.DefaultValidationMetric,
	}
}

// Validate checks every field and reports all problems at once
func (c Config) Validate() error {
	verrs := errors.NewValidationErrors()
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0) {
		verrs.Add("training.learning_rate", errors.CodeOutOfRange, "must be positive and finite", c.LearningRate)
	}
	if c.L2Reg < 0 || math.IsNaN(c.L2Reg) {
		verrs.Add("training.l2_reg", errors.CodeOutOfRange, "must not be negative", c.L2Reg)
	}
	if c.Momentum < 0 || c.Momentum >= 1 || math.IsNaN(c.Momentum) {
		verrs.Add("training.momentum", errors.CodeOutOfRange, "must be in [0, 1)", c.Momentum)
	}
	if c.BatchSize <= 0 {
		verrs.Add("training.batch_size", errors.CodeOutOfRange, "must be positive", c.BatchSize)
	}
	if c.Epochs <= 0 {
		verrs.Add("training.n_epochs", errors.CodeOutOfRange, "must be positive", c.Epochs)
	}
	if c.Patience <= 0 {
		verrs.Add("training.patience", errors.CodeOutOfRange, "must be positive", c.Patience)
	}
	if c.PatienceIncrease < 1 || math.IsNaN(c.PatienceIncrease) {
		verrs.Add("training.patience_increase", errors.CodeOutOfRange, "must be at least 1", c.PatienceIncrease)
	}
	if !(c.ImprovementThreshold > 0 && c.ImprovementThreshold <= 1) {
		verrs.Add("training.improvement_threshold", errors.CodeOutOfRange, "must be in (0, 1]", c.ImprovementThreshold)
	}
	switch c.ValidationMetric {
	case constants.MetricError, constants.MetricNLL:
	default:
		verrs.Add("training.validation_metric", errors.CodeInvalidConfig, "must be error or nll", c.ValidationMetric)
	}
	return verrs.ErrorOrNil()
}
