package rnn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// ModelConfig describes the shape of a SequenceModel
type ModelConfig struct {
	InputDim   int     `json:"input_dim"`
	HiddenDim  int     `json:"hidden_dim"`
	Classes    int     `json:"classes"`
	Activation string  `json:"activation"`
	L2Reg      float64 `json:"l2_reg"`
}

// Validate checks the configuration before any tensor is allocated
func (c ModelConfig) Validate() error {
	verrs := errors.NewValidationErrors()
	if c.InputDim <= 0 {
		verrs.Add("input_dim", errors.CodeOutOfRange, "must be positive", c.InputDim)
	}
	if c.HiddenDim <= 0 {
		verrs.Add("hidden_dim", errors.CodeOutOfRange, "must be positive", c.HiddenDim)
	}
	if c.Classes < 2 {
		verrs.Add("classes", errors.CodeOutOfRange, "must be at least 2", c.Classes)
	}
	if c.L2Reg < 0 || math.IsNaN(c.L2Reg) {
		verrs.Add("l2_reg", errors.CodeOutOfRange, "must be non-negative", c.L2Reg)
	}
	if _, err := ParseActivation(c.Activation); err != nil {
		verrs.Add("activation", errors.CodeInvalidConfig, err.Error(), c.Activation)
	}
	return verrs.ErrorOrNil()
}

// SequenceModel stacks a LinearClassifier on a Recurrent layer. The readout is
// applied to every hidden state, so each timestep is classified.
type SequenceModel struct {
	Recurrent *Recurrent
	Readout   *LinearClassifier

	config ModelConfig
}

// NewSequenceModel builds the recurrent layer and the readout from cfg.
func NewSequenceModel(cfg ModelConfig, rng *rand.Rand, opts ...RecurrentOption) (*SequenceModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	activation, _ := ParseActivation(cfg.Activation)

	recurrent, err := NewRecurrent(rng, cfg.InputDim, cfg.HiddenDim, activation, opts...)
	if err != nil {
		return nil, err
	}
	readout, err := NewLinearClassifier(cfg.HiddenDim, cfg.Classes)
	if err != nil {
		return nil, err
	}
	return &SequenceModel{
		Recurrent: recurrent,
		Readout:   readout,
		config:    cfg,
	}, nil
}

// Config returns the configuration the model was built with
func (m *SequenceModel) Config() ModelConfig {
	return m.config
}

// InputDim returns the expected feature width
func (m *SequenceModel) InputDim() int {
	return m.config.InputDim
}

// Classes returns the number of output classes
func (m *SequenceModel) Classes() int {
	return m.config.Classes
}

// Params returns the live parameter tensors. Mutating them mutates the model.
func (m *SequenceModel) Params() *Params {
	return &Params{
		W: m.Recurrent.W,
		U: m.Recurrent.U,
		B: m.Recurrent.B,
		V: m.Readout.V,
		C: m.Readout.C,
	}
}

// L2 returns sum(W²) + sum(U²) + sum(V²). Biases are not regularized.
func (m *SequenceModel) L2() float64 {
	return sumSquares(m.Recurrent.W) + sumSquares(m.Recurrent.U) + sumSquares(m.Readout.V)
}

// PredictProba returns the per-timestep class probabilities of one sequence.
func (m *SequenceModel) PredictProba(seq dataset.Sequence) (*mat.Dense, error) {
	h, err := m.Recurrent.Forward(seq.X)
	if err != nil {
		return nil, err
	}
	return m.Readout.Probabilities(h)
}

// Predict returns the per-timestep predicted classes of one sequence.
func (m *SequenceModel) Predict(seq dataset.Sequence) ([]int, error) {
	h, err := m.Recurrent.Forward(seq.X)
	if err != nil {
		return nil, err
	}
	return m.Readout.Predict(h)
}

// Errors returns the fraction of misclassified timesteps over seqs.
func (m *SequenceModel) Errors(seqs []dataset.Sequence) (float64, error) {
	if len(seqs) == 0 {
		return 0, errors.NewDataError(errors.CodeEmptyPartition, "no sequences to score")
	}
	var wrong, total int
	for _, seq := range seqs {
		pred, err := m.Predict(seq)
		if err != nil {
			return 0, err
		}
		if err := checkLabels(seq.Y, len(pred), m.config.Classes); err != nil {
			return 0, err
		}
		wrong += countMismatches(pred, seq.Y)
		total += len(seq.Y)
	}
	return float64(wrong) / float64(total), nil
}

// NLL returns the mean negative log-likelihood over all timesteps of seqs,
// without the L2 penalty.
func (m *SequenceModel) NLL(seqs []dataset.Sequence) (float64, error) {
	if len(seqs) == 0 {
		return 0, errors.NewDataError(errors.CodeEmptyPartition, "no sequences to score")
	}
	var sum float64
	var total int
	for _, seq := range seqs {
		_, logp, err := m.forward(seq)
		if err != nil {
			return 0, err
		}
		sum += sumNLL(logp, seq.Y)
		total += len(seq.Y)
	}
	return sum / float64(total), nil
}

// Loss returns NLL(seqs) + λ·L2.
func (m *SequenceModel) Loss(seqs []dataset.Sequence) (float64, error) {
	nll, err := m.NLL(seqs)
	if err != nil {
		return 0, err
	}
	return nll + m.config.L2Reg*m.L2(), nil
}

// Gradients returns Loss(seqs) together with its gradient with respect to
// every parameter tensor. The recurrent gradients are summed over all
// timesteps of all sequences.
func (m *SequenceModel) Gradients(seqs []dataset.Sequence) (float64, *Params, error) {
	if len(seqs) == 0 {
		return 0, nil, errors.NewDataError(errors.CodeEmptyPartition, "no sequences to train on")
	}
	total := 0
	for _, seq := range seqs {
		total += len(seq.Y)
	}
	if total == 0 {
		return 0, nil, errors.NewDataError(errors.CodeEmptyPartition, "sequences have no timesteps")
	}

	params := m.Params()
	grads := ZerosLike(params)
	scale := 1 / float64(total)

	var nll float64
	var dV mat.Dense
	var dH mat.Dense
	for _, seq := range seqs {
		states, logp, err := m.forward(seq)
		if err != nil {
			return 0, nil, err
		}
		nll += sumNLL(logp, seq.Y)

		// ∂loss/∂o = (softmax(o) - onehot(y)) / N, reusing logp's storage.
		dO := logp
		dO.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) * scale }, dO)
		for t, k := range seq.Y {
			dO.Set(t, k, dO.At(t, k)-scale)
		}

		dV.Reset()
		dV.Mul(states.T(), dO)
		grads.V.Add(grads.V, &dV)
		steps, _ := dO.Dims()
		cRow := grads.C.RawRowView(0)
		for t := 0; t < steps; t++ {
			floats.Add(cRow, dO.RawRowView(t))
		}

		dH.Reset()
		dH.Mul(dO, params.V.T())
		if err := m.Recurrent.Backward(seq.X, states, &dH, grads); err != nil {
			return 0, nil, err
		}
	}

	lambda := m.config.L2Reg
	if lambda != 0 {
		addScaled(grads.W, 2*lambda, params.W)
		addScaled(grads.U, 2*lambda, params.U)
		addScaled(grads.V, 2*lambda, params.V)
	}
	cost := nll*scale + lambda*m.L2()
	return cost, grads, nil
}

// forward returns the hidden states and log-probabilities of one sequence.
func (m *SequenceModel) forward(seq dataset.Sequence) (*mat.Dense, *mat.Dense, error) {
	states, err := m.Recurrent.Forward(seq.X)
	if err != nil {
		return nil, nil, err
	}
	logp, err := m.Readout.LogProbabilities(states)
	if err != nil {
		return nil, nil, err
	}
	steps, _ := states.Dims()
	if err := checkLabels(seq.Y, steps, m.config.Classes); err != nil {
		return nil, nil, errors.Annotate(err, "sequence labels")
	}
	return states, logp, nil
}
