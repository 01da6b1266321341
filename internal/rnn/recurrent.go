package rnn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/errors"
)

// Recurrent is a single vanilla RNN layer:
//
//	h(t) = act(x(t)·U + h(t-1)·W + b), t = 1..T
//
// Every sequence starts from h0; no state is carried between sequences.
type Recurrent struct {
	W *mat.Dense // hidden x hidden
	U *mat.Dense // input x hidden
	B *mat.Dense // 1 x hidden

	h0         []float64
	activation Activation
	nIn        int
	nHidden    int
}

// RecurrentOption customizes a Recurrent layer at construction.
type RecurrentOption func(*Recurrent)

// WithInitialState sets h0. The slice is copied.
func WithInitialState(h0 []float64) RecurrentOption {
	return func(r *Recurrent) {
		r.h0 = append([]float64(nil), h0...)
	}
}

// WithWeights supplies pre-built W, U and b instead of the random
// initialization. Nil arguments keep the default for that tensor. Supplied
// tensors are used as is, without activation scaling.
func WithWeights(w, u, b *mat.Dense) RecurrentOption {
	return func(r *Recurrent) {
		if w != nil {
			r.W = w
		}
		if u != nil {
			r.U = u
		}
		if b != nil {
			r.B = b
		}
	}
}

// NewRecurrent creates a recurrent layer with nIn input features and nHidden
// units. W is drawn from U[-sqrt(3/H), sqrt(3/H)], U from
// U[-sqrt(6/(D+H)), sqrt(6/(D+H))] and b starts at zero. With the sigmoid
// activation both random tensors are multiplied by 4.
func NewRecurrent(rng *rand.Rand, nIn, nHidden int, activation Activation, opts ...RecurrentOption) (*Recurrent, error) {
	if nIn <= 0 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("input dimension must be positive, got %d", nIn))
	}
	if nHidden <= 0 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("hidden dimension must be positive, got %d", nHidden))
	}
	if activation.apply == nil {
		activation = Tanh
	}
	if rng == nil {
		return nil, errors.NewConfigurationError(errors.CodeMissingField, "random source is required")
	}

	r := &Recurrent{
		activation: activation,
		nIn:        nIn,
		nHidden:    nHidden,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.W == nil {
		bound := math.Sqrt(3.0 / float64(nHidden))
		r.W = uniformDense(rng, nHidden, nHidden, bound*activation.initScale)
	}
	if r.U == nil {
		bound := math.Sqrt(6.0 / float64(nIn+nHidden))
		r.U = uniformDense(rng, nIn, nHidden, bound*activation.initScale)
	}
	if r.B == nil {
		r.B = mat.NewDense(1, nHidden, nil)
	}
	if r.h0 == nil {
		r.h0 = make([]float64, nHidden)
	}

	if err := r.checkShapes(); err != nil {
		return nil, err
	}
	return r, nil
}

// uniformDense draws every entry of a rows x cols matrix from U[-bound, bound].
func uniformDense(rng *rand.Rand, rows, cols int, bound float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * bound
	}
	return mat.NewDense(rows, cols, data)
}

func (r *Recurrent) checkShapes() error {
	check := func(name string, m *mat.Dense, rows, cols int) error {
		gr, gc := m.Dims()
		if gr != rows || gc != cols {
			return errors.NewShapeError(errors.CodeShapeMismatch,
				fmt.Sprintf("%s must be %dx%d, got %dx%d", name, rows, cols, gr, gc))
		}
		return nil
	}
	if err := check("W", r.W, r.nHidden, r.nHidden); err != nil {
		return err
	}
	if err := check("U", r.U, r.nIn, r.nHidden); err != nil {
		return err
	}
	if err := check("b", r.B, 1, r.nHidden); err != nil {
		return err
	}
	if len(r.h0) != r.nHidden {
		return errors.NewShapeError(errors.CodeShapeMismatch,
			fmt.Sprintf("h0 must have %d entries, got %d", r.nHidden, len(r.h0)))
	}
	return nil
}

// InputDim returns the expected width of x(t)
func (r *Recurrent) InputDim() int {
	return r.nIn
}

// HiddenDim returns the number of hidden units
func (r *Recurrent) HiddenDim() int {
	return r.nHidden
}

// Activation returns the layer nonlinearity
func (r *Recurrent) Activation() Activation {
	return r.activation
}

// InitialState returns a copy of h0
func (r *Recurrent) InitialState() []float64 {
	return append([]float64(nil), r.h0...)
}

// Forward runs the recurrence over one sequence x (T x D) and returns the
// hidden states h(1..T) as a T x H matrix.
func (r *Recurrent) Forward(x mat.Matrix) (*mat.Dense, error) {
	steps, d := x.Dims()
	if d != r.nIn {
		return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("recurrent layer expects %d input features, got %d", r.nIn, d))
	}
	if steps == 0 {
		return nil, errors.NewShapeError(errors.CodeDimensionMismatch, "empty sequence")
	}

	// Row t of x·U only involves x(t), so the input projection is done in one product.
	states := mat.NewDense(steps, r.nHidden, nil)
	states.Mul(x, r.U)

	bias := r.B.RawRowView(0)
	var carry mat.VecDense
	prev := r.h0
	for t := 0; t < steps; t++ {
		carry.MulVec(r.W.T(), mat.NewVecDense(r.nHidden, prev))
		row := states.RawRowView(t)
		floats.Add(row, carry.RawVector().Data)
		floats.Add(row, bias)
		for j, v := range row {
			row[j] = r.activation.apply(v)
		}
		prev = row
	}
	return states, nil
}

// Backward runs backpropagation through time for one sequence. states are
// the outputs of Forward(x) and dH holds ∂loss/∂h(t) contributed directly by
// the readout. Gradients for W, U and b are added into grads, so callers can
// accumulate over many sequences.
func (r *Recurrent) Backward(x mat.Matrix, states, dH *mat.Dense, grads *Params) error {
	steps, d := x.Dims()
	if d != r.nIn {
		return errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("recurrent layer expects %d input features, got %d", r.nIn, d))
	}
	sr, sc := states.Dims()
	hr, hc := dH.Dims()
	if sr != steps || hr != steps || sc != r.nHidden || hc != r.nHidden {
		return errors.NewShapeError(errors.CodeShapeMismatch, "hidden state gradient does not match sequence")
	}

	da := make([]float64, r.nHidden)
	daVec := mat.NewVecDense(r.nHidden, da)
	dNext := make([]float64, r.nHidden)
	xt := make([]float64, r.nIn)
	var carry mat.VecDense

	for t := steps - 1; t >= 0; t-- {
		h := states.RawRowView(t)
		dh := dH.RawRowView(t)
		for j := range da {
			da[j] = (dh[j] + dNext[j]) * r.activation.derivative(h[j])
		}

		mat.Row(xt, t, x)
		grads.U.RankOne(grads.U, 1, mat.NewVecDense(r.nIn, xt), daVec)

		prev := r.h0
		if t > 0 {
			prev = states.RawRowView(t - 1)
		}
		grads.W.RankOne(grads.W, 1, mat.NewVecDense(r.nHidden, prev), daVec)
		floats.Add(grads.B.RawRowView(0), da)

		// ∂loss/∂h(t-1) through the recurrence is W·da.
		carry.MulVec(r.W, daVec)
		copy(dNext, carry.RawVector().Data)
	}
	return nil
}
