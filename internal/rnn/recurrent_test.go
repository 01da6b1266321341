package rnn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/errors"
)

func TestNewRecurrentValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := NewRecurrent(rng, 0, 4, Tanh)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	_, err = NewRecurrent(rng, 3, 0, Tanh)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	_, err = NewRecurrent(nil, 3, 4, Tanh)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	_, err = NewRecurrent(rng, 3, 4, Tanh, WithInitialState([]float64{1, 2}))
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	_, err = NewRecurrent(rng, 3, 4, Tanh, WithWeights(nil, mat.NewDense(4, 4, nil), nil))
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}

func TestNewRecurrentInitialization(t *testing.T) {
	const nIn, nHidden = 6, 10
	r, err := NewRecurrent(rand.New(rand.NewSource(3)), nIn, nHidden, Tanh)
	require.NoError(t, err)

	wBound := math.Sqrt(3.0 / nHidden)
	uBound := math.Sqrt(6.0 / (nIn + nHidden))
	assert.LessOrEqual(t, mat.Max(r.W), wBound)
	assert.GreaterOrEqual(t, mat.Min(r.W), -wBound)
	assert.LessOrEqual(t, mat.Max(r.U), uBound)
	assert.GreaterOrEqual(t, mat.Min(r.U), -uBound)
	assert.Zero(t, mat.Sum(r.B))
	assert.Equal(t, make([]float64, nHidden), r.InitialState())

	// The draws are not degenerate.
	assert.Greater(t, mat.Max(r.W), wBound/2)
	assert.Less(t, mat.Min(r.U), -uBound/4)

	assert.Equal(t, nIn, r.InputDim())
	assert.Equal(t, nHidden, r.HiddenDim())
	assert.Equal(t, "tanh", r.Activation().Name())
}

func TestNewRecurrentSigmoidScalesBothTensors(t *testing.T) {
	tanh, err := NewRecurrent(rand.New(rand.NewSource(5)), 3, 4, Tanh)
	require.NoError(t, err)
	sigmoid, err := NewRecurrent(rand.New(rand.NewSource(5)), 3, 4, Sigmoid)
	require.NoError(t, err)

	var w, u mat.Dense
	w.Scale(4, tanh.W)
	u.Scale(4, tanh.U)
	assert.True(t, mat.EqualApprox(&w, sigmoid.W, 1e-12))
	assert.True(t, mat.EqualApprox(&u, sigmoid.U, 1e-12))
	assert.Zero(t, mat.Sum(sigmoid.B))
}

func TestNewRecurrentSuppliedWeightsAreNotScaled(t *testing.T) {
	w := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4})
	r, err := NewRecurrent(rand.New(rand.NewSource(1)), 3, 2, Sigmoid, WithWeights(w, nil, nil))
	require.NoError(t, err)
	assert.Same(t, w, r.W)
	assert.Equal(t, 0.4, r.W.At(1, 1))
}

func TestRecurrentForward(t *testing.T) {
	// Scalar recurrence: h(t) = tanh(2·x(t) + 0.5·h(t-1) + 0.1).
	r, err := NewRecurrent(rand.New(rand.NewSource(1)), 1, 1, Tanh, WithWeights(
		mat.NewDense(1, 1, []float64{0.5}),
		mat.NewDense(1, 1, []float64{2}),
		mat.NewDense(1, 1, []float64{0.1}),
	), WithInitialState([]float64{0.3}))
	require.NoError(t, err)

	x := mat.NewDense(3, 1, []float64{1, -1, 0.5})
	h, err := r.Forward(x)
	require.NoError(t, err)

	prev := 0.3
	for step, xt := range []float64{1, -1, 0.5} {
		want := math.Tanh(2*xt + 0.5*prev + 0.1)
		assert.InDelta(t, want, h.At(step, 0), 1e-12)
		prev = want
	}
}

func TestRecurrentForwardMatrixForm(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	r, err := NewRecurrent(rng, 3, 4, Sigmoid)
	require.NoError(t, err)
	x := randomDense(rng, 5, 3, 1)

	h, err := r.Forward(x)
	require.NoError(t, err)

	prev := mat.NewDense(1, 4, nil)
	for step := 0; step < 5; step++ {
		var a, carry mat.Dense
		a.Mul(x.Slice(step, step+1, 0, 3), r.U)
		carry.Mul(prev, r.W)
		a.Add(&a, &carry)
		a.Add(&a, r.B)
		a.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, &a)
		assert.InDeltaSlice(t, a.RawRowView(0), h.RawRowView(step), 1e-12)
		prev = &a
	}
}

func TestRecurrentNoLookAhead(t *testing.T) {
	for _, activation := range []Activation{Tanh, Sigmoid} {
		t.Run(activation.Name(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(21))
			r, err := NewRecurrent(rng, 4, 6, activation)
			require.NoError(t, err)

			const steps = 8
			x := randomDense(rng, steps, 4, 1)
			h, err := r.Forward(x)
			require.NoError(t, err)

			for cut := 0; cut < steps-1; cut++ {
				perturbed := mat.DenseCopyOf(x)
				for t2 := cut + 1; t2 < steps; t2++ {
					floats.AddConst(0.75, perturbed.RawRowView(t2))
				}
				hp, err := r.Forward(perturbed)
				require.NoError(t, err)
				for t2 := 0; t2 <= cut; t2++ {
					assert.Equal(t, h.RawRowView(t2), hp.RawRowView(t2), "h(%d) changed after perturbing x(%d..)", t2+1, cut+2)
				}
				assert.NotEqual(t, h.RawRowView(cut+1), hp.RawRowView(cut+1))
			}
		})
	}
}

func TestRecurrentSequencesAreIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	r, err := NewRecurrent(rng, 2, 3, Tanh)
	require.NoError(t, err)
	a := randomDense(rng, 4, 2, 1)
	b := randomDense(rng, 6, 2, 1)

	first, err := r.Forward(a)
	require.NoError(t, err)
	_, err = r.Forward(b)
	require.NoError(t, err)
	again, err := r.Forward(a)
	require.NoError(t, err)
	assert.True(t, mat.Equal(first, again))
}

func TestRecurrentForwardShapeErrors(t *testing.T) {
	r, err := NewRecurrent(rand.New(rand.NewSource(1)), 3, 2, Tanh)
	require.NoError(t, err)

	_, err = r.Forward(mat.NewDense(4, 2, nil))
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	grads := &Params{W: mat.NewDense(2, 2, nil), U: mat.NewDense(3, 2, nil), B: mat.NewDense(1, 2, nil)}
	x := mat.NewDense(4, 3, nil)
	states, err := r.Forward(x)
	require.NoError(t, err)
	err = r.Backward(x, states, mat.NewDense(3, 2, nil), grads)
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}
