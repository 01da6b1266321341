package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/internal/rnn"
	"github.com/inferloop/seqrnn/pkg/errors"
)

func filledParams(v float64) *rnn.Params {
	fill := func(r, c int) *mat.Dense {
		m := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				m.Set(i, j, v)
			}
		}
		return m
	}
	return &rnn.Params{W: fill(2, 2), U: fill(3, 2), B: fill(1, 2), V: fill(2, 2), C: fill(1, 2)}
}

func TestSGDPlainStep(t *testing.T) {
	params := filledParams(1)
	grads := filledParams(0.5)

	opt := NewSGD(0.1, 0)
	require.NoError(t, opt.Step(params, grads))
	require.NoError(t, opt.Step(params, grads))

	for i, tensor := range params.Tensors() {
		assert.InDelta(t, 0.9, tensor.At(0, 1), 1e-12, rnn.ParamNames[i])
	}
	assert.Nil(t, opt.velocity)
}

func TestSGDMomentum(t *testing.T) {
	params := filledParams(0)
	grads := filledParams(1)

	opt := NewSGD(0.1, 0.9)
	require.NoError(t, opt.Step(params, grads))
	assert.InDelta(t, -0.1, params.W.At(0, 0), 1e-12)

	// v = 0.9·(-0.1) - 0.1 = -0.19
	require.NoError(t, opt.Step(params, grads))
	assert.InDelta(t, -0.29, params.W.At(1, 1), 1e-12)
	assert.InDelta(t, -0.19, opt.velocity.W.At(1, 1), 1e-12)
}

func TestSGDShapeMismatch(t *testing.T) {
	params := filledParams(0)
	grads := filledParams(0)
	grads.V = mat.NewDense(3, 3, nil)

	err := NewSGD(0.1, 0).Step(params, grads)
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
	assert.Equal(t, 0.0, params.W.At(0, 0))
}
