package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/errors"
)

func TestColumnScaler(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})

	scaler := NewColumnScaler()
	require.Error(t, scaler.Transform(x))

	require.NoError(t, scaler.Fit(x))
	assert.Equal(t, []float64{2.5, 5}, scaler.Mean())
	assert.InDelta(t, 1.118034, scaler.Std()[0], 1e-6)
	assert.Equal(t, 0.0, scaler.Std()[1])

	require.NoError(t, scaler.Transform(x))
	assert.InDelta(t, -1.341641, x.At(0, 0), 1e-6)
	assert.InDelta(t, 1.341641, x.At(3, 0), 1e-6)
	assert.Equal(t, 0.0, x.At(2, 1))

	err := scaler.Transform(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}

func TestStandardizeGroups(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 100, 2, 300})
	groups := []int{7, 3, 7, 3}

	require.NoError(t, StandardizeGroups(x, groups))
	assert.Equal(t, []float64{-1, -1, 1, 1}, mat.Col(nil, 0, x))

	err := StandardizeGroups(x, []int{1})
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}
