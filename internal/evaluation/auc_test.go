package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/pkg/errors"
)

func TestBinaryAUC(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		labels []int
		want   float64
	}{
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}, 1},
		{"inverted", []float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}, 0},
		{"unsorted", []float64{8, 0, 6, 3, 7.5, 5}, []int{1, 0, 1, 1, 1, 0}, 0.9375},
		{"all tied", []float64{0.5, 0.5, 0.5, 0.5}, []int{0, 1, 0, 1}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auc, err := BinaryAUC(tt.scores, tt.labels)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, auc, 1e-12)
		})
	}
}

func TestBinaryAUCDoesNotReorderInput(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.5}
	_, err := BinaryAUC(scores, []int{1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1, 0.5}, scores)
}

func TestBinaryAUCErrors(t *testing.T) {
	_, err := BinaryAUC([]float64{0.1, 0.2}, []int{1, 1})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	_, err = BinaryAUC([]float64{0.1, 0.2}, []int{0, 2})
	assert.ErrorIs(t, err, errors.ErrInvalidLabel)

	_, err = BinaryAUC([]float64{0.1}, []int{0, 1})
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}

type fixedScorer struct {
	classes int
}

// PredictProba puts the first feature of every step on class 1.
func (f fixedScorer) PredictProba(seq dataset.Sequence) (*mat.Dense, error) {
	r, _ := seq.X.Dims()
	p := mat.NewDense(r, f.classes, nil)
	for i := 0; i < r; i++ {
		p.Set(i, 1, seq.X.At(i, 0))
		p.Set(i, 0, 1-seq.X.At(i, 0))
	}
	return p, nil
}

func TestSequenceAUC(t *testing.T) {
	seqs := []dataset.Sequence{
		{X: mat.NewDense(2, 1, []float64{0.9, 0.2}), Y: []int{1, 0}},
		{X: mat.NewDense(3, 1, []float64{0.4, 0.7, 0.1}), Y: []int{0, 1, 0}},
	}
	auc, err := SequenceAUC(fixedScorer{classes: 2}, seqs)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, auc, 1e-12)

	_, err = SequenceAUC(fixedScorer{classes: 3}, seqs)
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}
