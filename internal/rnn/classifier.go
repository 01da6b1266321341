package rnn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/errors"
)

// MinProbability is the floor applied to probabilities before taking their
// logarithm in NegativeLogLikelihood.
const MinProbability = 1e-300

// LinearClassifier is a softmax (multinomial logistic regression) readout
// over a hidden representation.
type LinearClassifier struct {
	V *mat.Dense // nIn x nOut, zero-initialized
	C *mat.Dense // 1 x nOut, zero-initialized

	nIn  int
	nOut int
}

// NewLinearClassifier creates a zero-initialized readout layer.
func NewLinearClassifier(nIn, nOut int) (*LinearClassifier, error) {
	if nIn <= 0 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("readout input width must be positive, got %d", nIn))
	}
	if nOut < 2 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("readout needs at least 2 classes, got %d", nOut))
	}
	return &LinearClassifier{
		V:    mat.NewDense(nIn, nOut, nil),
		C:    mat.NewDense(1, nOut, nil),
		nIn:  nIn,
		nOut: nOut,
	}, nil
}

// Classes returns the number of output classes
func (l *LinearClassifier) Classes() int {
	return l.nOut
}

// Scores computes o = h·V + c.
func (l *LinearClassifier) Scores(h mat.Matrix) (*mat.Dense, error) {
	r, c := h.Dims()
	if c != l.nIn {
		return nil, errors.NewShapeError(errors.CodeShapeMismatch,
			fmt.Sprintf("readout expects width %d, got %d", l.nIn, c))
	}
	if r == 0 {
		return nil, errors.NewShapeError(errors.CodeDimensionMismatch, "no rows to score")
	}
	o := mat.NewDense(r, l.nOut, nil)
	o.Mul(h, l.V)
	bias := l.C.RawRowView(0)
	for i := 0; i < r; i++ {
		floats.Add(o.RawRowView(i), bias)
	}
	return o, nil
}

// LogProbabilities returns log softmax(h·V + c) row-wise.
func (l *LinearClassifier) LogProbabilities(h mat.Matrix) (*mat.Dense, error) {
	o, err := l.Scores(h)
	if err != nil {
		return nil, err
	}
	logSoftmaxRows(o)
	return o, nil
}

// Probabilities returns softmax(h·V + c) row-wise.
func (l *LinearClassifier) Probabilities(h mat.Matrix) (*mat.Dense, error) {
	p, err := l.LogProbabilities(h)
	if err != nil {
		return nil, err
	}
	p.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) }, p)
	return p, nil
}

// Predict returns the most probable class of every row of h.
func (l *LinearClassifier) Predict(h mat.Matrix) ([]int, error) {
	p, err := l.Probabilities(h)
	if err != nil {
		return nil, err
	}
	return argmaxRows(p), nil
}

// ErrorRate returns the fraction of rows of h whose prediction differs from y.
func (l *LinearClassifier) ErrorRate(h mat.Matrix, y []int) (float64, error) {
	pred, err := l.Predict(h)
	if err != nil {
		return 0, err
	}
	if err := checkLabels(y, len(pred), l.nOut); err != nil {
		return 0, err
	}
	return float64(countMismatches(pred, y)) / float64(len(y)), nil
}

// NegativeLogLikelihood returns -mean_i log p[i, y[i]]. Probabilities below
// MinProbability are clamped so the result stays finite.
func NegativeLogLikelihood(p mat.Matrix, y []int) (float64, error) {
	r, c := p.Dims()
	if err := checkLabels(y, r, c); err != nil {
		return 0, err
	}
	var sum float64
	for i, k := range y {
		sum -= math.Log(math.Max(p.At(i, k), MinProbability))
	}
	return sum / float64(r), nil
}

// logSoftmaxRows replaces every row of o with row - logsumexp(row).
func logSoftmaxRows(o *mat.Dense) {
	r, _ := o.Dims()
	for i := 0; i < r; i++ {
		row := o.RawRowView(i)
		floats.AddConst(-floats.LogSumExp(row), row)
	}
}

// sumNLL returns -sum_i logp[i, y[i]].
func sumNLL(logp *mat.Dense, y []int) float64 {
	var sum float64
	for i, k := range y {
		sum -= logp.At(i, k)
	}
	return sum
}

func argmaxRows(m *mat.Dense) []int {
	r, _ := m.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		out[i] = floats.MaxIdx(m.RawRowView(i))
	}
	return out
}

func countMismatches(pred, y []int) int {
	n := 0
	for i := range y {
		if pred[i] != y[i] {
			n++
		}
	}
	return n
}

func checkLabels(y []int, rows, classes int) error {
	if len(y) != rows {
		return errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("got %d labels for %d rows", len(y), rows))
	}
	if rows == 0 {
		return errors.NewShapeError(errors.CodeDimensionMismatch, "no rows to score")
	}
	for i, k := range y {
		if k < 0 || k >= classes {
			return errors.NewShapeError(errors.CodeInvalidLabel,
				fmt.Sprintf("label %d at row %d outside [0, %d)", k, i, classes))
		}
	}
	return nil
}
