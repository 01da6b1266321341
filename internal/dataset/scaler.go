package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/seqrnn/pkg/errors"
)

// ColumnScaler z-scores every feature column using population statistics.
type ColumnScaler struct {
	mean   []float64
	std    []float64
	fitted bool
}

// NewColumnScaler creates an unfitted scaler
func NewColumnScaler() *ColumnScaler {
	return &ColumnScaler{}
}

// Fit computes the per-column mean and standard deviation of x.
func (s *ColumnScaler) Fit(x mat.Matrix) error {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return errors.NewDataError(errors.CodeInsufficientData, "cannot fit scaler on empty data")
	}
	s.mean = make([]float64, c)
	s.std = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		s.mean[j], s.std[j] = stat.PopMeanStdDev(col, nil)
	}
	s.fitted = true
	return nil
}

// Transform standardizes x in place. Constant columns are only centered.
func (s *ColumnScaler) Transform(x *mat.Dense) error {
	if !s.fitted {
		return errors.NewDataError(errors.CodeMalformedData, "scaler has not been fitted")
	}
	r, c := x.Dims()
	if c != len(s.mean) {
		return errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("scaler fitted on %d columns, got %d", len(s.mean), c))
	}
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] -= s.mean[j]
			if s.std[j] > 0 {
				row[j] /= s.std[j]
			}
		}
	}
	return nil
}

// Mean returns the fitted column means
func (s *ColumnScaler) Mean() []float64 {
	return s.mean
}

// Std returns the fitted column standard deviations
func (s *ColumnScaler) Std() []float64 {
	return s.std
}

// StandardizeGroups z-scores the rows of x separately for every distinct
// value in groups, each group on its own statistics.
func StandardizeGroups(x *mat.Dense, groups []int) error {
	r, _ := x.Dims()
	if len(groups) != r {
		return errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("%d rows but %d group ids", r, len(groups)))
	}
	for _, g := range uniqueSorted(groups) {
		rows := rowsWhere(groups, g)
		sub := gatherRows(x, rows)
		scaler := NewColumnScaler()
		if err := scaler.Fit(sub); err != nil {
			return err
		}
		if err := scaler.Transform(sub); err != nil {
			return err
		}
		for k, i := range rows {
			copy(x.RawRowView(i), sub.RawRowView(k))
		}
	}
	return nil
}

func rowsWhere(groups []int, g int) []int {
	var rows []int
	for i, v := range groups {
		if v == g {
			rows = append(rows, i)
		}
	}
	return rows
}

// gatherRows copies the given rows of x into a new matrix.
func gatherRows(x *mat.Dense, rows []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for k, i := range rows {
		out.SetRow(k, x.RawRowView(i))
	}
	return out
}
