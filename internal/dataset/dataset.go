package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Sequence is one independent input sequence with a class label per timestep.
type Sequence struct {
	X *mat.Dense // T x D
	Y []int      // len T
}

// NewSequence pairs x with its labels, checking that they line up.
func NewSequence(x *mat.Dense, y []int) (Sequence, error) {
	if x == nil {
		return Sequence{}, errors.NewDataError(errors.CodeMalformedData, "sequence features are nil")
	}
	r, _ := x.Dims()
	if r != len(y) {
		return Sequence{}, errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("sequence has %d steps but %d labels", r, len(y)))
	}
	return Sequence{X: x, Y: y}, nil
}

// Len returns the number of timesteps
func (s Sequence) Len() int {
	return len(s.Y)
}

// Partition is a named, read-only list of sequences sharing one feature width.
type Partition struct {
	Name      string
	Sequences []Sequence

	dim int
}

// NewPartition validates that every sequence has the same width.
func NewPartition(name string, seqs []Sequence) (*Partition, error) {
	if len(seqs) == 0 {
		return nil, errors.NewDataError(errors.CodeEmptyPartition,
			fmt.Sprintf("partition %q has no sequences", name))
	}
	dim := -1
	for i, s := range seqs {
		if s.X == nil {
			return nil, errors.NewDataError(errors.CodeMalformedData,
				fmt.Sprintf("partition %q sequence %d has nil features", name, i))
		}
		r, c := s.X.Dims()
		if dim < 0 {
			dim = c
		}
		if c != dim {
			return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
				fmt.Sprintf("partition %q sequence %d has width %d, expected %d", name, i, c, dim))
		}
		if r != len(s.Y) {
			return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
				fmt.Sprintf("partition %q sequence %d has %d steps but %d labels", name, i, r, len(s.Y)))
		}
	}
	return &Partition{Name: name, Sequences: seqs, dim: dim}, nil
}

// Len returns the number of sequences
func (p *Partition) Len() int {
	return len(p.Sequences)
}

// Dim returns the feature width
func (p *Partition) Dim() int {
	return p.dim
}

// Steps returns the total number of timesteps across all sequences
func (p *Partition) Steps() int {
	n := 0
	for _, s := range p.Sequences {
		n += s.Len()
	}
	return n
}

// MaxLabel returns the largest label in the partition
func (p *Partition) MaxLabel() int {
	max := -1
	for _, s := range p.Sequences {
		for _, y := range s.Y {
			if y > max {
				max = y
			}
		}
	}
	return max
}

// NumBatches returns how many full minibatches of size sequences fit. The
// trailing remainder is never visited.
func (p *Partition) NumBatches(size int) int {
	if size <= 0 {
		return 0
	}
	return len(p.Sequences) / size
}

// Batch returns minibatch index of the given size.
func (p *Partition) Batch(index, size int) ([]Sequence, error) {
	if size <= 0 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("batch size must be positive, got %d", size))
	}
	if index < 0 || index >= p.NumBatches(size) {
		return nil, errors.NewDataError(errors.CodeInsufficientData,
			fmt.Sprintf("partition %q has no minibatch %d of size %d", p.Name, index, size))
	}
	return p.Sequences[index*size : (index+1)*size], nil
}

// Split holds the partitions of one training run. Test is optional.
type Split struct {
	Train *Partition
	Valid *Partition
	Test  *Partition
}

// Validate checks that train and valid exist and that all partitions agree
// on the feature width.
func (s *Split) Validate() error {
	if s == nil || s.Train == nil {
		return errors.NewDataError(errors.CodeEmptyPartition, "training partition is missing")
	}
	if s.Valid == nil {
		return errors.NewDataError(errors.CodeEmptyPartition, "validation partition is missing")
	}
	for _, p := range []*Partition{s.Valid, s.Test} {
		if p == nil {
			continue
		}
		if p.Dim() != s.Train.Dim() {
			return errors.NewShapeError(errors.CodeDimensionMismatch,
				fmt.Sprintf("partition %q has width %d, train has %d", p.Name, p.Dim(), s.Train.Dim()))
		}
	}
	return nil
}

// Classes returns one more than the largest label seen in any partition.
func (s *Split) Classes() int {
	max := s.Train.MaxLabel()
	for _, p := range []*Partition{s.Valid, s.Test} {
		if p != nil && p.MaxLabel() > max {
			max = p.MaxLabel()
		}
	}
	return max + 1
}

// FromFlat chunks the rows of x (N x D) into consecutive sequences of seqLen
// rows. Rows that do not fill a final sequence are dropped.
func FromFlat(name string, x *mat.Dense, y []int, seqLen int) (*Partition, error) {
	if x == nil {
		return nil, errors.NewDataError(errors.CodeMalformedData, "features are nil")
	}
	n, d := x.Dims()
	if n != len(y) {
		return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("%d rows but %d labels", n, len(y)))
	}
	if seqLen <= 0 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("sequence length must be positive, got %d", seqLen))
	}
	count := n / seqLen
	seqs := make([]Sequence, 0, count)
	for i := 0; i < count; i++ {
		lo, hi := i*seqLen, (i+1)*seqLen
		seqs = append(seqs, Sequence{
			X: x.Slice(lo, hi, 0, d).(*mat.Dense),
			Y: y[lo:hi],
		})
	}
	return NewPartition(name, seqs)
}

// FromTensor builds one sequence per example of x (N x T x D). The example
// label is repeated at every timestep.
func FromTensor(name string, x [][][]float64, y []int) (*Partition, error) {
	if len(x) != len(y) {
		return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("%d examples but %d labels", len(x), len(y)))
	}
	seqs := make([]Sequence, 0, len(x))
	for i, example := range x {
		if len(example) == 0 || len(example[0]) == 0 {
			return nil, errors.NewDataError(errors.CodeMalformedData,
				fmt.Sprintf("example %d is empty", i))
		}
		steps, d := len(example), len(example[0])
		data := make([]float64, 0, steps*d)
		for t, row := range example {
			if len(row) != d {
				return nil, errors.NewShapeError(errors.CodeDimensionMismatch,
					fmt.Sprintf("example %d step %d has width %d, expected %d", i, t, len(row), d))
			}
			data = append(data, row...)
		}
		seqs = append(seqs, Sequence{
			X: mat.NewDense(steps, d, data),
			Y: repeatLabel(y[i], steps),
		})
	}
	return NewPartition(name, seqs)
}

func repeatLabel(label, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = label
	}
	return out
}

// partitionName maps an index in a Split onto its conventional name.
func partitionName(i int) string {
	switch i {
	case 0:
		return constants.PartitionTrain
	case 1:
		return constants.PartitionValid
	default:
		return constants.PartitionTest
	}
}
