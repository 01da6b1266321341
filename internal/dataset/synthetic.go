package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// SyntheticOptions controls the Gaussian sequence generator.
type SyntheticOptions struct {
	Sequences      int     `mapstructure:"sequences"`
	ValidSequences int     `mapstructure:"valid_sequences"`
	TestSequences  int     `mapstructure:"test_sequences"`
	Steps          int     `mapstructure:"steps"`
	Dim            int     `mapstructure:"dim"`
	Classes        int     `mapstructure:"classes"`
	Spread         float64 `mapstructure:"spread"`
	Sessions       int     `mapstructure:"sessions"`
	Seed           int64   `mapstructure:"seed"`
}

// DefaultSyntheticOptions returns a small, clearly separable two-class problem.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Sequences:      constants.DefaultSyntheticSeqs,
		ValidSequences: constants.DefaultSyntheticSeqs / 4,
		Steps:          constants.DefaultSyntheticSteps,
		Dim:            constants.DefaultSyntheticDim,
		Classes:        2,
		Spread:         constants.DefaultSyntheticSpread,
		Sessions:       4,
		Seed:           constants.DefaultSeed,
	}
}

// Validate checks the generator options
func (o SyntheticOptions) Validate() error {
	verrs := errors.NewValidationErrors()
	if o.Sequences <= 0 {
		verrs.Add("synthetic.sequences", errors.CodeOutOfRange, "must be positive", o.Sequences)
	}
	if o.ValidSequences <= 0 {
		verrs.Add("synthetic.valid_sequences", errors.CodeOutOfRange, "must be positive", o.ValidSequences)
	}
	if o.TestSequences < 0 {
		verrs.Add("synthetic.test_sequences", errors.CodeOutOfRange, "must not be negative", o.TestSequences)
	}
	if o.Steps <= 0 {
		verrs.Add("synthetic.steps", errors.CodeOutOfRange, "must be positive", o.Steps)
	}
	if o.Dim <= 0 {
		verrs.Add("synthetic.dim", errors.CodeOutOfRange, "must be positive", o.Dim)
	}
	if o.Classes < 2 {
		verrs.Add("synthetic.classes", errors.CodeOutOfRange, "must be at least 2", o.Classes)
	}
	if o.Spread <= 0 {
		verrs.Add("synthetic.spread", errors.CodeOutOfRange, "must be positive", o.Spread)
	}
	return verrs.ErrorOrNil()
}

// classMean places class k at spread on every feature j with j%classes == k.
func classMean(k, classes, dim int, spread float64) []float64 {
	mean := make([]float64, dim)
	for j := range mean {
		if j%classes == k {
			mean[j] = spread
		}
	}
	return mean
}

// GenerateGaussian draws sequences whose steps are unit-variance Gaussian
// noise around a per-class mean. Each sequence carries one class, repeated at
// every step. Output is deterministic for a given seed.
func GenerateGaussian(opts SyntheticOptions) (*Split, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	counts := []int{opts.Sequences, opts.ValidSequences, opts.TestSequences}
	parts := make([]*Partition, len(counts))
	for i, n := range counts {
		if n == 0 {
			continue
		}
		seqs := make([]Sequence, n)
		for s := range seqs {
			label := rng.Intn(opts.Classes)
			seqs[s] = gaussianSequence(rng, label, opts)
		}
		part, err := NewPartition(partitionName(i), seqs)
		if err != nil {
			return nil, err
		}
		parts[i] = part
	}
	return &Split{Train: parts[0], Valid: parts[1], Test: parts[2]}, nil
}

func gaussianSequence(rng *rand.Rand, label int, opts SyntheticOptions) Sequence {
	mean := classMean(label, opts.Classes, opts.Dim, opts.Spread)
	x := mat.NewDense(opts.Steps, opts.Dim, nil)
	for t := 0; t < opts.Steps; t++ {
		row := x.RawRowView(t)
		for j := range row {
			row[j] = mean[j] + rng.NormFloat64()
		}
	}
	return Sequence{X: x, Y: repeatLabel(label, opts.Steps)}
}

// GenerateRecordings draws a flat recordings table shaped like an EEG export:
// opts.Sessions sessions of opts.Sequences lists each, every list holding
// opts.Steps items. Every session gets its own feature offset and scale so
// per-session normalization has something to remove.
func GenerateRecordings(opts SyntheticOptions) (*Recordings, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Sessions < 2 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("synthetic recordings need at least 2 sessions, got %d", opts.Sessions))
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	rows := opts.Sessions * opts.Sequences * opts.Steps
	rec := &Recordings{
		Session: make([]int, 0, rows),
		Pos:     make([]int, 0, rows),
		Y:       make([]int, 0, rows),
		X:       mat.NewDense(rows, opts.Dim, nil),
	}
	for j := 0; j < opts.Dim; j++ {
		rec.Features = append(rec.Features, fmt.Sprintf("x%d", j))
	}

	i := 0
	for s := 1; s <= opts.Sessions; s++ {
		offset := rng.NormFloat64() * opts.Spread
		scale := 1 + rng.Float64()
		for l := 0; l < opts.Sequences; l++ {
			label := rng.Intn(opts.Classes)
			seq := gaussianSequence(rng, label, opts)
			for t := 0; t < opts.Steps; t++ {
				row := rec.X.RawRowView(i)
				for j, v := range seq.X.RawRowView(t) {
					row[j] = v*scale + offset
				}
				rec.Session = append(rec.Session, s)
				rec.Pos = append(rec.Pos, t+1)
				rec.Y = append(rec.Y, label)
				i++
			}
		}
	}
	return rec, nil
}
