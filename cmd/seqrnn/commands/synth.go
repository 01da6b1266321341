package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// SynthOptions configures the synth command
type SynthOptions struct {
	Output    string
	Synthetic dataset.SyntheticOptions
}

// NewSynthCmd creates the synth command, which writes a synthetic recordings
// export that the csv source can read back.
func NewSynthCmd() *cobra.Command {
	opts := &SynthOptions{Synthetic: dataset.DefaultSyntheticOptions()}

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic multi-session recordings CSV",
		Example: `  # Four sessions of 50 twelve-item lists
  seqrnn synth --sessions 4 --sequences 50 --output recordings.csv

  # Then train on it with session 1 held out
  seqrnn train --source csv --path recordings.csv --holdout-session 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "output", "o", "-", "Output file (- for stdout)")
	flags.IntVar(&opts.Synthetic.Sessions, "sessions", opts.Synthetic.Sessions, "Number of sessions")
	flags.IntVar(&opts.Synthetic.Sequences, "sequences", opts.Synthetic.Sequences, "Lists per session")
	flags.IntVar(&opts.Synthetic.Steps, "steps", opts.Synthetic.Steps, "Items per list")
	flags.IntVar(&opts.Synthetic.Dim, "dim", opts.Synthetic.Dim, "Feature columns")
	flags.IntVar(&opts.Synthetic.Classes, "classes", opts.Synthetic.Classes, "Number of classes")
	flags.Float64Var(&opts.Synthetic.Spread, "spread", opts.Synthetic.Spread, "Distance between class means")
	flags.Int64Var(&opts.Synthetic.Seed, "seed", opts.Synthetic.Seed, "Random seed")

	return cmd
}

func runSynth(opts *SynthOptions, stdout io.Writer) error {
	rec, err := dataset.GenerateRecordings(opts.Synthetic)
	if err != nil {
		return err
	}

	if opts.Output == "-" || opts.Output == "" {
		return dataset.WriteRecordings(stdout, rec)
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeData, errors.CodeDataNotFound,
			fmt.Sprintf("cannot create %s", opts.Output))
	}
	w := bufio.NewWriter(f)
	if err := dataset.WriteRecordings(w, rec); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.WrapError(err, errors.ErrorTypeData, errors.CodeMalformedData, "flush failed")
	}
	return f.Close()
}
