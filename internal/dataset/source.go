package dataset

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Options selects and configures a data source.
type Options struct {
	Source         string           `mapstructure:"source"`
	Path           string           `mapstructure:"path"`
	Layout         string           `mapstructure:"layout"`
	SequenceLength int              `mapstructure:"sequence_length"`
	HoldoutSession int              `mapstructure:"holdout_session"`
	Normalize      bool             `mapstructure:"normalize"`
	MNISTDir       string           `mapstructure:"mnist_dir"`
	MNISTTrainSize int              `mapstructure:"mnist_train_size"`
	S3             S3Options        `mapstructure:"s3"`
	Synthetic      SyntheticOptions `mapstructure:"synthetic"`
}

// Validate checks the options of the selected source only.
func (o Options) Validate() error {
	verrs := errors.NewValidationErrors()
	if o.SequenceLength <= 0 {
		verrs.Add("data.sequence_length", errors.CodeOutOfRange, "must be positive", o.SequenceLength)
	}
	switch o.Source {
	case constants.SourceCSV:
		if o.Path == "" && !o.S3.Enabled() {
			verrs.Add("data.path", errors.CodeMissingField, "a local path or an S3 bucket and key is required", o.Path)
		}
		if o.HoldoutSession < 0 {
			verrs.Add("data.holdout_session", errors.CodeOutOfRange, "must not be negative", o.HoldoutSession)
		}
	case constants.SourceMNIST:
		if o.MNISTDir == "" {
			verrs.Add("data.mnist_dir", errors.CodeMissingField, "is required", o.MNISTDir)
		}
		if o.Layout != "" && o.Layout != constants.LayoutFlat && o.Layout != constants.LayoutRows {
			verrs.Add("data.layout", errors.CodeInvalidConfig, "must be flat or rows", o.Layout)
		}
		if o.MNISTTrainSize <= 0 {
			verrs.Add("data.mnist_train_size", errors.CodeOutOfRange, "must be positive", o.MNISTTrainSize)
		}
	case constants.SourceSynthetic:
		if err := o.Synthetic.Validate(); err != nil {
			if ve, ok := err.(*errors.ValidationErrors); ok {
				verrs.Errors = append(verrs.Errors, ve.Errors...)
			}
		}
	default:
		verrs.Add("data.source", errors.CodeUnknownSource,
			fmt.Sprintf("must be one of %s, %s, %s", constants.SourceCSV, constants.SourceMNIST, constants.SourceSynthetic),
			o.Source)
	}
	return verrs.ErrorOrNil()
}

// Source produces the partitions of one training run.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Split, error)
}

// NewSource returns the source selected by opts.Source
func NewSource(opts Options, logger *logrus.Logger) (Source, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch opts.Source {
	case constants.SourceCSV:
		return &recordingsSource{opts: opts, logger: logger}, nil
	case constants.SourceMNIST:
		return &mnistSource{opts: opts, logger: logger}, nil
	default:
		return &syntheticSource{opts: opts, logger: logger}, nil
	}
}

type recordingsSource struct {
	opts   Options
	logger *logrus.Logger
}

func (s *recordingsSource) Name() string {
	return constants.SourceCSV
}

func (s *recordingsSource) Load(ctx context.Context) (*Split, error) {
	rec, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	split, err := rec.LeaveOneSessionOut(s.opts.HoldoutSession, s.opts.Normalize, s.opts.SequenceLength)
	if err != nil {
		return nil, err
	}
	logSplit(s.logger, s.Name(), split)
	return split, nil
}

func (s *recordingsSource) read(ctx context.Context) (*Recordings, error) {
	if s.opts.Path == "" {
		fetcher, err := NewS3Fetcher(s.opts.S3, s.logger)
		if err != nil {
			return nil, err
		}
		return fetcher.FetchRecordings(ctx)
	}

	f, err := os.Open(s.opts.Path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeData, errors.CodeDataNotFound,
			fmt.Sprintf("failed to open %s", s.opts.Path))
	}
	defer f.Close()
	return ReadRecordings(f)
}

type mnistSource struct {
	opts   Options
	logger *logrus.Logger
}

func (s *mnistSource) Name() string {
	return constants.SourceMNIST
}

func (s *mnistSource) Load(ctx context.Context) (*Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	split, err := LoadMNIST(s.opts.MNISTDir, s.opts.MNISTTrainSize, s.opts.Layout, s.opts.SequenceLength)
	if err != nil {
		return nil, err
	}
	logSplit(s.logger, s.Name(), split)
	return split, nil
}

type syntheticSource struct {
	opts   Options
	logger *logrus.Logger
}

func (s *syntheticSource) Name() string {
	return constants.SourceSynthetic
}

func (s *syntheticSource) Load(ctx context.Context) (*Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	split, err := GenerateGaussian(s.opts.Synthetic)
	if err != nil {
		return nil, err
	}
	logSplit(s.logger, s.Name(), split)
	return split, nil
}

func logSplit(logger *logrus.Logger, source string, split *Split) {
	fields := logrus.Fields{
		"source":      source,
		"train_seqs":  split.Train.Len(),
		"valid_seqs":  split.Valid.Len(),
		"input_dim":   split.Train.Dim(),
		"train_steps": split.Train.Steps(),
	}
	if split.Test != nil {
		fields["test_seqs"] = split.Test.Len()
	}
	logger.WithFields(fields).Info("Loaded dataset")
}
