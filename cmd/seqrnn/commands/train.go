package commands

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/seqrnn/internal/config"
	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/internal/reporting"
	"github.com/inferloop/seqrnn/internal/rnn"
	"github.com/inferloop/seqrnn/internal/trainer"
	"github.com/inferloop/seqrnn/pkg/models"
)

// GlobalOptions holds the persistent flags of the root command
type GlobalOptions struct {
	ConfigFile string
}

// trainFlags maps command-line flags onto config keys
var trainFlags = []struct {
	name, key string
}{
	{"source", "data.source"},
	{"path", "data.path"},
	{"holdout-session", "data.holdout_session"},
	{"sequence-length", "data.sequence_length"},
	{"mnist-dir", "data.mnist_dir"},
	{"hidden", "model.n_hidden"},
	{"activation", "model.activation"},
	{"seed", "model.seed"},
	{"learning-rate", "training.learning_rate"},
	{"l2", "training.l2_reg"},
	{"momentum", "training.momentum"},
	{"batch-size", "training.batch_size"},
	{"epochs", "training.n_epochs"},
	{"patience", "training.patience"},
	{"metric", "training.validation_metric"},
	{"metrics", "reporting.prometheus.enabled"},
	{"metrics-addr", "reporting.prometheus.addr"},
}

// NewTrainCmd creates the train command
func NewTrainCmd(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a recurrent sequence classifier",
		Long: `Load a dataset, train the recurrent classifier with minibatch SGD and stop when
the validation score stops improving or the epoch ceiling is reached.`,
		Example: `  # Train on the built-in synthetic problem
  seqrnn train --source synthetic --epochs 50

  # Leave session 2 out of an EEG feature export
  seqrnn train --source csv --path features.csv --holdout-session 2 --sequence-length 12

  # MNIST rows as 28-step sequences, with Prometheus metrics
  seqrnn train --source mnist --mnist-dir ./mnist --metrics --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err := runTrain(ctx, viper.GetViper(), global.ConfigFile)
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("source", "", "Data source (csv, mnist, synthetic)")
	flags.String("path", "", "Path of the CSV feature export")
	flags.Int("holdout-session", 0, "Index of the held-out session among the sorted session ids")
	flags.Int("sequence-length", 0, "Timesteps per sequence")
	flags.String("mnist-dir", "", "Directory holding the MNIST IDX files")
	flags.Int("hidden", 0, "Hidden units (0 uses the input dimension)")
	flags.String("activation", "", "Hidden activation (tanh, sigmoid)")
	flags.Int64("seed", 0, "Weight initialization seed")
	flags.Float64("learning-rate", 0, "SGD learning rate")
	flags.Float64("l2", 0, "L2 penalty on W, U and V")
	flags.Float64("momentum", 0, "Classical momentum (0 is plain SGD)")
	flags.Int("batch-size", 0, "Sequences per minibatch")
	flags.Int("epochs", 0, "Epoch ceiling")
	flags.Int("patience", 0, "Initial patience in minibatch iterations")
	flags.String("metric", "", "Validation metric (error, nll)")
	flags.Bool("metrics", false, "Serve Prometheus metrics while training")
	flags.String("metrics-addr", "", "Listen address of the metrics server")

	for _, f := range trainFlags {
		cobra.CheckErr(viper.BindPFlag(f.key, flags.Lookup(f.name)))
	}
	return cmd
}

// runTrain wires config, data, model, reporters and trainer for one run.
func runTrain(ctx context.Context, v *viper.Viper, cfgFile string) (*models.RunSummary, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithField("config", cfg.String()).Debug("Loaded configuration")

	source, err := dataset.NewSource(cfg.Data, logger)
	if err != nil {
		return nil, err
	}
	split, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	model, err := rnn.NewSequenceModel(cfg.RNN(split.Train.Dim(), split.Classes()), rand.New(rand.NewSource(cfg.Model.Seed)))
	if err != nil {
		return nil, err
	}

	reporter, err := reporting.Build(ctx, cfg.Reporting, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := reporter.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close reporters")
		}
	}()

	tr, err := trainer.NewTrainer(model, split, cfg.Training, reporter, logger)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"run_id":     tr.RunID(),
		"source":     source.Name(),
		"input_dim":  model.InputDim(),
		"hidden_dim": model.Config().HiddenDim,
		"classes":    model.Classes(),
		"activation": cfg.Model.Activation,
	}).Info("Model ready")

	return tr.Run(ctx)
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// PrintError writes err to w. At debug level the cause chain follows with the
// stack trace recorded where the error was wrapped.
func PrintError(w io.Writer, v *viper.Viper, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	logger := setupLogger(v.GetString("logging.level"), v.GetString("logging.format"))
	logger.SetOutput(w)
	logger.Debugf("%+v", err)
}
