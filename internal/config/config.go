package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/internal/reporting"
	"github.com/inferloop/seqrnn/internal/rnn"
	"github.com/inferloop/seqrnn/internal/trainer"
	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Config is the full configuration of a training run
type Config struct {
	Model     ModelConfig      `mapstructure:"model" json:"model"`
	Training  trainer.Config   `mapstructure:"training" json:"training"`
	Data      dataset.Options  `mapstructure:"data" json:"data"`
	Logging   LoggingConfig    `mapstructure:"logging" json:"logging"`
	Reporting reporting.Config `mapstructure:"reporting" json:"reporting"`
}

// ModelConfig sizes the network. Input dimension and class count come from
// the data.
type ModelConfig struct {
	Hidden     int    `mapstructure:"n_hidden" json:"n_hidden"`
	Activation string `mapstructure:"activation" json:"activation"`
	Seed       int64  `mapstructure:"seed" json:"seed"`
}

// LoggingConfig selects the logrus level and formatter
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// SetDefaults registers every key with its default so that environment
// variables can override any of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model.n_hidden", constants.DefaultHiddenDim)
	v.SetDefault("model.activation", constants.DefaultActivation)
	v.SetDefault("model.seed", constants.DefaultSeed)

	training := trainer.DefaultConfig()
	v.SetDefault("training.learning_rate", training.LearningRate)
	v.SetDefault("training.l2_reg", training.L2Reg)
	v.SetDefault("training.momentum", training.Momentum)
	v.SetDefault("training.batch_size", training.BatchSize)
	v.SetDefault("training.n_epochs", training.Epochs)
	v.SetDefault("training.patience", training.Patience)
	v.SetDefault("training.patience_increase", training.PatienceIncrease)
	v.SetDefault("training.improvement_threshold", training.ImprovementThreshold)
	v.SetDefault("training.validation_metric", training.ValidationMetric)

	v.SetDefault("data.source", constants.DefaultSource)
	v.SetDefault("data.path", "")
	v.SetDefault("data.layout", constants.LayoutFlat)
	v.SetDefault("data.sequence_length", constants.DefaultSequenceLength)
	v.SetDefault("data.holdout_session", constants.DefaultHoldoutSession)
	v.SetDefault("data.normalize", true)
	v.SetDefault("data.mnist_dir", "")
	v.SetDefault("data.mnist_train_size", constants.DefaultMNISTTrainSize)
	v.SetDefault("data.s3.region", "us-east-1")
	v.SetDefault("data.s3.bucket", "")
	v.SetDefault("data.s3.key", "")
	v.SetDefault("data.s3.endpoint", "")
	v.SetDefault("data.s3.access_key_id", "")
	v.SetDefault("data.s3.secret_access_key", "")
	v.SetDefault("data.s3.session_token", "")
	v.SetDefault("data.s3.force_path_style", false)
	v.SetDefault("data.s3.disable_ssl", false)
	v.SetDefault("data.s3.max_retries", 3)
	v.SetDefault("data.s3.timeout", constants.DefaultStorageTimeout)

	synthetic := dataset.DefaultSyntheticOptions()
	v.SetDefault("data.synthetic.sequences", synthetic.Sequences)
	v.SetDefault("data.synthetic.valid_sequences", synthetic.ValidSequences)
	v.SetDefault("data.synthetic.test_sequences", synthetic.TestSequences)
	v.SetDefault("data.synthetic.steps", synthetic.Steps)
	v.SetDefault("data.synthetic.dim", synthetic.Dim)
	v.SetDefault("data.synthetic.classes", synthetic.Classes)
	v.SetDefault("data.synthetic.spread", synthetic.Spread)
	v.SetDefault("data.synthetic.sessions", synthetic.Sessions)
	v.SetDefault("data.synthetic.seed", synthetic.Seed)

	v.SetDefault("logging.level", constants.DefaultLogLevel)
	v.SetDefault("logging.format", constants.DefaultLogFormat)

	v.SetDefault("reporting.prometheus.enabled", false)
	v.SetDefault("reporting.prometheus.addr", constants.DefaultMetricsAddr)
	v.SetDefault("reporting.prometheus.path", constants.DefaultMetricsPath)
	v.SetDefault("reporting.influxdb.enabled", false)
	v.SetDefault("reporting.influxdb.url", "http://localhost:8086")
	v.SetDefault("reporting.influxdb.token", "")
	v.SetDefault("reporting.influxdb.organization", "")
	v.SetDefault("reporting.influxdb.bucket", "")
	v.SetDefault("reporting.influxdb.measurement", constants.DefaultInfluxMeasurement)
	v.SetDefault("reporting.influxdb.summary_measurement", constants.DefaultInfluxSummaryMeasurement)
	v.SetDefault("reporting.influxdb.use_gzip", false)
	v.SetDefault("reporting.influxdb.timeout", constants.DefaultStorageTimeout)
	v.SetDefault("reporting.redis.enabled", false)
	v.SetDefault("reporting.redis.addr", "localhost:6379")
	v.SetDefault("reporting.redis.password", "")
	v.SetDefault("reporting.redis.db", 0)
	v.SetDefault("reporting.redis.stream", constants.DefaultRedisStream)
	v.SetDefault("reporting.redis.max_len", constants.DefaultRedisStreamMaxLen)
	v.SetDefault("reporting.redis.dial_timeout", constants.DefaultStorageTimeout)
	v.SetDefault("reporting.redis.write_timeout", constants.DefaultStorageTimeout)
	v.SetDefault("reporting.redis.max_retries", 3)
	v.SetDefault("reporting.postgres.enabled", false)
	v.SetDefault("reporting.postgres.dsn", "")
	v.SetDefault("reporting.postgres.host", "localhost")
	v.SetDefault("reporting.postgres.port", 5432)
	v.SetDefault("reporting.postgres.database", constants.AppName)
	v.SetDefault("reporting.postgres.username", constants.AppName)
	v.SetDefault("reporting.postgres.password", "")
	v.SetDefault("reporting.postgres.ssl_mode", "disable")
	v.SetDefault("reporting.postgres.runs_table", constants.DefaultPostgresRunsTable)
	v.SetDefault("reporting.postgres.rounds_table", constants.DefaultPostgresRoundTable)
	v.SetDefault("reporting.postgres.connect_timeout", constants.DefaultStorageTimeout)
}

// Load reads cfgFile (or seqrnn.yaml from the working directory or
// $HOME/.seqrnn), applies SEQRNN_ environment overrides and defaults, and
// validates the result. A missing default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(constants.AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/." + constants.AppName)
		}
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
				"error reading config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			"error unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports all problems together
func (c *Config) Validate() error {
	verrs := errors.NewValidationErrors()

	if c.Model.Hidden < 0 {
		verrs.Add("model.n_hidden", errors.CodeOutOfRange, "must not be negative", c.Model.Hidden)
	}
	if _, err := rnn.ParseActivation(c.Model.Activation); err != nil {
		verrs.Add("model.activation", errors.CodeInvalidConfig, "must be tanh or sigmoid", c.Model.Activation)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		verrs.Add("logging.level", errors.CodeInvalidConfig, "unknown log level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		verrs.Add("logging.format", errors.CodeInvalidConfig, "must be json or text", c.Logging.Format)
	}

	for _, err := range []error{c.Training.Validate(), c.Data.Validate(), c.Reporting.Validate()} {
		merge(verrs, err)
	}
	return verrs.ErrorOrNil()
}

func merge(into *errors.ValidationErrors, err error) {
	if err == nil {
		return
	}
	if ve, ok := err.(*errors.ValidationErrors); ok {
		into.Errors = append(into.Errors, ve.Errors...)
		return
	}
	into.Add("", errors.CodeInvalidConfig, err.Error(), nil)
}

// RNN returns the network configuration for data with inputDim features and
// classes labels. A zero hidden size uses the input dimension.
func (c *Config) RNN(inputDim, classes int) rnn.ModelConfig {
	hidden := c.Model.Hidden
	if hidden == 0 {
		hidden = inputDim
	}
	return rnn.ModelConfig{
		InputDim:   inputDim,
		HiddenDim:  hidden,
		Classes:    classes,
		Activation: c.Model.Activation,
		L2Reg:      c.Training.L2Reg,
	}
}

// String renders the config for debug logs without secrets
func (c *Config) String() string {
	return fmt.Sprintf("model=%+v training=%+v data.source=%s logging=%+v",
		c.Model, c.Training, c.Data.Source, c.Logging)
}
