package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "seqrnn"
	AppDescription = "Recurrent sequence classifier trainer"
	AppVersion     = "0.1.0"

	// Environment variable prefix consumed by viper
	EnvPrefix = "SEQRNN"

	// Default logging values
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// Model defaults
	DefaultHiddenDim  = 0 // 0 sizes the hidden layer to the input dimension
	DefaultActivation = ActivationTanh
	DefaultSeed       = 1234

	// Training defaults
	DefaultLearningRate         = 7.2e-4 * 2
	DefaultL2Reg                = 0.00001
	DefaultBatchSize            = 1
	DefaultEpochs               = 1000
	DefaultPatience             = 10000
	DefaultPatienceIncrease     = 2.0
	DefaultImprovementThreshold = 0.995
	DefaultValidationMetric     = MetricError

	// Data defaults
	DefaultSource          = SourceSynthetic
	DefaultSequenceLength  = 12
	DefaultHoldoutSession  = 2
	DefaultMNISTTrainSize  = 50000
	DefaultSyntheticSeqs   = 200
	DefaultSyntheticSteps  = 12
	DefaultSyntheticDim    = 4
	DefaultSyntheticSpread = 3.0

	// Reporting defaults
	DefaultMetricsAddr              = ":9090"
	DefaultMetricsPath              = "/metrics"
	DefaultInfluxMeasurement        = "training_validation"
	DefaultInfluxSummaryMeasurement = "training_summary"
	DefaultRedisStream              = "seqrnn:rounds"
	DefaultRedisStreamMaxLen        = 10000
	DefaultStorageTimeout           = 10 * time.Second
	DefaultShutdownTimeout          = 5 * time.Second
	DefaultPostgresRunsTable        = "training_runs"
	DefaultPostgresRoundTable       = "training_rounds"
)

// Activation functions supported by the recurrent layer
const (
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
)

// Validation metrics driving early stopping
const (
	MetricError = "error"
	MetricNLL   = "nll"
)

// Data sources
const (
	SourceCSV       = "csv"
	SourceMNIST     = "mnist"
	SourceSynthetic = "synthetic"
)

// Data layouts
const (
	LayoutFlat = "flat"
	LayoutRows = "rows"
)

// Partition names
const (
	PartitionTrain = "train"
	PartitionValid = "valid"
	PartitionTest  = "test"
)

// Stop reasons reported in a run summary
const (
	StopPatienceExhausted = "patience_exhausted"
	StopEpochCeiling      = "epoch_ceiling"
	StopCancelled         = "cancelled"
)
