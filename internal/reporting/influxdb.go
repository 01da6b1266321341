package reporting

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/models"
)

const influxSink = "influxdb"

// InfluxConfig configures the InfluxDB sink
type InfluxConfig struct {
	Enabled            bool          `mapstructure:"enabled" json:"enabled"`
	URL                string        `mapstructure:"url" json:"url"`
	Token              string        `mapstructure:"token" json:"-"`
	Organization       string        `mapstructure:"organization" json:"organization"`
	Bucket             string        `mapstructure:"bucket" json:"bucket"`
	Measurement        string        `mapstructure:"measurement" json:"measurement"`
	SummaryMeasurement string        `mapstructure:"summary_measurement" json:"summary_measurement"`
	UseGZip            bool          `mapstructure:"use_gzip" json:"use_gzip"`
	Timeout            time.Duration `mapstructure:"timeout" json:"timeout"`
}

// pointWriter is the subset of api.WriteAPIBlocking used by the reporter
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxReporter writes one point per validation round and one per run
// summary. Writes are blocking so a failed write surfaces in the loop.
type InfluxReporter struct {
	config InfluxConfig
	client influxdb2.Client
	writer pointWriter
	logger *logrus.Logger
}

// NewInfluxReporter creates a reporter; Connect must be called before use.
func NewInfluxReporter(cfg InfluxConfig, logger *logrus.Logger) *InfluxReporter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Measurement == "" {
		cfg.Measurement = constants.DefaultInfluxMeasurement
	}
	if cfg.SummaryMeasurement == "" {
		cfg.SummaryMeasurement = constants.DefaultInfluxSummaryMeasurement
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = constants.DefaultStorageTimeout
	}
	return &InfluxReporter{config: cfg, logger: logger}
}

func newInfluxReporterWithWriter(cfg InfluxConfig, w pointWriter, logger *logrus.Logger) *InfluxReporter {
	r := NewInfluxReporter(cfg, logger)
	r.writer = w
	return r
}

// Connect pings the server and opens the blocking write API
func (r *InfluxReporter) Connect(ctx context.Context) error {
	if r.writer != nil {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetUseGZip(r.config.UseGZip)
	options.SetHTTPRequestTimeout(uint(r.config.Timeout.Seconds()))
	client := influxdb2.NewClientWithOptions(r.config.URL, r.config.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		if err == nil {
			err = errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
		}
		return errors.NewSinkConnectionError(influxSink, r.config.URL, err)
	}

	r.client = client
	r.writer = client.WriteAPIBlocking(r.config.Organization, r.config.Bucket)

	r.logger.WithFields(logrus.Fields{
		"url":          r.config.URL,
		"organization": r.config.Organization,
		"bucket":       r.config.Bucket,
	}).Info("Connected to InfluxDB")
	return nil
}

// ReportRound writes the round as a point tagged with run and metric
func (r *InfluxReporter) ReportRound(ctx context.Context, round *models.ValidationRound) error {
	fields := map[string]interface{}{
		"epoch":            round.Epoch,
		"minibatch":        round.Minibatch,
		"iteration":        round.Iteration,
		"validation_score": round.ValidationScore,
		"train_cost":       round.TrainCost,
		"best_validation":  round.BestValidation,
		"patience":         round.Patience,
		"improved":         round.Improved,
		"patience_raised":  round.PatienceRaised,
	}
	if round.TestScore != nil {
		fields["test_error"] = *round.TestScore
	}
	if round.ValidationAUC != nil {
		fields["validation_auc"] = *round.ValidationAUC
	}

	p := influxdb2.NewPoint(r.config.Measurement,
		map[string]string{"run_id": round.RunID, "metric": round.Metric},
		fields, round.Timestamp)
	return r.write(ctx, p, "write_round")
}

// ReportSummary writes the run summary as a point
func (r *InfluxReporter) ReportSummary(ctx context.Context, summary *models.RunSummary) error {
	p := influxdb2.NewPointWithMeasurement(r.config.SummaryMeasurement).
		AddTag("run_id", summary.RunID).
		AddTag("stop_reason", summary.StopReason).
		AddField("epochs", summary.Epochs).
		AddField("iterations", summary.Iterations).
		AddField("best_validation", summary.BestValidation).
		AddField("best_iteration", summary.BestIteration).
		AddField("patience", summary.Patience).
		AddField("duration_seconds", summary.Duration.Seconds()).
		AddField("epochs_per_second", summary.EpochsPerSecond).
		SetTime(summary.FinishedAt)
	return r.write(ctx, p, "write_summary")
}

func (r *InfluxReporter) write(ctx context.Context, p *write.Point, operation string) error {
	if r.writer == nil {
		return errors.NewSinkConnectionError(influxSink, r.config.URL,
			errors.NewStorageError(errors.CodeConnectionFailed, "not connected"))
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	if err := r.writer.WritePoint(ctx, p); err != nil {
		return errors.WrapSinkError(err, influxSink, r.config.Bucket, operation)
	}
	return nil
}

// Close releases the client
func (r *InfluxReporter) Close() error {
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	r.writer = nil
	return nil
}
