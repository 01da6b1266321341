package reporting

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/models"
)

// PrometheusConfig configures the metrics sink and its HTTP endpoint
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`
	Path    string `mapstructure:"path" json:"path"`
}

// PrometheusReporter exposes training progress as gauges and counters in a
// private registry.
type PrometheusReporter struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *MetricsServer

	validationScore prometheus.Gauge
	testScore       prometheus.Gauge
	validationAUC   prometheus.Gauge
	trainCost       prometheus.Gauge
	bestValidation  prometheus.Gauge
	patience        prometheus.Gauge
	epoch           prometheus.Gauge
	iteration       prometheus.Gauge
	epochsPerSecond prometheus.Gauge
	roundsTotal     prometheus.Counter
	improvedTotal   prometheus.Counter
	patienceRaises  prometheus.Counter
	runsTotal       *prometheus.CounterVec
}

// NewPrometheusReporter registers the training metrics in a new registry
func NewPrometheusReporter(logger *logrus.Logger) *PrometheusReporter {
	if logger == nil {
		logger = logrus.New()
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: constants.AppName, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: constants.AppName, Name: name, Help: help})
	}

	p := &PrometheusReporter{
		logger:          logger,
		registry:        prometheus.NewRegistry(),
		validationScore: gauge("validation_score", "Validation score of the latest round"),
		testScore:       gauge("test_error", "Test error of the latest round"),
		validationAUC:   gauge("validation_auc", "Validation ROC AUC of the latest round"),
		trainCost:       gauge("train_cost", "Minibatch cost at the latest validation round"),
		bestValidation:  gauge("best_validation_score", "Best validation score so far"),
		patience:        gauge("patience_iterations", "Current patience budget in iterations"),
		epoch:           gauge("epoch", "Current epoch"),
		iteration:       gauge("iteration", "Current minibatch iteration"),
		epochsPerSecond: gauge("epochs_per_second", "Training speed of the last finished run"),
		roundsTotal:     counter("validation_rounds_total", "Validation rounds run"),
		improvedTotal:   counter("validation_improvements_total", "Validation rounds that improved the best score"),
		patienceRaises:  counter("patience_raises_total", "Validation rounds that extended patience"),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "runs_total",
			Help:      "Finished training runs by stop reason",
		}, []string{"stop_reason"}),
	}

	p.registry.MustRegister(
		p.validationScore, p.testScore, p.validationAUC, p.trainCost,
		p.bestValidation, p.patience, p.epoch, p.iteration, p.epochsPerSecond,
		p.roundsTotal, p.improvedTotal, p.patienceRaises, p.runsTotal,
	)
	return p
}

// Registry returns the private registry
func (p *PrometheusReporter) Registry() *prometheus.Registry {
	return p.registry
}

// Serve starts a metrics server over the registry; Close shuts it down.
func (p *PrometheusReporter) Serve(cfg PrometheusConfig) *MetricsServer {
	p.server = NewMetricsServer(cfg, p.registry, p.logger)
	p.server.Start()
	return p.server
}

// ReportRound updates the gauges and counters
func (p *PrometheusReporter) ReportRound(_ context.Context, round *models.ValidationRound) error {
	p.validationScore.Set(round.ValidationScore)
	p.trainCost.Set(round.TrainCost)
	p.bestValidation.Set(round.BestValidation)
	p.patience.Set(round.Patience)
	p.epoch.Set(float64(round.Epoch))
	p.iteration.Set(float64(round.Iteration))
	if round.TestScore != nil {
		p.testScore.Set(*round.TestScore)
	}
	if round.ValidationAUC != nil {
		p.validationAUC.Set(*round.ValidationAUC)
	}

	p.roundsTotal.Inc()
	if round.Improved {
		p.improvedTotal.Inc()
	}
	if round.PatienceRaised {
		p.patienceRaises.Inc()
	}
	return nil
}

// ReportSummary records the finished run
func (p *PrometheusReporter) ReportSummary(_ context.Context, summary *models.RunSummary) error {
	p.runsTotal.WithLabelValues(summary.StopReason).Inc()
	p.epochsPerSecond.Set(summary.EpochsPerSecond)
	p.epoch.Set(float64(summary.Epochs))
	p.bestValidation.Set(summary.BestValidation)
	return nil
}

// Close stops the metrics server if Serve was called
func (p *PrometheusReporter) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()
	err := p.server.Shutdown(ctx)
	p.server = nil
	return err
}
