package reporting

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/interfaces"
)

// Config selects the sinks that receive training progress. The log sink is
// always on.
type Config struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus" json:"prometheus"`
	Influx     InfluxConfig     `mapstructure:"influxdb" json:"influxdb"`
	Redis      RedisConfig      `mapstructure:"redis" json:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres" json:"postgres"`
}

// Validate checks that every enabled sink has what it needs to connect
func (c Config) Validate() error {
	verrs := errors.NewValidationErrors()
	if c.Influx.Enabled {
		if c.Influx.URL == "" {
			verrs.Add("reporting.influxdb.url", errors.CodeMissingField, "is required", nil)
		}
		if c.Influx.Bucket == "" {
			verrs.Add("reporting.influxdb.bucket", errors.CodeMissingField, "is required", nil)
		}
		if c.Influx.Organization == "" {
			verrs.Add("reporting.influxdb.organization", errors.CodeMissingField, "is required", nil)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		verrs.Add("reporting.redis.addr", errors.CodeMissingField, "is required", nil)
	}
	if c.Redis.MaxLen < 0 {
		verrs.Add("reporting.redis.max_len", errors.CodeOutOfRange, "must not be negative", c.Redis.MaxLen)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		verrs.Add("reporting.postgres.host", errors.CodeMissingField, "host or dsn is required", nil)
	}
	return verrs.ErrorOrNil()
}

// remoteReporter is a sink that talks to a server
type remoteReporter interface {
	interfaces.Reporter
	Connect(ctx context.Context) error
}

// Build connects every enabled sink and returns them behind one reporter. If
// any sink fails to connect, the ones already built are closed.
func Build(ctx context.Context, cfg Config, logger *logrus.Logger) (*MultiReporter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	multi := NewMultiReporter(NewLogReporter(logger))

	if cfg.Prometheus.Enabled {
		prom := NewPrometheusReporter(logger)
		prom.Serve(cfg.Prometheus)
		multi.Add(prom)
	}

	var remotes []remoteReporter
	if cfg.Influx.Enabled {
		remotes = append(remotes, NewInfluxReporter(cfg.Influx, logger))
	}
	if cfg.Redis.Enabled {
		remotes = append(remotes, NewRedisReporter(cfg.Redis, logger))
	}
	if cfg.Postgres.Enabled {
		remotes = append(remotes, NewPostgresReporter(cfg.Postgres, logger))
	}

	for _, r := range remotes {
		if err := r.Connect(ctx); err != nil {
			_ = multi.Close()
			return nil, err
		}
		multi.Add(r)
	}

	logger.WithField("sinks", multi.Len()).Debug("Reporting pipeline ready")
	return multi, nil
}
