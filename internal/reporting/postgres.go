package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/models"
)

const postgresSink = "postgres"

// PostgresConfig configures the Postgres sink. DSN takes precedence over the
// individual connection fields.
type PostgresConfig struct {
	Enabled        bool          `mapstructure:"enabled" json:"enabled"`
	DSN            string        `mapstructure:"dsn" json:"-"`
	Host           string        `mapstructure:"host" json:"host"`
	Port           int           `mapstructure:"port" json:"port"`
	Database       string        `mapstructure:"database" json:"database"`
	Username       string        `mapstructure:"username" json:"username"`
	Password       string        `mapstructure:"password" json:"-"`
	SSLMode        string        `mapstructure:"ssl_mode" json:"ssl_mode"`
	RunsTable      string        `mapstructure:"runs_table" json:"runs_table"`
	RoundsTable    string        `mapstructure:"rounds_table" json:"rounds_table"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
}

// ConnectionString returns the lib/pq connection string
func (c PostgresConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, port, c.Database, c.Username, c.Password, sslMode, int(c.ConnectTimeout.Seconds()))
}

// execer is the subset of *sql.DB used by the reporter
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresReporter stores rounds and run summaries in two tables
type PostgresReporter struct {
	config PostgresConfig
	db     *sql.DB
	exec   execer
	logger *logrus.Logger
}

// NewPostgresReporter creates a reporter; Connect must be called before use.
func NewPostgresReporter(cfg PostgresConfig, logger *logrus.Logger) *PostgresReporter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.RunsTable == "" {
		cfg.RunsTable = constants.DefaultPostgresRunsTable
	}
	if cfg.RoundsTable == "" {
		cfg.RoundsTable = constants.DefaultPostgresRoundTable
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = constants.DefaultStorageTimeout
	}
	return &PostgresReporter{config: cfg, logger: logger}
}

func newPostgresReporterWithExecer(cfg PostgresConfig, exec execer, logger *logrus.Logger) *PostgresReporter {
	r := NewPostgresReporter(cfg, logger)
	r.exec = exec
	return r
}

// Connect opens the database, pings it and creates the tables
func (r *PostgresReporter) Connect(ctx context.Context) error {
	if r.exec == nil {
		db, err := sql.Open("postgres", r.config.ConnectionString())
		if err != nil {
			return errors.NewSinkConnectionError(postgresSink, r.config.Host, err)
		}
		db.SetMaxOpenConns(1)

		pingCtx, cancel := context.WithTimeout(ctx, r.config.ConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return errors.NewSinkConnectionError(postgresSink, r.config.Host, err)
		}
		r.db = db
		r.exec = db
	}

	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"host":         r.config.Host,
		"database":     r.config.Database,
		"runs_table":   r.config.RunsTable,
		"rounds_table": r.config.RoundsTable,
	}).Info("Connected to Postgres")
	return nil
}

func (r *PostgresReporter) ensureSchema(ctx context.Context) error {
	runs := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT PRIMARY KEY,
		epochs INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		best_validation DOUBLE PRECISION NOT NULL,
		best_iteration INTEGER NOT NULL,
		patience DOUBLE PRECISION NOT NULL,
		stop_reason TEXT NOT NULL,
		final_train_cost DOUBLE PRECISION NOT NULL,
		duration_seconds DOUBLE PRECISION NOT NULL,
		epochs_per_second DOUBLE PRECISION NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`, pq.QuoteIdentifier(r.config.RunsTable))

	rounds := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		epoch INTEGER NOT NULL,
		minibatch INTEGER NOT NULL,
		metric TEXT NOT NULL,
		validation_score DOUBLE PRECISION NOT NULL,
		test_error DOUBLE PRECISION,
		validation_auc DOUBLE PRECISION,
		train_cost DOUBLE PRECISION NOT NULL,
		best_validation DOUBLE PRECISION NOT NULL,
		patience DOUBLE PRECISION NOT NULL,
		improved BOOLEAN NOT NULL,
		patience_raised BOOLEAN NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, iteration)
	)`, pq.QuoteIdentifier(r.config.RoundsTable))

	for _, stmt := range []string{runs, rounds} {
		if _, err := r.exec.ExecContext(ctx, stmt); err != nil {
			return errors.WrapSinkError(err, postgresSink, r.config.Database, "create_schema")
		}
	}
	return nil
}

// ReportRound inserts the round
func (r *PostgresReporter) ReportRound(ctx context.Context, round *models.ValidationRound) error {
	if r.exec == nil {
		return r.notConnected()
	}
	query := fmt.Sprintf(`INSERT INTO %s
		(run_id, iteration, epoch, minibatch, metric, validation_score, test_error, validation_auc,
		 train_cost, best_validation, patience, improved, patience_raised, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pq.QuoteIdentifier(r.config.RoundsTable))

	_, err := r.exec.ExecContext(ctx, query,
		round.RunID, round.Iteration, round.Epoch, round.Minibatch, round.Metric,
		round.ValidationScore, nullFloat(round.TestScore), nullFloat(round.ValidationAUC),
		round.TrainCost, round.BestValidation, round.Patience,
		round.Improved, round.PatienceRaised, round.Timestamp)
	if err != nil {
		return errors.WrapSinkError(err, postgresSink, r.config.RoundsTable, "write_round")
	}
	return nil
}

// ReportSummary inserts the run summary
func (r *PostgresReporter) ReportSummary(ctx context.Context, summary *models.RunSummary) error {
	if r.exec == nil {
		return r.notConnected()
	}
	query := fmt.Sprintf(`INSERT INTO %s
		(run_id, epochs, iterations, best_validation, best_iteration, patience, stop_reason,
		 final_train_cost, duration_seconds, epochs_per_second, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pq.QuoteIdentifier(r.config.RunsTable))

	_, err := r.exec.ExecContext(ctx, query,
		summary.RunID, summary.Epochs, summary.Iterations, summary.BestValidation,
		summary.BestIteration, summary.Patience, summary.StopReason, summary.FinalTrainCost,
		summary.Duration.Seconds(), summary.EpochsPerSecond, summary.StartedAt, summary.FinishedAt)
	if err != nil {
		return errors.WrapSinkError(err, postgresSink, r.config.RunsTable, "write_summary")
	}
	return nil
}

func (r *PostgresReporter) notConnected() error {
	return errors.NewSinkConnectionError(postgresSink, r.config.Host,
		errors.NewStorageError(errors.CodeConnectionFailed, "not connected"))
}

// Close closes the database handle
func (r *PostgresReporter) Close() error {
	r.exec = nil
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
