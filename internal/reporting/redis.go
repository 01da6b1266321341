package reporting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
	"github.com/inferloop/seqrnn/pkg/models"
)

const redisSink = "redis"

// Stream entry kinds
const (
	EntryRound   = "round"
	EntrySummary = "summary"
)

// RedisConfig configures the Redis stream sink
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" json:"enabled"`
	Addr         string        `mapstructure:"addr" json:"addr"`
	Password     string        `mapstructure:"password" json:"-"`
	DB           int           `mapstructure:"db" json:"db"`
	Stream       string        `mapstructure:"stream" json:"stream"`
	MaxLen       int64         `mapstructure:"max_len" json:"max_len"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
}

// streamAdder is the subset of redis.Cmdable used by the reporter
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisReporter appends every round and the summary to a capped stream so
// other processes can follow a run.
type RedisReporter struct {
	config RedisConfig
	client *redis.Client
	adder  streamAdder
	logger *logrus.Logger
}

// NewRedisReporter creates a reporter; Connect must be called before use.
func NewRedisReporter(cfg RedisConfig, logger *logrus.Logger) *RedisReporter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Stream == "" {
		cfg.Stream = constants.DefaultRedisStream
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = constants.DefaultRedisStreamMaxLen
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = constants.DefaultStorageTimeout
	}
	return &RedisReporter{config: cfg, logger: logger}
}

func newRedisReporterWithAdder(cfg RedisConfig, adder streamAdder, logger *logrus.Logger) *RedisReporter {
	r := NewRedisReporter(cfg, logger)
	r.adder = adder
	return r
}

// Connect opens the client and pings the server
func (r *RedisReporter) Connect(ctx context.Context) error {
	if r.adder != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         r.config.Addr,
		Password:     r.config.Password,
		DB:           r.config.DB,
		DialTimeout:  r.config.DialTimeout,
		WriteTimeout: r.config.WriteTimeout,
		MaxRetries:   r.config.MaxRetries,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return errors.NewSinkConnectionError(redisSink, r.config.Addr, err)
	}

	r.client = client
	r.adder = client

	r.logger.WithFields(logrus.Fields{
		"addr":    r.config.Addr,
		"db":      r.config.DB,
		"stream":  r.config.Stream,
		"max_len": r.config.MaxLen,
	}).Info("Connected to Redis")
	return nil
}

// ReportRound appends the round to the stream
func (r *RedisReporter) ReportRound(ctx context.Context, round *models.ValidationRound) error {
	return r.add(ctx, EntryRound, round.RunID, round, "write_round")
}

// ReportSummary appends the summary to the stream
func (r *RedisReporter) ReportSummary(ctx context.Context, summary *models.RunSummary) error {
	return r.add(ctx, EntrySummary, summary.RunID, summary, "write_summary")
}

func (r *RedisReporter) add(ctx context.Context, kind, runID string, payload interface{}, operation string) error {
	if r.adder == nil {
		return errors.NewSinkConnectionError(redisSink, r.config.Addr,
			errors.NewStorageError(errors.CodeConnectionFailed, "not connected"))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapSinkError(err, redisSink, r.config.Stream, operation)
	}

	id, err := r.adder.XAdd(ctx, &redis.XAddArgs{
		Stream: r.config.Stream,
		MaxLen: r.config.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    kind,
			"run_id":  runID,
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return errors.WrapSinkError(err, redisSink, r.config.Stream, operation)
	}

	r.logger.WithFields(logrus.Fields{
		"stream": r.config.Stream,
		"id":     id,
		"type":   kind,
	}).Debug("Appended to Redis stream")
	return nil
}

// Close closes the client
func (r *RedisReporter) Close() error {
	r.adder = nil
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
