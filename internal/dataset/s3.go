package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/errors"
)

// S3Options locates a recordings export in S3 or an S3-compatible store.
type S3Options struct {
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Key             string        `mapstructure:"key"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token"`
	ForcePathStyle  bool          `mapstructure:"force_path_style"`
	DisableSSL      bool          `mapstructure:"disable_ssl"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether an object has been configured
func (o S3Options) Enabled() bool {
	return o.Bucket != "" && o.Key != ""
}

type objectDownloader interface {
	DownloadWithContext(ctx aws.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*s3manager.Downloader)) (int64, error)
}

// S3Fetcher downloads whole objects into memory.
type S3Fetcher struct {
	opts       S3Options
	downloader objectDownloader
	logger     *logrus.Logger
}

// NewS3Fetcher creates an AWS session from opts.
func NewS3Fetcher(opts S3Options, logger *logrus.Logger) (*S3Fetcher, error) {
	if !opts.Enabled() {
		return nil, errors.NewConfigurationError(errors.CodeMissingField, "S3 bucket and key are required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	awsConfig := &aws.Config{
		Region:     aws.String(opts.Region),
		MaxRetries: aws.Int(opts.MaxRetries),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			opts.SessionToken,
		)
	}
	if opts.Endpoint != "" {
		awsConfig.Endpoint = aws.String(opts.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(opts.ForcePathStyle)
	}
	if opts.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to create AWS session")
	}
	return newS3FetcherWithDownloader(opts, s3manager.NewDownloader(sess), logger), nil
}

func newS3FetcherWithDownloader(opts S3Options, downloader objectDownloader, logger *logrus.Logger) *S3Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Fetcher{opts: opts, downloader: downloader, logger: logger}
}

// Fetch downloads the configured object.
func (f *S3Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	buf := aws.NewWriteAtBuffer(nil)
	n, err := f.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(f.opts.Bucket),
		Key:    aws.String(f.opts.Key),
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeData, errors.CodeDataNotFound,
			fmt.Sprintf("failed to download s3://%s/%s", f.opts.Bucket, f.opts.Key))
	}

	f.logger.WithFields(logrus.Fields{
		"bucket": f.opts.Bucket,
		"key":    f.opts.Key,
		"bytes":  n,
	}).Info("Downloaded recordings from S3")

	return buf.Bytes(), nil
}

// FetchRecordings downloads and parses a recordings export.
func (f *S3Fetcher) FetchRecordings(ctx context.Context) (*Recordings, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return ReadRecordings(bytes.NewReader(data))
}
