package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// maxRulesObjectBytes bounds the rule document fetched from S3.
const maxRulesObjectBytes = 4 << 20

// S3Config locates a rule file in S3 or an S3 compatible store.
type S3Config struct {
	Bucket       string
	Key          string
	Region       string
	Endpoint     string
	UsePathStyle bool
	AccessKey    string
	SecretKey    string
	// PollInterval is how often Run checks for a new version.
	PollInterval time.Duration
}

// ObjectGetter is the subset of *s3.Client used by S3Source.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds a client from static keys when given, otherwise from the
// default credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3Source loads rules from an S3 object and, when run, polls for changes.
type S3Source struct {
	*Holder
	client  ObjectGetter
	config  S3Config
	opts    []Option
	logger  *observability.Logger
	metrics *observability.Metrics
	etag    string
}

// NewS3Source performs the initial load, which must succeed.
func NewS3Source(ctx context.Context, client ObjectGetter, cfg S3Config, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) (*S3Source, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.New("s3 rules source needs a bucket and key")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &S3Source{
		client:  client,
		config:  cfg,
		opts:    opts,
		logger:  logger.WithFields(map[string]interface{}{"rules_bucket": cfg.Bucket, "rules_key": cfg.Key}),
		metrics: metrics,
	}
	rs, etag, err := s.fetch(ctx)
	s.metrics.RulesReload("s3", err)
	if err != nil {
		return nil, err
	}
	s.Holder = NewHolder(rs)
	s.etag = etag
	return s, nil
}

// Load fetches and parses the object without installing it.
func (s *S3Source) Load(ctx context.Context) (*RuleSet, error) {
	rs, _, err := s.fetch(ctx)
	return rs, err
}

func (s *S3Source) fetch(ctx context.Context) (*RuleSet, string, error) {
	ctx, span := observability.StartSpan(ctx, "rules.s3.get_object",
		attribute.String("s3.bucket", s.config.Bucket),
		attribute.String("s3.key", s.config.Key),
	)
	start := time.Now()
	rs, etag, err := s.get(ctx)
	s.metrics.ObserveExternalCall("rules_s3", start, err)
	observability.EndSpan(span, err)
	return rs, etag, err
}

func (s *S3Source) get(ctx context.Context) (*RuleSet, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.config.Key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get rules object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxRulesObjectBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read rules object: %w", err)
	}
	if len(data) > maxRulesObjectBytes {
		return nil, "", fmt.Errorf("rules object exceeds %d bytes", maxRulesObjectBytes)
	}
	rs, err := Parse(data, s.opts...)
	if err != nil {
		return nil, "", err
	}
	return rs, aws.ToString(out.ETag), nil
}

// Refresh fetches the object and swaps it in when its ETag changed and it
// parses. Failures keep the previous rules.
func (s *S3Source) Refresh(ctx context.Context) error {
	rs, etag, err := s.fetch(ctx)
	if err != nil {
		s.metrics.RulesReload("s3", err)
		s.logger.WithError(err).Error("rules refresh failed, keeping previous rules")
		return err
	}
	if etag != "" && etag == s.etag {
		return nil
	}
	s.metrics.RulesReload("s3", nil)
	s.Swap(rs)
	s.etag = etag
	s.logger.WithField("rules", rs.Len()).Info("rules reloaded")
	return nil
}

// Run polls until ctx is done.
func (s *S3Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}
