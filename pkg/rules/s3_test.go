package rules

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

type fakeBucket struct {
	mu    sync.Mutex
	body  string
	etag  string
	err   error
	calls int
	input *s3.GetObjectInput
}

func (f *fakeBucket) put(body, etag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.etag, f.err = body, etag, nil
}

func (f *fakeBucket) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(f.body)),
		ETag: aws.String(f.etag),
	}, nil
}

func testS3Config() S3Config {
	return S3Config{Bucket: "policies", Key: "tenantguard/rules.yaml", Region: "us-east-1", PollInterval: 10 * time.Millisecond}
}

func TestNewS3Source(t *testing.T) {
	bucket := &fakeBucket{}
	bucket.put(oneRule, `"v1"`)

	src, err := NewS3Source(context.Background(), bucket, testS3Config(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Current().Len())
	assert.Equal(t, "policies", aws.ToString(bucket.input.Bucket))
	assert.Equal(t, "tenantguard/rules.yaml", aws.ToString(bucket.input.Key))

	_, err = NewS3Source(context.Background(), bucket, S3Config{Bucket: "policies"}, nil, nil)
	assert.Error(t, err)

	bucket.fail(errors.New("access denied"))
	_, err = NewS3Source(context.Background(), bucket, testS3Config(), nil, nil)
	assert.Error(t, err)
}

func TestS3SourceRefresh(t *testing.T) {
	bucket := &fakeBucket{}
	bucket.put(oneRule, `"v1"`)
	src, err := NewS3Source(context.Background(), bucket, testS3Config(), observability.NopLogger(), observability.NewNopMetrics())
	require.NoError(t, err)
	first := src.Current()

	// unchanged etag keeps the same set
	require.NoError(t, src.Refresh(context.Background()))
	assert.Same(t, first, src.Current())

	bucket.put("version: 1\nrules: [", `"v2"`)
	assert.Error(t, src.Refresh(context.Background()))
	assert.Same(t, first, src.Current())

	bucket.fail(errors.New("timeout"))
	assert.Error(t, src.Refresh(context.Background()))
	assert.Same(t, first, src.Current())

	bucket.put(testRules, `"v3"`)
	require.NoError(t, src.Refresh(context.Background()))
	assert.Equal(t, 5, src.Current().Len())
}

func TestS3SourceLoad(t *testing.T) {
	bucket := &fakeBucket{}
	bucket.put(oneRule, `"v1"`)
	src, err := NewS3Source(context.Background(), bucket, testS3Config(), nil, nil)
	require.NoError(t, err)

	bucket.put(testRules, `"v2"`)
	rs, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rs.Len())
	assert.Equal(t, 1, src.Current().Len(), "Load does not install")
}

func TestS3SourceRejectsOversizedObject(t *testing.T) {
	bucket := &fakeBucket{}
	bucket.put(oneRule+strings.Repeat("#", maxRulesObjectBytes), `"big"`)
	_, err := NewS3Source(context.Background(), bucket, testS3Config(), nil, nil)
	assert.Error(t, err)
}

func TestS3SourceRun(t *testing.T) {
	bucket := &fakeBucket{}
	bucket.put(oneRule, `"v1"`)
	src, err := NewS3Source(context.Background(), bucket, testS3Config(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	bucket.put(testRules, `"v2"`)
	require.Eventually(t, func() bool { return src.Current().Len() == 5 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
