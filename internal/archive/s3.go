package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"

	"lasttrips/internal/realtime"
)

// Object is one raw archived feed document, already decompressed.
type Object struct {
	Key    string
	Data   []byte
	Format realtime.Format
}

// Source fetches the archived document of a feed for one minute.
type Source interface {
	Fetch(ctx context.Context, kind FeedKind, minute time.Time) (*Object, error)
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket       string
	ObjectPrefix string // prepended to the date-based key prefix
	Region       string
	Endpoint     string // empty uses the AWS endpoint for Region
	Anonymous    bool   // skip the credential chain and send unsigned requests
}

// S3Source reads the MBTA GTFS-realtime archive bucket.
type S3Source struct {
	client       S3API
	bucket       string
	objectPrefix string
	logger       *slog.Logger
}

// NewS3Source builds an S3 client from the default AWS configuration chain.
// A custom Endpoint is addressed path-style, as S3-compatible servers expect.
// The SDK retryer is disabled: a failed fetch fails the evaluation.
func NewS3Source(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(60 * time.Second)),
	}
	if cfg.Anonymous {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
			o.UsePathStyle = true
		}
	})
	return NewS3SourceFromClient(client, cfg.Bucket, cfg.ObjectPrefix, logger), nil
}

// NewS3SourceFromClient wraps an existing S3 client.
func NewS3SourceFromClient(client S3API, bucket, objectPrefix string, logger *slog.Logger) *S3Source {
	return &S3Source{
		client:       client,
		bucket:       bucket,
		objectPrefix: strings.Trim(objectPrefix, "/"),
		logger:       logger,
	}
}

// KeyPrefix returns the object key prefix for a minute. The archive is laid
// out by UTC time: "2020/07/23/2020-07-23T03:58".
func (s *S3Source) KeyPrefix(minute time.Time) string {
	u := minute.UTC()
	p := fmt.Sprintf("%04d/%02d/%02d/%s", u.Year(), u.Month(), u.Day(), u.Format("2006-01-02T15:04"))
	if s.objectPrefix != "" {
		return s.objectPrefix + "/" + p
	}
	return p
}

// Fetch lists the objects under the minute's prefix, downloads the first
// one belonging to kind and gunzips it when compressed.
func (s *S3Source) Fetch(ctx context.Context, kind FeedKind, minute time.Time) (*Object, error) {
	prefix := s.KeyPrefix(minute)
	key, err := s.findKey(ctx, kind, prefix)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("downloading archive object", "bucket", s.bucket, "key", key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("key %q: %w", key, ErrNoObject)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	data, err := maybeGunzip(body)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}

	format := realtime.FormatProtobuf
	if strings.Contains(key, "json") {
		format = realtime.FormatJSON
	}
	return &Object{Key: key, Data: data, Format: format}, nil
}

func (s *S3Source) findKey(ctx context.Context, kind FeedKind, prefix string) (string, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); kind.Matches(key) {
				return key, nil
			}
		}
	}
	return "", fmt.Errorf("prefix %q: %w", prefix, ErrNoObject)
}

// maybeGunzip decompresses data when it starts with the gzip magic number.
func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
