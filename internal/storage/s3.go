package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/driveclone/apiserver/config"
)

// S3Client talks to an S3-compatible endpoint such as Supabase storage.
type S3Client struct {
	client   *s3.Client
	bucket   string
	region   string
	endpoint *url.URL
	// pathStyle addresses objects as endpoint/bucket/key.
	pathStyle bool
}

// NewS3Client constructs an S3 client with static credentials from config.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*S3Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, errors.New("s3 access key id and secret access key are required")
	}

	var endpoint *url.URL
	if strings.TrimSpace(cfg.Endpoint) != "" {
		parsed, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid s3 endpoint %q", cfg.Endpoint)
		}
		endpoint = parsed
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = aws.String(endpoint.String())
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		endpoint:  endpoint,
		pathStyle: cfg.UsePathStyle,
	}, nil
}

// EnsureBucket ensures the configured bucket exists.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return err
	}
	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	return err
}

// Put uploads an object to the configured bucket. r should be seekable so
// the SDK can sign the payload.
func (c *S3Client) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if strings.TrimSpace(contentType) != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := c.client.PutObject(ctx, input)
	return err
}

// ObjectURL returns the address of the object on the configured endpoint,
// or on AWS when no endpoint is set.
func (c *S3Client) ObjectURL(key string) string {
	switch {
	case c.endpoint != nil && c.pathStyle:
		return joinURL(c.endpoint, c.bucket, key)
	case c.endpoint != nil:
		u := *c.endpoint
		u.Host = c.bucket + "." + u.Host
		return joinURL(&u, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, escapeKey(key))
	}
}

// Bucket returns the configured bucket name.
func (c *S3Client) Bucket() string {
	return c.bucket
}
