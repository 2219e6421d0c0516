package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"

	"github.com/yerakh/cloudvault/internal/common"
)

// retryAttempts bounds how often an external call is retried before the
// failure surfaces as common.ErrExternalService.
const retryAttempts = 3

const retryBase = 200 * time.Millisecond

// Config holds the settings needed to reach the S3-compatible backend.
type Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
	SignedURLTTL time.Duration
}

// S3Client implements Client over aws-sdk-go-v2 presigning. It is built once
// at startup and injected into the storage coordinator; nothing in the
// process holds it as global state.
type S3Client struct {
	bucket  string
	ttl     time.Duration
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Client builds the S3 client for the configured endpoint.
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Client{
		bucket:  cfg.Bucket,
		ttl:     cfg.SignedURLTTL,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (c *S3Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(fn(ctx))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrExternalService, err)
	}
	return nil
}

func (c *S3Client) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	var url string
	err := c.withRetry(ctx, func(ctx context.Context) error {
		req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		}, s3.WithPresignExpires(c.ttl))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

func (c *S3Client) PresignGet(ctx context.Context, key, filename string, preview bool) (string, error) {
	disposition := "attachment"
	if preview {
		disposition = "inline"
	}
	contentDisposition := fmt.Sprintf("%s; filename=%q", disposition, filename)

	var url string
	err := c.withRetry(ctx, func(ctx context.Context) error {
		req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket:                     aws.String(c.bucket),
			Key:                        aws.String(key),
			ResponseContentDisposition: aws.String(contentDisposition),
		}, s3.WithPresignExpires(c.ttl))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}
