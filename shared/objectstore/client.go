package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds S3-compatible object store configuration
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, MinIO, etc.
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // Optional: CDN origin in front of the bucket
}

// Client wraps an S3-compatible bucket holding the image derivatives
type Client struct {
	s3            *s3.Client
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
	logger        *slog.Logger
}

// NewClient creates a new object store client
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(config.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	var client *s3.Client
	if config.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	logger.Info("Object store client initialized",
		slog.String("bucket", config.Bucket),
		slog.String("region", config.Region),
	)

	return &Client{
		s3:            client,
		bucket:        config.Bucket,
		region:        config.Region,
		endpoint:      config.Endpoint,
		publicBaseURL: config.PublicBaseURL,
		logger:        logger,
	}, nil
}

// Upload writes an object under the given key
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	c.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.String("content_type", contentType),
	)

	return nil
}

// Exists reports whether an object is present under the given key. A missing
// object is not an error; anything else is.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to check object %s: %w", key, err)
	}

	return true, nil
}

// PublicURL returns the public URL for an object key
func (c *Client) PublicURL(key string) string {
	if c.publicBaseURL != "" {
		return strings.TrimSuffix(c.publicBaseURL, "/") + "/" + key
	}

	if c.endpoint != "" {
		// Path-style for custom endpoints: https://{endpoint-host}/{bucket}/{key}
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.endpoint, "/"), c.bucket, key)
	}

	// AWS S3: https://{bucket}.s3.{region}.amazonaws.com/{key}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key)
}
