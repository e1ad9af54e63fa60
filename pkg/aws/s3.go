package aws

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client stages layer archives that are too large to publish with
// inline bytes.
type S3Client struct {
	client *s3.Client
	region string
}

// NewS3Client creates an S3 client for the given region.
func NewS3Client(ctx context.Context, region string) (*S3Client, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &S3Client{
		client: s3.NewFromConfig(cfg),
		region: region,
	}, nil
}

// Upload writes body to s3://bucket/key.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, body []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("error uploading s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
