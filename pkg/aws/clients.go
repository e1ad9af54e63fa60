package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// loadConfig builds the SDK configuration for one region from the
// default credential chain.
func loadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithEC2IMDSClientEnableState(imds.ClientEnabled),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error loading AWS config for region %s: %w", region, err)
	}
	return cfg, nil
}

// IdentityClient resolves who the active credentials belong to.
type IdentityClient struct {
	client *sts.Client
}

// NewIdentityClient creates an STS client in the given region.
func NewIdentityClient(ctx context.Context, region string) (*IdentityClient, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &IdentityClient{client: sts.NewFromConfig(cfg)}, nil
}

// CallerIdentity returns the account ID and principal ARN of the
// active credentials.
func (c *IdentityClient) CallerIdentity(ctx context.Context) (account, arn string, err error) {
	out, err := c.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", fmt.Errorf("error getting caller identity: %w", err)
	}
	return aws.ToString(out.Account), aws.ToString(out.Arn), nil
}
