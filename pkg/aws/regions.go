package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// RegionsClient discovers which regions are enabled for the account.
type RegionsClient struct {
	client *ec2.Client
}

// NewRegionsClient creates an EC2 client used only for region
// discovery. The given region anchors the API endpoint.
func NewRegionsClient(ctx context.Context, region string) (*RegionsClient, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &RegionsClient{client: ec2.NewFromConfig(cfg)}, nil
}

// EnabledRegions returns the sorted list of regions enabled for the
// account. Opt-in regions that were never enabled are not included.
func (c *RegionsClient) EnabledRegions(ctx context.Context) ([]string, error) {
	result, err := c.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("error describing regions: %w", err)
	}

	var regions []string
	for _, region := range result.Regions {
		if region.RegionName != nil {
			regions = append(regions, *region.RegionName)
		}
	}
	sort.Strings(regions)

	return regions, nil
}
