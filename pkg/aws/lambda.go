package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/layerguard/layerguard/internal/models"
)

// FunctionsClient wraps the Lambda control plane for one region.
type FunctionsClient struct {
	client *lambda.Client
	region string
}

// NewFunctionsClient creates a Lambda client for the given region.
func NewFunctionsClient(ctx context.Context, region string) (*FunctionsClient, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &FunctionsClient{
		client: lambda.NewFromConfig(cfg),
		region: region,
	}, nil
}

// ListFunctions returns a snapshot of every function in the region,
// following the listing's pagination markers.
func (c *FunctionsClient) ListFunctions(ctx context.Context) ([]models.FunctionDetail, error) {
	var details []models.FunctionDetail
	var nextMarker *string

	for {
		input := &lambda.ListFunctionsInput{
			Marker: nextMarker,
		}

		result, err := c.client.ListFunctions(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("error listing Lambda functions: %w", err)
		}

		for _, fn := range result.Functions {
			details = append(details, c.convertFunction(fn))
		}

		if result.NextMarker == nil || *result.NextMarker == "" {
			break
		}
		nextMarker = result.NextMarker
	}

	return details, nil
}

// GetFunctionDetail fetches the configuration of one function. A
// non-empty qualifier selects a published version instead of $LATEST.
func (c *FunctionsClient) GetFunctionDetail(ctx context.Context, name, qualifier string) (models.FunctionDetail, error) {
	input := &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(name),
	}
	if qualifier != "" {
		input.Qualifier = aws.String(qualifier)
	}

	out, err := c.client.GetFunctionConfiguration(ctx, input)
	if err != nil {
		return models.FunctionDetail{}, fmt.Errorf("error getting configuration for function %s: %w", name, err)
	}

	return c.convertFunction(lambdaTypes.FunctionConfiguration{
		FunctionName:     out.FunctionName,
		FunctionArn:      out.FunctionArn,
		Runtime:          out.Runtime,
		PackageType:      out.PackageType,
		Architectures:    out.Architectures,
		MemorySize:       out.MemorySize,
		Timeout:          out.Timeout,
		Layers:           out.Layers,
		Environment:      out.Environment,
		VpcConfig:        out.VpcConfig,
		SnapStart:        out.SnapStart,
		EphemeralStorage: out.EphemeralStorage,
	}), nil
}

// UpdateFunctionConfiguration writes a new layer list and environment
// to the function. This is the only state-changing call in a scan.
func (c *FunctionsClient) UpdateFunctionConfiguration(ctx context.Context, name string, layers []string, env map[string]string) error {
	input := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(name),
		Layers:       layers,
		Environment: &lambdaTypes.Environment{
			Variables: env,
		},
	}

	_, err := c.client.UpdateFunctionConfiguration(ctx, input)
	if err != nil {
		return fmt.Errorf("error updating configuration of function %s: %w", name, err)
	}
	return nil
}

// ListAliases returns every alias of the function.
func (c *FunctionsClient) ListAliases(ctx context.Context, name string) ([]models.Alias, error) {
	var aliases []models.Alias
	var nextMarker *string

	for {
		input := &lambda.ListAliasesInput{
			FunctionName: aws.String(name),
			Marker:       nextMarker,
		}

		result, err := c.client.ListAliases(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("error listing aliases for function %s: %w", name, err)
		}

		for _, alias := range result.Aliases {
			aliases = append(aliases, models.Alias{
				Name:            aws.ToString(alias.Name),
				FunctionVersion: aws.ToString(alias.FunctionVersion),
			})
		}

		if result.NextMarker == nil || *result.NextMarker == "" {
			break
		}
		nextMarker = result.NextMarker
	}

	return aliases, nil
}

// HasProvisionedConcurrency reports whether any provisioned
// concurrency configuration exists for the function.
func (c *FunctionsClient) HasProvisionedConcurrency(ctx context.Context, name string) (bool, error) {
	input := &lambda.ListProvisionedConcurrencyConfigsInput{
		FunctionName: aws.String(name),
	}

	result, err := c.client.ListProvisionedConcurrencyConfigs(ctx, input)
	if err != nil {
		return false, fmt.Errorf("error listing provisioned concurrency for function %s: %w", name, err)
	}

	return len(result.ProvisionedConcurrencyConfigs) > 0, nil
}

// ReservedConcurrency returns the reserved concurrency limit of the
// function. The second return is false when no limit is set.
func (c *FunctionsClient) ReservedConcurrency(ctx context.Context, name string) (int32, bool, error) {
	input := &lambda.GetFunctionConcurrencyInput{
		FunctionName: aws.String(name),
	}

	result, err := c.client.GetFunctionConcurrency(ctx, input)
	if err != nil {
		return 0, false, fmt.Errorf("error getting reserved concurrency for function %s: %w", name, err)
	}

	if result.ReservedConcurrentExecutions == nil {
		return 0, false, nil
	}
	return *result.ReservedConcurrentExecutions, true, nil
}

// LayerSpec describes the layer version to publish.
type LayerSpec struct {
	Name               string   // Layer name
	Description        string   // Version description
	LicenseInfo        string   // License string
	CompatibleRuntimes []string // Runtimes advertised on the version
}

// PublishLayer publishes zip bytes as a new layer version and returns
// the version ARN and number.
func (c *FunctionsClient) PublishLayer(ctx context.Context, spec LayerSpec, zip []byte) (string, int64, error) {
	return c.publishLayer(ctx, spec, &lambdaTypes.LayerVersionContentInput{
		ZipFile: zip,
	})
}

// PublishLayerFromS3 publishes a staged S3 object as a new layer
// version. Required when the zip exceeds the direct-upload limit.
func (c *FunctionsClient) PublishLayerFromS3(ctx context.Context, spec LayerSpec, bucket, key string) (string, int64, error) {
	return c.publishLayer(ctx, spec, &lambdaTypes.LayerVersionContentInput{
		S3Bucket: aws.String(bucket),
		S3Key:    aws.String(key),
	})
}

func (c *FunctionsClient) publishLayer(ctx context.Context, spec LayerSpec, content *lambdaTypes.LayerVersionContentInput) (string, int64, error) {
	runtimes := make([]lambdaTypes.Runtime, 0, len(spec.CompatibleRuntimes))
	for _, r := range spec.CompatibleRuntimes {
		runtimes = append(runtimes, lambdaTypes.Runtime(r))
	}

	input := &lambda.PublishLayerVersionInput{
		LayerName:          aws.String(spec.Name),
		Description:        aws.String(spec.Description),
		LicenseInfo:        aws.String(spec.LicenseInfo),
		CompatibleRuntimes: runtimes,
		Content:            content,
	}

	result, err := c.client.PublishLayerVersion(ctx, input)
	if err != nil {
		return "", 0, fmt.Errorf("error publishing layer %s in %s: %w", spec.Name, c.region, err)
	}

	return aws.ToString(result.LayerVersionArn), result.Version, nil
}

// convertFunction maps an SDK function configuration onto the model
// snapshot the assessor works with.
func (c *FunctionsClient) convertFunction(fn lambdaTypes.FunctionConfiguration) models.FunctionDetail {
	detail := models.FunctionDetail{
		Name:             aws.ToString(fn.FunctionName),
		ARN:              aws.ToString(fn.FunctionArn),
		Region:           c.region,
		Runtime:          string(fn.Runtime),
		PackageType:      string(fn.PackageType),
		SnapStartApplyOn: string(lambdaTypes.SnapStartApplyOnNone),
	}

	for _, arch := range fn.Architectures {
		detail.Architectures = append(detail.Architectures, string(arch))
	}

	if fn.MemorySize != nil {
		detail.MemoryMB = *fn.MemorySize
	}
	if fn.Timeout != nil {
		detail.TimeoutSec = *fn.Timeout
	}

	for _, layer := range fn.Layers {
		detail.Layers = append(detail.Layers, aws.ToString(layer.Arn))
	}

	if fn.Environment != nil && fn.Environment.Variables != nil {
		detail.Env = make(map[string]string, len(fn.Environment.Variables))
		for k, v := range fn.Environment.Variables {
			detail.Env[k] = v
		}
	}

	// A resolved VPC config with no subnets means "not attached".
	if fn.VpcConfig != nil && len(fn.VpcConfig.SubnetIds) > 0 {
		detail.VPCAttached = true
	}

	if fn.SnapStart != nil && fn.SnapStart.ApplyOn != "" {
		detail.SnapStartApplyOn = string(fn.SnapStart.ApplyOn)
	}

	if fn.EphemeralStorage != nil && fn.EphemeralStorage.Size != nil {
		detail.EphemeralStorageMB = *fn.EphemeralStorage.Size
	}

	return detail
}
