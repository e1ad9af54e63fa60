// Package publisher turns a downloaded defender bundle into a Lambda
// layer version in each target region.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/layerguard/layerguard/internal/config"
	"github.com/layerguard/layerguard/internal/models"
	"github.com/layerguard/layerguard/pkg/aws"
)

// directUploadLimit is the platform cap on zip bytes sent inline with
// a publish call. Anything larger must be staged in S3 first.
const directUploadLimit = 50 * 1024 * 1024

// LayerAPI publishes layer versions in one region.
type LayerAPI interface {
	PublishLayer(ctx context.Context, spec aws.LayerSpec, zip []byte) (string, int64, error)
	PublishLayerFromS3(ctx context.Context, spec aws.LayerSpec, bucket, key string) (string, int64, error)
}

// Uploader stages archives in S3.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body []byte) error
}

// Factory builds the per-region layer client and uploader.
type Factory func(ctx context.Context, region string) (LayerAPI, Uploader, error)

// Publisher fans one layer archive out to many regions, one region at
// a time.
type Publisher struct {
	cfg     *config.Config
	factory Factory
	logger  *slog.Logger
}

// New creates a publisher that builds its per-region clients through
// factory.
func New(cfg *config.Config, factory Factory, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
	}
}

// PublishAll publishes the layer zip in every region in order. A
// failing region is recorded in its result and the rest still run.
func (p *Publisher) PublishAll(ctx context.Context, regions []string, zip []byte) []models.PublishResult {
	results := make([]models.PublishResult, 0, len(regions))
	for _, region := range regions {
		result := p.publishRegion(ctx, region, zip)
		if result.Err != nil {
			p.logger.Error("publish failed", "region", region, "error", result.Err)
		} else {
			p.logger.Info("published layer version",
				"region", region,
				"arn", result.LayerVersionArn,
				"version", result.Version,
			)
		}
		results = append(results, result)
	}
	return results
}

func (p *Publisher) publishRegion(ctx context.Context, region string, zip []byte) models.PublishResult {
	result := models.PublishResult{Region: region}

	layers, uploader, err := p.factory(ctx, region)
	if err != nil {
		result.Err = fmt.Errorf("error preparing region %s: %w", region, err)
		return result
	}

	spec := aws.LayerSpec{
		Name:               p.cfg.Publish.LayerName,
		Description:        p.cfg.Publish.Description,
		LicenseInfo:        p.cfg.Publish.LicenseInfo,
		CompatibleRuntimes: p.cfg.Publish.CompatibleRuntimes,
	}

	bucket := p.cfg.Publish.S3Bucket
	if bucket == "" {
		if len(zip) > directUploadLimit {
			result.Err = fmt.Errorf("bundle is %s, over the %s direct-upload limit: configure a staging bucket",
				humanize.IBytes(uint64(len(zip))), humanize.IBytes(uint64(directUploadLimit)))
			return result
		}

		result.LayerVersionArn, result.Version, result.Err = layers.PublishLayer(ctx, spec, zip)
		return result
	}

	// Staged publish. The bucket must live in the target region, so
	// operators usually configure a name with a {region} placeholder.
	bucket = strings.ReplaceAll(bucket, "{region}", region)
	key := stagingKey(p.cfg.Publish.LayerName)

	if err := uploader.Upload(ctx, bucket, key, zip); err != nil {
		result.Err = err
		return result
	}
	result.StagedS3Key = key

	result.LayerVersionArn, result.Version, result.Err = layers.PublishLayerFromS3(ctx, spec, bucket, key)
	return result
}

// stagingKey names the uploaded archive with a timestamp so repeated
// runs never clobber each other.
func stagingKey(layerName string) string {
	return fmt.Sprintf("layers/%s-%s.zip", layerName, time.Now().UTC().Format("20060102-150405"))
}
