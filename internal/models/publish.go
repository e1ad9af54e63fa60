package models

// PublishResult records the outcome of publishing the defender bundle
// as a layer version in one region. A failed region carries Err and
// does not stop the remaining regions.
type PublishResult struct {
	Region          string // Target region
	LayerVersionArn string // ARN of the new layer version
	Version         int64  // Layer version number
	StagedS3Key     string // S3 key used for staging, empty for direct upload
	Err             error  // Publish error, nil on success
}
