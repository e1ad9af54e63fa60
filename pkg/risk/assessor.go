package risk

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/layerguard/layerguard/internal/config"
	"github.com/layerguard/layerguard/internal/models"
	"github.com/layerguard/layerguard/pkg/aws"
)

const (
	packageTypeImage = "Image"
	snapStartOff     = "None"

	// Saturation looks at the most recent hour only; older peaks say
	// little about current headroom.
	concurrencyWindow = time.Hour
)

// MetricSource provides the aggregate statistics the metric-backed
// checks read.
type MetricSource interface {
	SumOverWindow(ctx context.Context, namespace, metricName, dimensionName, dimensionValue string, window time.Duration) (float64, error)
	MaxConcurrentExecutions(ctx context.Context, functionName string, window time.Duration) (float64, error)
}

// ConcurrencySource provides the per-function concurrency lookups.
type ConcurrencySource interface {
	HasProvisionedConcurrency(ctx context.Context, name string) (bool, error)
	ReservedConcurrency(ctx context.Context, name string) (int32, bool, error)
}

// A check inspects one aspect of a function and returns a non-empty
// reason when the function must not be modified. Advisory-only checks
// append to the verdict and return "".
type check struct {
	name string
	eval func(ctx context.Context, f models.FunctionDetail, v *models.Verdict) string
}

// Assessor evaluates the ordered check list against one function at a
// time. Thresholds arrive through the config at construction; nothing
// is read from ambient state.
type Assessor struct {
	cfg         *config.Config
	metrics     MetricSource
	concurrency ConcurrencySource
	logger      *slog.Logger
	checks      []check
}

// NewAssessor builds an assessor around the given metric and
// concurrency sources.
func NewAssessor(cfg *config.Config, metrics MetricSource, concurrency ConcurrencySource, logger *slog.Logger) *Assessor {
	a := &Assessor{
		cfg:         cfg,
		metrics:     metrics,
		concurrency: concurrency,
		logger:      logger,
	}
	// Order matters twice over: the first failure is the one reported,
	// and the static checks run before anything that costs an API call.
	a.checks = []check{
		{name: "package-type", eval: a.checkPackageType},
		{name: "architecture", eval: a.checkArchitecture},
		{name: "runtime", eval: a.checkRuntime},
		{name: "memory", eval: a.checkMemory},
		{name: "timeout", eval: a.checkTimeout},
		{name: "layer-count", eval: a.checkLayerCount},
		{name: "env-size", eval: a.checkEnvSize},
		{name: "vpc", eval: a.checkVPC},
		{name: "snapstart", eval: a.checkSnapStart},
		{name: "provisioned-concurrency", eval: a.checkProvisionedConcurrency},
		{name: "throttles", eval: a.checkThrottles},
		{name: "concurrency-saturation", eval: a.checkConcurrencySaturation},
	}
	return a
}

// Assess runs the checks in order and stops at the first failure.
// Advisories gathered before the failing check stay on the verdict.
func (a *Assessor) Assess(ctx context.Context, f models.FunctionDetail) models.Verdict {
	verdict := models.Verdict{Safe: true, Reason: "safe"}

	for _, c := range a.checks {
		if reason := c.eval(ctx, f, &verdict); reason != "" {
			a.logger.Debug("check failed",
				"check", c.name,
				"function", f.Name,
				"reason", reason,
			)
			verdict.Safe = false
			verdict.Reason = reason
			return verdict
		}
	}

	return verdict
}

func (a *Assessor) checkPackageType(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	if f.PackageType == packageTypeImage {
		return "container image packaging requires build-time embedding, not layer attachment"
	}
	return ""
}

func (a *Assessor) checkArchitecture(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	if slices.Contains(f.Architectures, "arm64") {
		return "unsupported architecture arm64"
	}
	return ""
}

func (a *Assessor) checkRuntime(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	if !a.cfg.Thresholds.RuntimeSupported(f.Runtime) {
		return fmt.Sprintf("unsupported runtime %s", f.Runtime)
	}
	return ""
}

func (a *Assessor) checkMemory(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	if f.MemoryMB < a.cfg.Thresholds.MinMemoryMB {
		return fmt.Sprintf("memory %d MB below the %d MB floor the agent needs",
			f.MemoryMB, a.cfg.Thresholds.MinMemoryMB)
	}
	return ""
}

func (a *Assessor) checkTimeout(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	limit := a.cfg.Thresholds.MaxTimeoutSec - a.cfg.Thresholds.TimeoutBufferSec
	if f.TimeoutSec > limit {
		return fmt.Sprintf("timeout %ds leaves less than the %ds buffer below the %ds ceiling",
			f.TimeoutSec, a.cfg.Thresholds.TimeoutBufferSec, a.cfg.Thresholds.MaxTimeoutSec)
	}
	return ""
}

func (a *Assessor) checkLayerCount(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	if len(f.Layers) >= a.cfg.Thresholds.MaxLayers {
		return fmt.Sprintf("%d layers attached, no slot free under the limit of %d",
			len(f.Layers), a.cfg.Thresholds.MaxLayers)
	}
	return ""
}

func (a *Assessor) checkEnvSize(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	current := envBytes(f.Env)
	proposed := envBytes(a.cfg.Agent.InjectedEnv(f.Name))
	if current+proposed >= a.cfg.Thresholds.MaxEnvVarSizeBytes {
		return fmt.Sprintf("environment variables would reach %d bytes, over the %d byte limit",
			current+proposed, a.cfg.Thresholds.MaxEnvVarSizeBytes)
	}
	return ""
}

func (a *Assessor) checkVPC(_ context.Context, f models.FunctionDetail, v *models.Verdict) string {
	if f.VPCAttached {
		v.Advisories = append(v.Advisories,
			"function is VPC-attached: verify the outbound path to the console before relying on the agent")
	}
	return ""
}

func (a *Assessor) checkSnapStart(_ context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	if f.SnapStartApplyOn != "" && f.SnapStartApplyOn != snapStartOff {
		return "SnapStart is enabled, which does not tolerate layer or version republishing"
	}
	return ""
}

func (a *Assessor) checkProvisionedConcurrency(ctx context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	has, err := a.concurrency.HasProvisionedConcurrency(ctx, f.Name)
	if err != nil {
		a.logger.Warn("provisioned concurrency lookup failed, treating as absent",
			"function", f.Name,
			"error", err,
		)
		return ""
	}
	if has {
		return "provisioned concurrency is configured; an update would force expensive re-warming"
	}
	return ""
}

func (a *Assessor) checkThrottles(ctx context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	window := a.cfg.Thresholds.ThrottleLookback()
	sum, err := a.metrics.SumOverWindow(ctx,
		aws.LambdaNamespace, aws.MetricThrottles, aws.DimensionFunctionName, f.Name, window)
	if err != nil {
		a.logger.Warn("throttle metric lookup failed, treating as zero",
			"function", f.Name,
			"error", err,
		)
		sum = 0
	}
	if sum > 0 {
		return fmt.Sprintf("%.0f throttle events in the last %dh",
			sum, a.cfg.Thresholds.ThrottleLookbackHours)
	}
	return ""
}

func (a *Assessor) checkConcurrencySaturation(ctx context.Context, f models.FunctionDetail, _ *models.Verdict) string {
	reserved, set, err := a.concurrency.ReservedConcurrency(ctx, f.Name)
	if err != nil {
		a.logger.Warn("reserved concurrency lookup failed, treating as unset",
			"function", f.Name,
			"error", err,
		)
		return ""
	}
	if !set {
		return ""
	}

	observed, err := a.metrics.MaxConcurrentExecutions(ctx, f.Name, concurrencyWindow)
	if err != nil {
		a.logger.Warn("concurrency metric lookup failed, treating as zero",
			"function", f.Name,
			"error", err,
		)
		observed = 0
	}

	threshold := float64(reserved) * a.cfg.Thresholds.ConcurrencyBuffer
	if observed > threshold {
		return fmt.Sprintf("peak concurrency %.0f of reserved limit %d is over the %.0f%% buffer",
			observed, reserved, a.cfg.Thresholds.ConcurrencyBuffer*100)
	}
	return ""
}

// envBytes is the size the platform charges for an environment
// mapping: key length plus value length, summed over entries.
func envBytes(env map[string]string) int {
	total := 0
	for k, v := range env {
		total += len(k) + len(v)
	}
	return total
}
