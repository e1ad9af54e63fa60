// Package config carries every tunable the scanner and publisher read.
// Nothing in here is ambient: commands build one Config, validate it,
// and pass it down explicitly.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables holding the console credentials. Credentials
// never live in the config file.
const (
	EnvConsoleAccessKey = "PRISMA_ACCESS_KEY"
	EnvConsoleSecretKey = "PRISMA_SECRET_KEY"
)

// WrapperEnvKey is the platform hook that runs the agent wrapper
// before the handler. The key is fixed by Lambda, not by this tool.
const WrapperEnvKey = "AWS_LAMBDA_EXEC_WRAPPER"

// Config is the full configuration surface. Defaults work out of the
// box; a YAML file overlays them and flags overlay the file.
type Config struct {
	Regions    []string `yaml:"regions"`    // Regions to operate on
	AllRegions bool     `yaml:"allRegions"` // Discover enabled regions instead of listing them
	Apply      bool     `yaml:"apply"`      // Write changes; off means report-only
	AliasAudit bool     `yaml:"aliasAudit"` // Enumerate aliases on eligible functions
	Verbose    bool     `yaml:"verbose"`    // Debug-level logging

	Thresholds Thresholds `yaml:"thresholds"`
	Agent      Agent      `yaml:"agent"`
	Console    Console    `yaml:"console"`
	Publish    Publish    `yaml:"publish"`
}

// Thresholds are the limits behind the risk checks.
type Thresholds struct {
	MaxLayers             int      `yaml:"maxLayers"`             // Layer slots incl. the one being added
	MinMemoryMB           int32    `yaml:"minMemoryMB"`           // Minimum memory for the agent's overhead
	TimeoutBufferSec      int32    `yaml:"timeoutBufferSec"`      // Headroom the agent needs below the timeout cap
	MaxTimeoutSec         int32    `yaml:"maxTimeoutSec"`         // Platform timeout cap
	ConcurrencyBuffer     float64  `yaml:"concurrencyBuffer"`     // Fraction of reserved concurrency considered saturated
	ThrottleLookbackHours int      `yaml:"throttleLookbackHours"` // Throttle metric window
	MaxEnvVarSizeBytes    int      `yaml:"maxEnvVarSizeBytes"`    // Platform cap on total env var bytes
	SupportedRuntimes     []string `yaml:"supportedRuntimes"`     // Runtimes the agent ships wrappers for
}

// Agent describes the defender layer and the variables written when
// attaching it.
type Agent struct {
	// LayerArns maps region to the defender layer version ARN to
	// attach there. Regions without an entry are scanned report-only.
	LayerArns map[string]string `yaml:"layerArns"`
	// Markers are substrings that identify the defender in an attached
	// layer ARN. Matching ignores case.
	Markers []string `yaml:"markers"`
	// PolicyEnvKey marks a function as protected when present, and
	// receives the function name on attach.
	PolicyEnvKey string `yaml:"policyEnvKey"`
	// WrapperPath is written to AWS_LAMBDA_EXEC_WRAPPER on attach.
	WrapperPath string `yaml:"wrapperPath"`
}

// Console locates the vendor console that serves defender bundles.
type Console struct {
	URL string `yaml:"url"` // Base URL, e.g. https://console.example.com:8083
}

// Publish describes the layer version created from a downloaded
// defender bundle.
type Publish struct {
	LayerName          string   `yaml:"layerName"`          // Layer name to publish under
	Description        string   `yaml:"description"`        // Layer version description
	LicenseInfo        string   `yaml:"licenseInfo"`        // Layer version license string
	CompatibleRuntimes []string `yaml:"compatibleRuntimes"` // Runtimes advertised on the version
	BundleRuntime      string   `yaml:"bundleRuntime"`      // Runtime family requested from the console
	S3Bucket           string   `yaml:"s3Bucket"`           // Staging bucket; empty uploads the zip directly
}

// Default returns the configuration used when no file or flag says
// otherwise. Threshold values mirror the agent vendor's sizing
// guidance.
func Default() *Config {
	supported := []string{
		"python3.8", "python3.9", "python3.10", "python3.11", "python3.12",
		"nodejs16.x", "nodejs18.x", "nodejs20.x",
	}
	return &Config{
		AliasAudit: true,
		Thresholds: Thresholds{
			MaxLayers:             5,
			MinMemoryMB:           256,
			TimeoutBufferSec:      30,
			MaxTimeoutSec:         900,
			ConcurrencyBuffer:     0.80,
			ThrottleLookbackHours: 24,
			MaxEnvVarSizeBytes:    4096,
			SupportedRuntimes:     supported,
		},
		Agent: Agent{
			Markers:      []string{"twistlock", "prisma"},
			PolicyEnvKey: "TW_POLICY",
			WrapperPath:  "/opt/twistlock/wrapper.sh",
		},
		Publish: Publish{
			LayerName:          "twistlock-defender",
			Description:        "Prisma Cloud Serverless Defender",
			LicenseInfo:        "Palo Alto Networks",
			CompatibleRuntimes: supported,
			BundleRuntime:      "python",
		},
	}
}

// Load overlays the YAML file at path on top of Default. Fields absent
// from the file keep their defaults; lists in the file replace the
// default lists entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the scanner cannot act on sensibly.
func (c *Config) Validate() error {
	if !c.AllRegions && len(c.Regions) == 0 {
		return fmt.Errorf("no regions configured: set regions, pass --regions, or enable allRegions")
	}
	t := c.Thresholds
	if t.MaxLayers < 1 {
		return fmt.Errorf("thresholds.maxLayers must be at least 1, got %d", t.MaxLayers)
	}
	if t.MinMemoryMB < 128 {
		return fmt.Errorf("thresholds.minMemoryMB must be at least 128, got %d", t.MinMemoryMB)
	}
	if t.TimeoutBufferSec < 0 {
		return fmt.Errorf("thresholds.timeoutBufferSec must not be negative, got %d", t.TimeoutBufferSec)
	}
	if t.MaxTimeoutSec <= t.TimeoutBufferSec {
		return fmt.Errorf("thresholds.maxTimeoutSec (%d) must exceed timeoutBufferSec (%d)",
			t.MaxTimeoutSec, t.TimeoutBufferSec)
	}
	if t.ConcurrencyBuffer <= 0 || t.ConcurrencyBuffer > 1 {
		return fmt.Errorf("thresholds.concurrencyBuffer must be in (0, 1], got %g", t.ConcurrencyBuffer)
	}
	if t.ThrottleLookbackHours < 1 {
		return fmt.Errorf("thresholds.throttleLookbackHours must be at least 1, got %d", t.ThrottleLookbackHours)
	}
	if t.MaxEnvVarSizeBytes < 1 {
		return fmt.Errorf("thresholds.maxEnvVarSizeBytes must be positive, got %d", t.MaxEnvVarSizeBytes)
	}
	if len(t.SupportedRuntimes) == 0 {
		return fmt.Errorf("thresholds.supportedRuntimes must not be empty")
	}
	if len(c.Agent.Markers) == 0 {
		return fmt.Errorf("agent.markers must not be empty")
	}
	if c.Agent.PolicyEnvKey == "" {
		return fmt.Errorf("agent.policyEnvKey must not be empty")
	}
	if c.Agent.WrapperPath == "" {
		return fmt.Errorf("agent.wrapperPath must not be empty")
	}
	if c.Publish.LayerName == "" {
		return fmt.Errorf("publish.layerName must not be empty")
	}
	return nil
}

// ThrottleLookback returns the throttle window as a duration.
func (t Thresholds) ThrottleLookback() time.Duration {
	return time.Duration(t.ThrottleLookbackHours) * time.Hour
}

// RuntimeSupported reports whether the agent ships a wrapper for the
// given runtime identifier.
func (t Thresholds) RuntimeSupported(runtime string) bool {
	return slices.Contains(t.SupportedRuntimes, runtime)
}

// LayerArnFor returns the defender layer ARN configured for region.
func (a Agent) LayerArnFor(region string) (string, bool) {
	arn, ok := a.LayerArns[region]
	return arn, ok
}

// InjectedEnv returns the two variables written when attaching the
// agent to the named function.
func (a Agent) InjectedEnv(functionName string) map[string]string {
	return map[string]string{
		a.PolicyEnvKey: functionName,
		WrapperEnvKey:  a.WrapperPath,
	}
}

// ConsoleCredentials reads the console access key and secret from the
// environment.
func ConsoleCredentials() (user, pass string, err error) {
	user = os.Getenv(EnvConsoleAccessKey)
	pass = os.Getenv(EnvConsoleSecretKey)
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("console credentials missing: set %s and %s",
			EnvConsoleAccessKey, EnvConsoleSecretKey)
	}
	return user, pass, nil
}
