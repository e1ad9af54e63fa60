package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/layerguard/layerguard/internal/config"
	"github.com/layerguard/layerguard/internal/version"
	"github.com/layerguard/layerguard/pkg/aws"
	"github.com/layerguard/layerguard/pkg/console"
	"github.com/layerguard/layerguard/pkg/formatter"
	"github.com/layerguard/layerguard/pkg/preflight"
	"github.com/layerguard/layerguard/pkg/publisher"
	"github.com/layerguard/layerguard/pkg/risk"
	"github.com/layerguard/layerguard/pkg/scanner"
)

// fallbackRegion anchors account-level calls (STS, IAM, region
// discovery) when no region list is configured.
const fallbackRegion = "us-east-1"

var (
	cfgFile       string
	regions       []string
	allRegions    bool
	apply         bool
	noAliasAudit  bool
	s3Bucket      string
	consoleURL    string
	bundleRuntime string
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "layerguard",
		Short: "CLI tool to roll the serverless defender layer out to Lambda functions",
		Long: `layerguard scans AWS Lambda functions, skips the ones the defender
layer could destabilize, and attaches the layer plus its runtime hook
variables to the rest. It can also publish fresh layer versions from a
defender bundle downloaded off the console.`,
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringSliceVarP(&regions, "regions", "r", nil, "AWS regions to operate on (comma separated)")
	rootCmd.PersistentFlags().BoolVar(&allRegions, "all-regions", false, "Operate on every enabled region instead of a fixed list")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")

	rootCmd.AddCommand(newScanCmd(), newPublishCmd(), newPreflightCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan Lambda functions and attach the defender layer where safe",
		Long: `scan lists every function in the target regions, assesses each one
against the risk checks and attaches the defender layer to the safe,
unprotected ones. Without --apply nothing is modified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Attach layers; the default is report-only")
	cmd.Flags().BoolVar(&noAliasAudit, "no-alias-audit", false, "Skip the alias version audit")

	return cmd
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Download the defender bundle and publish it as a layer version",
		Long: `publish authenticates against the console with the credentials from
PRISMA_ACCESS_KEY and PRISMA_SECRET_KEY, downloads the serverless
defender bundle and publishes the nested layer zip as a new layer
version in every target region.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPublish(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&consoleURL, "console-url", "", "Base URL of the console serving defender bundles")
	cmd.Flags().StringVar(&bundleRuntime, "runtime", "", "Runtime family to request from the console (e.g. python)")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "Staging bucket for the layer zip ({region} is substituted)")

	return cmd
}

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check that the caller's IAM permissions cover a scan and publish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPreflight(cmd.Context(), cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("layerguard version %s (built: %s, commit: %s, %s)\n",
				info.Version, info.BuildDate, info.GitCommit, info.GoVersion)
		},
	}
}

// loadConfig builds the effective configuration: defaults first, then
// the optional file, then whichever flags were set on this invocation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("regions") {
		cfg.Regions = regions
	}
	if flags.Changed("all-regions") {
		cfg.AllRegions = allRegions
	}
	if flags.Changed("apply") {
		cfg.Apply = apply
	}
	if flags.Changed("no-alias-audit") {
		cfg.AliasAudit = !noAliasAudit
	}
	if flags.Changed("s3-bucket") {
		cfg.Publish.S3Bucket = s3Bucket
	}
	if flags.Changed("console-url") {
		cfg.Console.URL = consoleURL
	}
	if flags.Changed("runtime") {
		cfg.Publish.BundleRuntime = bundleRuntime
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Tables go to stdout, so all
// logging stays on stderr.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// primaryRegion picks the region used for account-level calls.
func primaryRegion(cfg *config.Config) string {
	if len(cfg.Regions) > 0 {
		return cfg.Regions[0]
	}
	return fallbackRegion
}

// resolveRegions returns the regions a command will visit, discovering
// the enabled set when allRegions is on.
func resolveRegions(ctx context.Context, cfg *config.Config) ([]string, error) {
	if !cfg.AllRegions {
		return cfg.Regions, nil
	}

	client, err := aws.NewRegionsClient(ctx, primaryRegion(cfg))
	if err != nil {
		return nil, err
	}
	return client.EnabledRegions(ctx)
}

// startSpinner creates and starts a spinner with the given message.
func startSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[9], 200*time.Millisecond)
	s.Suffix = " " + message
	// FinalMSG is set later, once the duration and counts are known.
	s.Start()
	return s
}

// scanProgress feeds per-function updates into the spinner suffix.
// The animation goroutine reads Suffix concurrently, so every write
// goes through the spinner's lock.
func scanProgress(s *spinner.Spinner) scanner.Progress {
	return func(region string, done, total int, functionName string) {
		s.Lock()
		s.Suffix = fmt.Sprintf(" [%s %d/%d] Assessing: %s", region, done, total, functionName)
		s.Unlock()
	}
}

// runScan drives the scan across every resolved region.
func runScan(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Verbose)

	identity, err := aws.NewIdentityClient(ctx, primaryRegion(cfg))
	if err != nil {
		return err
	}
	account, callerArn, err := identity.CallerIdentity(ctx)
	if err != nil {
		return fmt.Errorf("error resolving caller identity: %w", err)
	}
	logger.Info("caller identity", "account", account, "arn", callerArn)

	targets, err := resolveRegions(ctx, cfg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no regions to scan")
	}

	mode := "report-only"
	if cfg.Apply {
		mode = "apply"
	}
	logger.Info("starting scan", "regions", len(targets), "mode", mode)

	fmt.Println("Starting Lambda scan ...")
	scanStartTime := time.Now()

	s := startSpinner("Scanning Lambda functions ...")
	progress := scanProgress(s)

	factory := func(ctx context.Context, region string) (scanner.FunctionAPI, scanner.Assessor, error) {
		functions, err := aws.NewFunctionsClient(ctx, region)
		if err != nil {
			return nil, nil, err
		}
		metrics, err := aws.NewMetricsClient(ctx, region)
		if err != nil {
			return nil, nil, err
		}
		return functions, risk.NewAssessor(cfg, metrics, functions, logger), nil
	}

	results, summaries, scanErr := scanner.ScanAll(ctx, cfg, targets, factory, progress, logger)

	scanDuration := time.Since(scanStartTime)
	if scanErr != nil {
		s.Stop()
		return scanErr
	}
	s.FinalMSG = fmt.Sprintf("✓ [%d functions scanned] Lambda resources analyzed - Completed in %.2f seconds\n",
		len(results), scanDuration.Seconds())
	s.Stop()

	formatter.PrintScanTable(results, scanStartTime, scanDuration)
	formatter.PrintScanSummary(summaries)
	return nil
}

// runPublish downloads the defender bundle off the console and fans it
// out as a layer version per region.
func runPublish(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Verbose)

	if cfg.Console.URL == "" {
		return fmt.Errorf("console URL missing: set console.url in the config or pass --console-url")
	}
	user, pass, err := config.ConsoleCredentials()
	if err != nil {
		return err
	}

	client := console.New(cfg.Console.URL)
	if err := client.Authenticate(ctx, user, pass); err != nil {
		return err
	}
	logger.Info("authenticated with console", "url", cfg.Console.URL)

	downloadStart := time.Now()
	s := startSpinner("Downloading defender bundle ...")
	bundle, err := client.DownloadDefenderBundle(ctx, cfg.Publish.BundleRuntime)
	if err != nil {
		s.Stop()
		return err
	}
	s.FinalMSG = fmt.Sprintf("✓ [%s] Defender bundle downloaded - Completed in %.2f seconds\n",
		humanize.IBytes(uint64(len(bundle))), time.Since(downloadStart).Seconds())
	s.Stop()

	targets, err := resolveRegions(ctx, cfg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no regions to publish to")
	}

	factory := func(ctx context.Context, region string) (publisher.LayerAPI, publisher.Uploader, error) {
		functions, err := aws.NewFunctionsClient(ctx, region)
		if err != nil {
			return nil, nil, err
		}
		uploader, err := aws.NewS3Client(ctx, region)
		if err != nil {
			return nil, nil, err
		}
		return functions, uploader, nil
	}

	results := publisher.New(cfg, factory, logger).PublishAll(ctx, targets, bundle)
	formatter.PrintPublishTable(results)

	published := 0
	for _, result := range results {
		if result.Err == nil {
			published++
		}
	}
	if published == 0 {
		return fmt.Errorf("no layer versions published")
	}
	return nil
}

// runPreflight resolves the caller and simulates the IAM actions the
// other commands need.
func runPreflight(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Verbose)
	region := primaryRegion(cfg)

	identity, err := aws.NewIdentityClient(ctx, region)
	if err != nil {
		return err
	}
	simulator, err := aws.NewIAMClient(ctx, region)
	if err != nil {
		return err
	}

	report, err := preflight.Run(ctx, identity, simulator, logger)
	if err != nil {
		return err
	}

	formatter.PrintPreflightTable(report)

	if !report.AllAllowed() {
		return fmt.Errorf("one or more required actions are denied")
	}
	return nil
}
