// Package scanner walks the Lambda functions of a region, skips the
// ones already carrying the agent, assesses the rest and attaches the
// agent layer where the verdict allows it.
package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/layerguard/layerguard/internal/config"
	"github.com/layerguard/layerguard/internal/models"
	"github.com/layerguard/layerguard/pkg/risk"
)

// FunctionAPI is the slice of the Lambda control plane the scanner
// uses.
type FunctionAPI interface {
	ListFunctions(ctx context.Context) ([]models.FunctionDetail, error)
	GetFunctionDetail(ctx context.Context, name, qualifier string) (models.FunctionDetail, error)
	UpdateFunctionConfiguration(ctx context.Context, name string, layers []string, env map[string]string) error
	ListAliases(ctx context.Context, name string) ([]models.Alias, error)
}

// Assessor produces the verdict for one function.
type Assessor interface {
	Assess(ctx context.Context, f models.FunctionDetail) models.Verdict
}

// Scanner processes one region's functions strictly in listing order.
type Scanner struct {
	cfg       *config.Config
	functions FunctionAPI
	assessor  Assessor
	logger    *slog.Logger
	progress  func(done, total int, functionName string)
}

// New creates a scanner bound to one region's function client.
func New(cfg *config.Config, functions FunctionAPI, assessor Assessor, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:       cfg,
		functions: functions,
		assessor:  assessor,
		logger:    logger,
	}
}

// SetProgress installs a per-function progress callback. The CLI uses
// it to drive its spinner; nil disables reporting.
func (s *Scanner) SetProgress(fn func(done, total int, functionName string)) {
	s.progress = fn
}

// ScanRegion lists every function in the region and processes them
// one after another. The region argument labels results; the bound
// client determines where the listing actually goes.
func (s *Scanner) ScanRegion(ctx context.Context, region string) ([]models.FunctionResult, models.ScanSummary, error) {
	summary := models.ScanSummary{Region: region}

	functions, err := s.functions.ListFunctions(ctx)
	if err != nil {
		return nil, summary, fmt.Errorf("error scanning region %s: %w", region, err)
	}
	summary.Total = len(functions)

	results := make([]models.FunctionResult, 0, len(functions))
	for i, fn := range functions {
		if s.progress != nil {
			s.progress(i+1, len(functions), fn.Name)
		}

		result := s.scanFunction(ctx, fn)
		results = append(results, result)

		switch result.Outcome {
		case models.OutcomeProtected:
			summary.Protected++
		case models.OutcomeAttached:
			summary.Attached++
		case models.OutcomePlanned:
			summary.Planned++
		case models.OutcomeSkipped:
			summary.Skipped++
		case models.OutcomeFailed:
			summary.Failed++
		}
	}

	return results, summary, nil
}

func (s *Scanner) scanFunction(ctx context.Context, fn models.FunctionDetail) models.FunctionResult {
	result := models.FunctionResult{
		FunctionName: fn.Name,
		Region:       fn.Region,
		Runtime:      fn.Runtime,
		MemoryMB:     fn.MemoryMB,
		TimeoutSec:   fn.TimeoutSec,
		LayerCount:   len(fn.Layers),
	}

	if risk.Protected(fn, s.cfg.Agent.Markers, s.cfg.Agent.PolicyEnvKey) {
		s.logger.Debug("function already protected", "function", fn.Name)
		result.Outcome = models.OutcomeProtected
		return result
	}

	verdict := s.assessor.Assess(ctx, fn)
	result.Advisories = verdict.Advisories
	for _, advisory := range verdict.Advisories {
		s.logger.Warn("advisory", "function", fn.Name, "note", advisory)
	}

	// The audit is informational either way, so it runs for skipped
	// functions too.
	if s.cfg.AliasAudit {
		s.auditAliases(ctx, fn.Name)
	}

	if !verdict.Safe {
		s.logger.Warn("skipping function", "function", fn.Name, "reason", verdict.Reason)
		result.Outcome = models.OutcomeSkipped
		result.Reason = verdict.Reason
		return result
	}

	return s.attach(ctx, fn, result)
}

// attach merges the agent layer and its two variables into the
// function's configuration. The caller has already established a safe
// verdict and an unprotected function.
func (s *Scanner) attach(ctx context.Context, fn models.FunctionDetail, result models.FunctionResult) models.FunctionResult {
	layerArn, ok := s.cfg.Agent.LayerArnFor(fn.Region)
	if !ok {
		result.Outcome = models.OutcomeFailed
		result.Reason = fmt.Sprintf("no agent layer configured for region %s", fn.Region)
		return result
	}

	newLayers := make([]string, 0, len(fn.Layers)+1)
	newLayers = append(newLayers, fn.Layers...)
	newLayers = append(newLayers, layerArn)

	newEnv := make(map[string]string, len(fn.Env)+2)
	for k, v := range fn.Env {
		newEnv[k] = v
	}
	for k, v := range s.cfg.Agent.InjectedEnv(fn.Name) {
		newEnv[k] = v
	}

	if !s.cfg.Apply {
		s.logger.Info("would attach agent layer",
			"function", fn.Name,
			"layer", layerArn,
		)
		result.Outcome = models.OutcomePlanned
		return result
	}

	if err := s.functions.UpdateFunctionConfiguration(ctx, fn.Name, newLayers, newEnv); err != nil {
		s.logger.Error("attach failed, function left unmodified",
			"function", fn.Name,
			"error", err,
		)
		result.Outcome = models.OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	s.logger.Info("attached agent layer",
		"function", fn.Name,
		"layer", layerArn,
	)
	result.Outcome = models.OutcomeAttached
	return result
}

// auditAliases flags aliases pinned to versions that do not carry the
// agent. Purely advisory: failures are logged and swallowed, and the
// caller's verdict is never touched.
func (s *Scanner) auditAliases(ctx context.Context, name string) {
	aliases, err := s.functions.ListAliases(ctx, name)
	if err != nil {
		s.logger.Warn("alias listing failed", "function", name, "error", err)
		return
	}

	for _, alias := range aliases {
		if alias.FunctionVersion == "$LATEST" {
			continue
		}

		detail, err := s.functions.GetFunctionDetail(ctx, name, alias.FunctionVersion)
		if err != nil {
			s.logger.Warn("alias version lookup failed",
				"function", name,
				"alias", alias.Name,
				"version", alias.FunctionVersion,
				"error", err,
			)
			continue
		}

		if !risk.Protected(detail, s.cfg.Agent.Markers, s.cfg.Agent.PolicyEnvKey) {
			s.logger.Warn("alias points at an unprotected version",
				"function", name,
				"alias", alias.Name,
				"version", alias.FunctionVersion,
			)
		}
	}
}

// Factory builds the per-region scanner dependencies.
type Factory func(ctx context.Context, region string) (FunctionAPI, Assessor, error)

// Progress receives per-function updates during a multi-region scan.
type Progress func(region string, done, total int, functionName string)

// ScanAll visits the regions one after another, strictly sequentially.
// Regions without a configured agent layer are skipped with a log
// line. A region whose listing fails is logged and the run moves on;
// only a failed client build aborts, since that means the credential
// chain itself is broken.
func ScanAll(ctx context.Context, cfg *config.Config, regions []string, factory Factory, progress Progress, logger *slog.Logger) ([]models.FunctionResult, []models.ScanSummary, error) {
	var allResults []models.FunctionResult
	var summaries []models.ScanSummary

	for _, region := range regions {
		if _, ok := cfg.Agent.LayerArnFor(region); !ok {
			logger.Warn("no agent layer configured for region, skipping", "region", region)
			continue
		}

		functions, assessor, err := factory(ctx, region)
		if err != nil {
			return allResults, summaries, fmt.Errorf("error preparing region %s: %w", region, err)
		}

		scanner := New(cfg, functions, assessor, logger)
		if progress != nil {
			scanner.SetProgress(func(done, total int, functionName string) {
				progress(region, done, total, functionName)
			})
		}

		results, summary, err := scanner.ScanRegion(ctx, region)
		if err != nil {
			logger.Error("region scan failed", "region", region, "error", err)
			summaries = append(summaries, summary)
			continue
		}

		allResults = append(allResults, results...)
		summaries = append(summaries, summary)
	}

	return allResults, summaries, nil
}
