// Package preflight verifies, before anything touches a function,
// that the caller's credentials can perform the calls a scan or
// publish will make. It is advisory and never blocks a run.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/layerguard/layerguard/internal/models"
)

// RequiredActions are the IAM actions the scan and publish paths
// issue.
var RequiredActions = []string{
	"lambda:ListFunctions",
	"lambda:GetFunctionConfiguration",
	"lambda:UpdateFunctionConfiguration",
	"lambda:ListAliases",
	"lambda:ListProvisionedConcurrencyConfigs",
	"lambda:GetFunctionConcurrency",
	"lambda:PublishLayerVersion",
	"cloudwatch:GetMetricStatistics",
}

// Identity resolves who the active credentials belong to.
type Identity interface {
	CallerIdentity(ctx context.Context) (account, arn string, err error)
}

// Simulator evaluates IAM actions for a principal.
type Simulator interface {
	SimulateActions(ctx context.Context, principalArn string, actions []string) ([]models.ActionDecision, error)
}

// Run resolves the caller and simulates the required actions against
// their policies. A failed simulation degrades to a warning on the
// report; only an unresolvable identity is an error, because then no
// AWS call can work at all.
func Run(ctx context.Context, identity Identity, simulator Simulator, logger *slog.Logger) (models.PreflightReport, error) {
	var report models.PreflightReport

	account, arn, err := identity.CallerIdentity(ctx)
	if err != nil {
		return report, fmt.Errorf("error resolving caller identity: %w", err)
	}
	report.AccountID = account
	report.CallerArn = arn

	principal := principalForSimulation(arn)
	decisions, err := simulator.SimulateActions(ctx, principal, RequiredActions)
	if err != nil {
		logger.Warn("policy simulation unavailable", "principal", principal, "error", err)
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("policy simulation unavailable: %v", err))
		return report, nil
	}
	report.Decisions = decisions

	return report, nil
}

// principalForSimulation maps an assumed-role session ARN onto the
// underlying role ARN; the simulation API rejects session ARNs.
func principalForSimulation(callerArn string) string {
	// arn:aws:sts::123456789012:assumed-role/role-name/session-name
	if !strings.Contains(callerArn, ":assumed-role/") {
		return callerArn
	}
	parts := strings.Split(callerArn, "/")
	if len(parts) != 3 {
		return callerArn
	}
	prefix := strings.Replace(parts[0], ":sts:", ":iam:", 1)
	prefix = strings.Replace(prefix, "assumed-role", "role", 1)
	return prefix + "/" + parts[1]
}
