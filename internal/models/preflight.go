package models

// ActionDecision is the simulated evaluation of one IAM action.
type ActionDecision struct {
	Action   string // IAM action name (e.g. lambda:UpdateFunctionConfiguration)
	Allowed  bool   // True when the simulation returned "allowed"
	Decision string // Raw decision string (allowed, explicitDeny, implicitDeny)
}

// PreflightReport summarizes the caller identity and permission
// simulation run before a scan or publish.
type PreflightReport struct {
	AccountID string           // Caller's AWS account ID
	CallerArn string           // Caller's principal ARN
	Decisions []ActionDecision // One entry per simulated action
	Warnings  []string         // Simulation-level problems (not denials)
}

// AllAllowed reports whether every simulated action came back allowed.
func (r PreflightReport) AllAllowed() bool {
	for _, d := range r.Decisions {
		if !d.Allowed {
			return false
		}
	}
	return true
}
