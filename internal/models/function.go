package models

// FunctionDetail is an immutable snapshot of one Lambda function's
// configuration, taken at scan time. It is converted once from the SDK
// type and never refreshed or cached across functions.
type FunctionDetail struct {
	Name               string            // Function name
	ARN                string            // Function ARN
	Region             string            // AWS region the snapshot came from
	Runtime            string            // Runtime identifier (e.g. python3.12, nodejs20.x)
	PackageType        string            // "Zip" or "Image"
	Architectures      []string          // Instruction set architectures (x86_64, arm64)
	MemoryMB           int32             // Memory allocation in MB
	TimeoutSec         int32             // Function timeout in seconds
	Layers             []string          // Attached layer version ARNs, in order
	Env                map[string]string // Environment variables
	VPCAttached        bool              // True when the function runs inside a VPC
	SnapStartApplyOn   string            // SnapStart ApplyOn value ("None" when disabled)
	EphemeralStorageMB int32             // /tmp size in MB (512 default)
}

// Alias is a named pointer to one published function version.
// Versions are immutable, so aliases are read-only from this tool's
// perspective.
type Alias struct {
	Name            string // Alias name (e.g. PROD)
	FunctionVersion string // Target version number, or "$LATEST"
}

// Verdict is the outcome of assessing one function. Advisories carry
// warnings that do not change Safe.
type Verdict struct {
	Safe       bool     // Whether the agent layer can be attached
	Reason     string   // First failing check's reason, or "safe"
	Advisories []string // Non-blocking warnings (e.g. VPC connectivity)
}
