// Package risk decides whether attaching the agent layer to a Lambda
// function is safe. The decision is an ordered list of checks over a
// configuration snapshot plus a few CloudWatch statistics; the first
// failing check wins.
package risk

import (
	"strings"

	"github.com/layerguard/layerguard/internal/models"
)

// Protected reports whether the agent is already present on the
// function. Any attached layer ARN containing one of the vendor
// markers counts regardless of case, as does the marker environment
// variable. This is the only thing keeping repeated runs idempotent.
func Protected(f models.FunctionDetail, markers []string, markerKey string) bool {
	for _, layer := range f.Layers {
		arn := strings.ToLower(layer)
		for _, marker := range markers {
			if strings.Contains(arn, strings.ToLower(marker)) {
				return true
			}
		}
	}
	_, ok := f.Env[markerKey]
	return ok
}
