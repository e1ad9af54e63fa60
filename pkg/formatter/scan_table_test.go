package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/layerguard/layerguard/internal/models"
)

func TestReasonCell(t *testing.T) {
	tests := []struct {
		name   string
		result models.FunctionResult
		want   string
	}{
		{
			name:   "nothing to report",
			result: models.FunctionResult{Outcome: models.OutcomeAttached},
			want:   "-",
		},
		{
			name: "blocking reason",
			result: models.FunctionResult{
				Outcome: models.OutcomeSkipped,
				Reason:  "runtime go1.x is not supported",
			},
			want: "runtime go1.x is not supported",
		},
		{
			name: "advisories surface when nothing blocks",
			result: models.FunctionResult{
				Outcome:    models.OutcomePlanned,
				Advisories: []string{"function is VPC-attached: verify the outbound path to the console before relying on the agent"},
			},
			want: "advisory: function is VPC-attached: verify the outbound path to the console before relying on the agent",
		},
		{
			name: "multiple advisories joined",
			result: models.FunctionResult{
				Outcome:    models.OutcomePlanned,
				Advisories: []string{"first note", "second note"},
			},
			want: "advisory: first note; second note",
		},
		{
			name: "blocking reason wins over advisories",
			result: models.FunctionResult{
				Outcome:    models.OutcomeSkipped,
				Reason:     "5 layers attached, limit is 5",
				Advisories: []string{"first note"},
			},
			want: "5 layers attached, limit is 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reasonCell(tt.result))
		})
	}
}
