package orchestrator

import (
	"strings"
	"testing"

	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewValidator(pipeline.NewRegistry(newScriptedAgents("python")))

	tests := []struct {
		name    string
		sub     *Submission
		wantErr string
		order   []string
	}{
		{
			name:  "default order",
			sub:   &Submission{Task: "sum a list"},
			order: pipeline.DefaultOrder,
		},
		{
			name:  "custom order",
			sub:   &Submission{Task: "sum a list", StageOrder: []string{"decompose", "generate", "extract"}},
			order: []string{"decompose", "generate", "extract"},
		},
		{
			name:    "nil",
			wantErr: "submission is nil",
		},
		{
			name:    "missing task",
			sub:     &Submission{},
			wantErr: "missing 'task' in request body",
		},
		{
			name:    "blank task",
			sub:     &Submission{Task: " \n\t"},
			wantErr: "missing 'task' in request body",
		},
		{
			name:    "oversized task",
			sub:     &Submission{Task: strings.Repeat("a", MaxRequestBytes+1)},
			wantErr: "task exceeds",
		},
		{
			name:  "task at the byte limit",
			sub:   &Submission{Task: strings.Repeat("a", MaxRequestBytes)},
			order: pipeline.DefaultOrder,
		},
		{
			name:    "multi-byte task over the byte limit",
			sub:     &Submission{Task: strings.Repeat("é", MaxRequestBytes/2+1)},
			wantErr: "task exceeds 32768 bytes",
		},
		{
			name:    "blank stage",
			sub:     &Submission{Task: "x", StageOrder: []string{"decompose", " "}},
			wantErr: "blank stage name",
		},
		{
			name:    "too many stages",
			sub:     &Submission{Task: "x", StageOrder: make17()},
			wantErr: "too many stages",
		},
		{
			name:    "unknown stage",
			sub:     &Submission{Task: "x", StageOrder: []string{"decompose", "lint"}},
			wantErr: domain.ErrUnknownStage.Error(),
		},
		{
			name:    "duplicate stage",
			sub:     &Submission{Task: "x", StageOrder: []string{"decompose", "decompose"}},
			wantErr: "more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := v.Validate(tt.sub)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSubmission)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, plan.Order)
		})
	}
}

func make17() []string {
	out := make([]string, 17)
	for i := range out {
		out[i] = "decompose"
	}
	return out
}
