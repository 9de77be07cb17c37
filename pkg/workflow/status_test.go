package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beaconops/vigil/pkg/workflow"
)

func steps(statuses ...workflow.StepStatus) []workflow.StepResult {
	out := make([]workflow.StepResult, len(statuses))
	for i, s := range statuses {
		out[i] = workflow.StepResult{Name: "step", Status: s}
	}
	return out
}

func TestAggregateStatus(t *testing.T) {
	c, f, s := workflow.StepCompleted, workflow.StepFailed, workflow.StepSkipped

	tests := []struct {
		name     string
		statuses []workflow.StepStatus
		want     workflow.Status
	}{
		{"all completed", []workflow.StepStatus{c, c, c, c}, workflow.StatusCompleted},
		{"completed with skips", []workflow.StepStatus{c, c, s, s}, workflow.StatusCompleted},
		{"single completed", []workflow.StepStatus{c}, workflow.StatusCompleted},
		{"mixed", []workflow.StepStatus{c, f}, workflow.StatusPartial},
		{"mixed with skips", []workflow.StepStatus{c, f, s, s}, workflow.StatusPartial},
		{"all failed", []workflow.StepStatus{f, f}, workflow.StatusFailed},
		{"failed with skips", []workflow.StepStatus{f, f, s}, workflow.StatusFailed},
		{"all skipped", []workflow.StepStatus{s, s, s, s}, workflow.StatusPartial},
		{"failure then successes", []workflow.StepStatus{f, c, c}, workflow.StatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, workflow.AggregateStatus(steps(tt.statuses...)))
		})
	}
}

func TestAggregateStatus_Exhaustive(t *testing.T) {
	// Every combination of four step outcomes maps to exactly one
	// workflow status, derived only from non-skipped counts.
	outcomes := []workflow.StepStatus{workflow.StepCompleted, workflow.StepFailed, workflow.StepSkipped}
	for _, a := range outcomes {
		for _, b := range outcomes {
			for _, c := range outcomes {
				for _, d := range outcomes {
					got := workflow.AggregateStatus(steps(a, b, c, d))

					var completed, failed int
					for _, s := range []workflow.StepStatus{a, b, c, d} {
						switch s {
						case workflow.StepCompleted:
							completed++
						case workflow.StepFailed:
							failed++
						}
					}
					var want workflow.Status
					switch {
					case completed == 0 && failed == 0:
						want = workflow.StatusPartial
					case failed == 0:
						want = workflow.StatusCompleted
					case completed == 0:
						want = workflow.StatusFailed
					default:
						want = workflow.StatusPartial
					}
					assert.Equalf(t, want, got, "steps %v %v %v %v", a, b, c, d)
				}
			}
		}
	}
}
