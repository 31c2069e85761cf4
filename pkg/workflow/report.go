package workflow

import (
	"fmt"
	"strings"

	"github.com/jllopis/steward/pkg/core"
)

// StepResult is the outcome of one executed step.
type StepResult struct {
	Position   int
	AgentID    string
	OutputPath string
	Bytes      int64
	Message    string
}

// Report summarizes a workflow run. Failed is nil when every step passed.
type Report struct {
	WorkflowID string
	Name       string
	Total      int
	Completed  []StepResult
	Failed     *StepResult
}

// Succeeded reports whether every step completed.
func (r *Report) Succeeded() bool {
	return r.Failed == nil && len(r.Completed) == r.Total
}

// String renders the report returned to the calling conversation.
func (r *Report) String() string {
	var b strings.Builder
	if !r.Succeeded() {
		failedAt := len(r.Completed) + 1
		if r.Failed != nil {
			failedAt = r.Failed.Position
		}
		fmt.Fprintf(&b, "%s Workflow '%s' failed at step %d/%d\n\n", core.StatusFailed.Icon(), r.Name, failedAt, r.Total)
		fmt.Fprintf(&b, "Workflow ID: %s\n\n", r.WorkflowID)
		if len(r.Completed) > 0 {
			fmt.Fprintf(&b, "%s Completed steps:\n", core.StatusCompleted.Icon())
			r.writeSteps(&b)
			b.WriteString("\n")
		}
		reason := "workflow stopped"
		if r.Failed != nil {
			reason = r.Failed.Message
		}
		fmt.Fprintf(&b, "%s Failed at step %d:\n  Error: %s\n\n", core.StatusFailed.Icon(), failedAt, reason)
		b.WriteString("The workflow stopped due to this error. You can:\n")
		b.WriteString("- Check the output files manually\n")
		b.WriteString("- Fix any issues and restart the workflow\n")
		b.WriteString("- Run steps individually using spawn_agent\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s Workflow '%s' completed successfully!\n\n", core.StatusCompleted.Icon(), r.Name)
	fmt.Fprintf(&b, "Workflow ID: %s\n", r.WorkflowID)
	fmt.Fprintf(&b, "Total steps: %d\n\n", r.Total)
	b.WriteString("Output files:\n")
	r.writeSteps(&b)
	return b.String()
}

func (r *Report) writeSteps(b *strings.Builder) {
	for _, s := range r.Completed {
		fmt.Fprintf(b, "  Step %d: %s\n    %s\n", s.Position, s.OutputPath, s.Message)
	}
}
