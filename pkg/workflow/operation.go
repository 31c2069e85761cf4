package workflow

import (
	"context"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/delegation"
)

// OpExecuteWorkflow is the operation name served by Operation.
const OpExecuteWorkflow = "execute_workflow"

// Operation returns execute_workflow bound to e.
func (e *Engine) Operation() core.Operation {
	step := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_id":      map[string]any{"type": "string", "description": "Profile id under agents/ (e.g. 'zilla', 'gonza')"},
			"task":          map[string]any{"type": "string", "description": "Task for this step"},
			"output_path":   map[string]any{"type": "string", "description": "Where this step saves its output"},
			"input_file":    map[string]any{"type": "string", "description": "Optional artifact of an earlier step to read"},
			"verify_output": map[string]any{"type": "boolean", "description": "Verify the output file. Default: true"},
		},
		"required": []string{"agent_id", "task", "output_path"},
	}
	desc := core.Descriptor{
		Name: OpExecuteWorkflow,
		Description: "Run a sequential workflow of agents. Steps run in order and the workflow stops at the " +
			"first step that fails or does not pass verification.",
		InputSchema: core.ObjectSchema(map[string]any{
			"name":  map[string]any{"type": "string", "description": "Workflow name"},
			"steps": map[string]any{"type": "array", "items": step, "description": "Steps in execution order"},
		}, "name", "steps"),
	}
	return core.NewOperation(desc, func(ctx context.Context, args core.Args) core.Result {
		name, ok := core.StringArg(args, "name")
		if !ok {
			return core.Failure("Missing required parameter: name")
		}
		raw, ok := args["steps"]
		if !ok {
			return core.Failure("Missing required parameter: steps")
		}
		steps, err := ParseSteps(raw)
		if err != nil {
			return core.Failuref("Invalid workflow steps: %s", delegation.Reason(err))
		}
		report, err := e.Run(ctx, name, steps)
		if err != nil {
			return core.Failure(delegation.Reason(err))
		}
		if !report.Succeeded() {
			return core.Failure(report.String())
		}
		return core.Success(report.String())
	})
}
