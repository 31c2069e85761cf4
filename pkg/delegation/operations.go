package delegation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/steward/pkg/core"
)

// Operation names served by this package.
const (
	OpSpawnAgent        = "spawn_agent"
	OpAgentStatus       = "agent_status"
	OpListAgents        = "list_agents"
	OpCreateAgentConfig = "create_agent_config"
)

// Operations returns spawn_agent, agent_status and list_agents bound to e.
func (e *Engine) Operations() []core.Operation {
	return []core.Operation{e.spawnOperation(), e.statusOperation(), e.listOperation()}
}

func (e *Engine) spawnOperation() core.Operation {
	desc := core.Descriptor{
		Name: OpSpawnAgent,
		Description: "Spawn a specialized agent to complete a task. The agent runs with the operations " +
			"listed in its profile and must save its result to output_path.",
		InputSchema: core.ObjectSchema(map[string]any{
			"agent_id":    map[string]any{"type": "string", "description": "Profile id under agents/ (e.g. 'zilla', 'gonza')"},
			"task":        map[string]any{"type": "string", "description": "The specific task to complete"},
			"output_path": map[string]any{"type": "string", "description": "Where the agent must save its result"},
			"job_id":      map[string]any{"type": "string", "description": "Optional job id. Generated when omitted."},
		}, "agent_id", "task", "output_path"),
	}
	return core.NewOperation(desc, func(ctx context.Context, args core.Args) core.Result {
		req := SpawnRequest{}
		var ok bool
		if req.ProfileID, ok = core.StringArg(args, "agent_id"); !ok {
			return core.Failure("Missing required parameter: agent_id")
		}
		if req.Task, ok = core.StringArg(args, "task"); !ok {
			return core.Failure("Missing required parameter: task")
		}
		if req.OutputPath, ok = core.StringArg(args, "output_path"); !ok {
			return core.Failure("Missing required parameter: output_path")
		}
		req.JobID, _ = core.StringArg(args, "job_id")

		out, err := e.Spawn(ctx, req)
		if err != nil {
			return core.Failure(Reason(err))
		}
		if !out.Succeeded() {
			return core.Failure(out.String())
		}
		return core.Success(out.String())
	})
}

func (e *Engine) statusOperation() core.Operation {
	desc := core.Descriptor{
		Name:        OpAgentStatus,
		Description: "Check the current status of a specific agent job.",
		InputSchema: core.ObjectSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "The job id returned when the agent was spawned"},
		}, "job_id"),
	}
	return core.NewOperation(desc, func(_ context.Context, args core.Args) core.Result {
		id, ok := core.StringArg(args, "job_id")
		if !ok {
			return core.Failure("Missing required parameter: job_id")
		}
		job, ok := e.jobs.Get(id)
		if !ok {
			return core.Failuref("Job '%s' not found. Use list_agents to see available jobs.", id)
		}
		summary := job.Summary
		if summary == "" {
			summary = "No results yet"
		}
		return core.Success(fmt.Sprintf("%s %s\n\nJob ID: %s\nAgent: %s\nRole: %s\nStatus: %s\nRunning: %d minutes\nOutput: %s\n\n%s",
			job.Status.Icon(), job.Name, job.ID, job.ProfileID, job.Role, job.StatusText(),
			e.elapsed(job), job.OutputPath, summary))
	})
}

func (e *Engine) listOperation() core.Operation {
	desc := core.Descriptor{
		Name:        OpListAgents,
		Description: "List agent jobs with their status. Only running jobs are shown unless show_completed is set.",
		InputSchema: core.ObjectSchema(map[string]any{
			"show_completed": map[string]any{"type": "boolean", "description": "Include completed and failed jobs. Default: false"},
		}),
	}
	return core.NewOperation(desc, func(_ context.Context, args core.Args) core.Result {
		if e.jobs.Len() == 0 {
			return core.Success("No agent jobs recorded.")
		}
		jobs := e.jobs.List(core.BoolArg(args, "show_completed", false))

		var b strings.Builder
		b.WriteString("Agent Jobs:\n\n")
		for _, job := range jobs {
			fmt.Fprintf(&b, "%s %s (%s)\n  Role: %s\n  Status: %s\n  Running: %dm\n  Output: %s\n\n",
				job.Status.Icon(), job.Name, job.ID, job.Role, job.StatusText(), e.elapsed(job), job.OutputPath)
		}
		if len(jobs) == 0 {
			b.WriteString("No active agent jobs.")
		} else {
			fmt.Fprintf(&b, "Total: %d jobs", len(jobs))
		}
		return core.Success(b.String())
	})
}

func (e *Engine) elapsed(job Job) int {
	end := e.now()
	if !job.FinishedAt.IsZero() {
		end = job.FinishedAt
	}
	return core.Elapsed(job.StartedAt, end)
}

// Operation returns create_agent_config bound to f.
func (f *Factory) Operation() core.Operation {
	desc := core.Descriptor{
		Name: OpCreateAgentConfig,
		Description: "Create a new agent profile with a validated operation whitelist. Allowed operations: " +
			strings.Join(AllowedTools, ", "),
		InputSchema: core.ObjectSchema(map[string]any{
			"agent_id": map[string]any{"type": "string", "description": "Lowercase letters, numbers and hyphens (e.g. 'research-agent-1')"},
			"name":     map[string]any{"type": "string", "description": "Display name"},
			"role":     map[string]any{"type": "string", "description": "Role or purpose"},
			"tools": map[string]any{"type": "array", "items": map[string]any{"type": "string"},
				"description": "Operations this agent can use"},
			"template": map[string]any{"type": "string",
				"description": "Optional predefined template: " + strings.Join(templateIDs(), ", ")},
			"constraints": map[string]any{"type": "array", "items": map[string]any{"type": "string"},
				"description": "Extra constraints. Default constraints are always applied."},
		}, "agent_id"),
	}
	return core.NewOperation(desc, func(ctx context.Context, args core.Args) core.Result {
		req := CreateRequest{
			Tools:       stringList(args["tools"]),
			Constraints: stringList(args["constraints"]),
		}
		var ok bool
		if req.AgentID, ok = core.StringArg(args, "agent_id"); !ok {
			return core.Failure("Missing required parameter: agent_id")
		}
		req.Name, _ = core.StringArg(args, "name")
		req.Role, _ = core.StringArg(args, "role")
		req.Template, _ = core.StringArg(args, "template")
		if req.Template == "" && req.Tools == nil {
			return core.Failure("Missing required parameter: tools")
		}

		p, path, err := f.Create(ctx, req)
		if err != nil {
			return core.Failure(Reason(err))
		}
		msg := fmt.Sprintf("%s Agent '%s' created successfully!\n\nName: %s\nRole: %s\nTools: %s",
			core.StatusCompleted.Icon(), p.ID, p.Name, p.Role, strings.Join(p.Tools, ", "))
		if req.Template != "" {
			msg += "\nTemplate used: " + req.Template
		}
		return core.Success(msg + "\n\nConfig saved to: " + path)
	})
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
