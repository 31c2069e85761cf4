package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/delegation"
)

func newSpawnCmd(o *rootOptions) *cobra.Command {
	var task, output, jobID string
	cmd := &cobra.Command{
		Use:   "spawn <agent_id>",
		Short: "Delegate one task to a sub-agent and verify its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if task == "" {
				return NewInvalidArgumentError("--task", "missing required flag")
			}
			if output == "" {
				return NewInvalidArgumentError("--output", "missing required flag")
			}
			ctx := cmd.Context()
			a, err := o.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			in := core.Args{"agent_id": args[0], "task": task, "output_path": output}
			if jobID != "" {
				in["job_id"] = jobID
			}
			res := a.top.Execute(ctx, delegation.OpSpawnAgent, in)
			if res.IsError {
				return NewOperationError(delegation.OpSpawnAgent, res.Content)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "task for the agent")
	cmd.Flags().StringVarP(&output, "output", "o", "", "path where the agent must save its result")
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id (generated when empty)")
	return cmd
}
