package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/steward/pkg/workflow"
)

func newWorkflowCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run sequential multi-agent workflows",
	}
	cmd.AddCommand(newWorkflowRunCmd(o), newWorkflowAuditCmd(o))
	return cmd
}

func newWorkflowRunCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Run the workflow defined in a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := o.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.workflows.Run(ctx, def.Name, def.Steps)
			if err != nil {
				return err
			}
			if !report.Succeeded() {
				return NewOperationError(workflow.OpExecuteWorkflow, report.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		},
	}
}

func newWorkflowAuditCmd(o *rootOptions) *cobra.Command {
	var filter workflow.AuditFilter
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded workflow steps (needs workflow.audit_dsn)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.cfg.Workflow.AuditDSN == "" {
				return NewInvalidArgumentError("workflow.audit_dsn", "audit history needs a persistent store; set workflow.audit_dsn")
			}
			store, err := workflow.OpenSQLiteAuditStore(o.cfg.Workflow.AuditDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if o.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKFLOW\tSTEP\tAGENT\tSTATUS\tFINISHED\tERROR")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", ev.WorkflowID, ev.Step, ev.AgentID, ev.Status,
					ev.FinishedAt.Format("2006-01-02 15:04:05"), ev.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.WorkflowID, "workflow-id", "", "only this workflow")
	cmd.Flags().StringVar(&filter.AgentID, "agent", "", "only steps run by this agent")
	cmd.Flags().StringVar(&filter.Status, "status", "", "only steps with this status")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of events")
	return cmd
}
