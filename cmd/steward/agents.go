package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/steward/pkg/delegation"
)

func newAgentsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage sub-agent profiles",
	}
	cmd.AddCommand(newAgentsCreateCmd(o), newAgentsListCmd(o), newAgentsTemplatesCmd())
	return cmd
}

func newAgentsCreateCmd(o *rootOptions) *cobra.Command {
	var req delegation.CreateRequest
	cmd := &cobra.Command{
		Use:   "create <agent_id>",
		Short: "Create a profile from a template or from explicit fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AgentID = args[0]
			factory := delegation.NewFactory(o.cfg.Delegation.StorageDir)
			p, path, err := factory.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			o.logger.InfoContext(cmd.Context(), "agent.profile.created",
				slog.String("agent_id", p.ID),
				slog.String("tools", strings.Join(p.Tools, ",")),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Created agent '%s' at %s\n", p.ID, path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Template, "template", "", "predefined template (see 'steward agents templates')")
	f.StringVar(&req.Name, "name", "", "display name")
	f.StringVar(&req.Role, "role", "", "role description")
	f.StringSliceVar(&req.Tools, "tools", nil, "allowed operations, comma separated")
	f.StringArrayVar(&req.Constraints, "constraint", nil, "extra constraint, repeatable")
	return cmd
}

func newAgentsListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the profiles in delegation.storage_dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storage := o.cfg.Delegation.StorageDir
			files, err := filepath.Glob(filepath.Join(storage, "agents", "*.json"))
			if err != nil {
				return err
			}
			sort.Strings(files)

			profiles := make([]*delegation.Profile, 0, len(files))
			for _, file := range files {
				id := strings.TrimSuffix(filepath.Base(file), ".json")
				p, err := delegation.LoadProfile(storage, id)
				if err != nil {
					o.logger.WarnContext(cmd.Context(), "agent.profile.skipped",
						slog.String("path", file),
						slog.String("error", err.Error()),
					)
					continue
				}
				profiles = append(profiles, p)
			}

			out := cmd.OutOrStdout()
			if o.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(profiles)
			}
			if len(profiles) == 0 {
				fmt.Fprintf(out, "No agents in %s\n", filepath.Join(storage, "agents"))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTOOLS\tROLE")
			for _, p := range profiles {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, strings.Join(p.Tools, ","), p.Role)
			}
			return tw.Flush()
		},
	}
}

func newAgentsTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the predefined profile templates",
		Args:  cobra.NoArgs,
		// Templates are static.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TEMPLATE\tTOOLS\tROLE")
			for _, t := range delegation.Templates {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, strings.Join(t.Tools, ","), t.Role)
			}
			tw.Flush()
		},
	}
}
