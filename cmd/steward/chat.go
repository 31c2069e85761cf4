package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jllopis/steward/pkg/agent"
	"github.com/jllopis/steward/pkg/delegation"
	"github.com/jllopis/steward/pkg/llm"
)

const defaultSystemPrompt = `You are the primary agent of a team of specialized sub-agents.
You do not browse the web or search it yourself. Delegate research, web access
and file production with spawn_agent, giving the agent id, a precise task and
the output path where the agent must save its result. Use execute_workflow to
chain several agents where each step reads the previous step's output.
Check progress with agent_status and list_agents, and create missing agents with
create_agent_config. Read the produced files before you report on them.`

func newChatCmd(o *rootOptions) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the primary agent",
		Long: `Start an interactive conversation with the primary agent. Lines starting
with a slash are commands: /jobs lists delegation jobs, /exit quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := o.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer o.watchConfig(ctx)()

			loop := a.primaryLoop()
			if message != "" {
				out, err := loop.Run(ctx, message)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out.Text)
				return nil
			}
			return a.repl(ctx, loop, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	return cmd
}

func (a *app) primaryLoop() *agent.Loop {
	prompt := a.cfg.Agent.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return agent.NewLoop(a.provider, a.top,
		agent.WithModel(a.cfg.LLM.Model),
		agent.WithMaxIterations(a.cfg.Agent.MaxIterations),
		agent.WithSystemPrompt(prompt),
		agent.WithTemperature(a.cfg.LLM.Temperature),
		agent.WithLogger(a.logger),
	)
}

func (a *app) repl(ctx context.Context, loop *agent.Loop, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var history []llm.Message
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/jobs":
			res := a.top.Execute(ctx, delegation.OpListAgents, nil)
			fmt.Fprintln(out, res.Content)
		default:
			var (
				outcome *agent.Outcome
				err     error
			)
			if history == nil {
				outcome, err = loop.Run(ctx, line)
			} else {
				outcome, err = loop.Continue(ctx, append(history, llm.UserMessage(line)))
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				WrapError(err).PrintError(errOut, false)
				break
			}
			history = outcome.Messages
			fmt.Fprintln(out, outcome.Text)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
