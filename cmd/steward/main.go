// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Command steward runs the orchestration core: an interactive primary
// agent, single delegations, sequential workflows, profile management and
// an MCP server exposing the top-level registry.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/steward/pkg/config"
	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/telemetry"
)

const serviceName = "steward"

type rootOptions struct {
	configPath string
	profile    string
	sets       []string
	asJSON     bool
	logLevel   string

	stderr   io.Writer
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	shutdown telemetry.ShutdownFunc
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root, opts := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if opts.shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := opts.shutdown(shutdownCtx); serr != nil && opts.logger != nil {
			opts.logger.Warn("telemetry.shutdown.failed", slog.String("error", serr.Error()))
		}
		cancel()
	}
	if err != nil {
		WrapError(err).PrintError(stderr, opts.asJSON)
		return 1
	}
	return 0
}

func newRootCmd(stderr io.Writer) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{stderr: stderr}
	root := &cobra.Command{
		Use:   "steward",
		Short: "Orchestrate a primary agent that delegates work to specialized sub-agents",
		Long: `Steward runs a primary conversational agent over a capability registry.
The primary agent cannot touch the outside world directly: it delegates
research and file work to sub-agents described by JSON profiles, verifies
the artifacts they produce, and chains them into sequential workflows.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: opts.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.profile, "profile", "", "config profile merged from <config>.<profile>.yaml")
	flags.StringArrayVar(&opts.sets, "set", nil, "override a config key (key=value), repeatable")
	flags.BoolVar(&opts.asJSON, "json", false, "print errors and listings as JSON")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newChatCmd(opts),
		newSpawnCmd(opts),
		newWorkflowCmd(opts),
		newAgentsCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return root, opts
}

// setup loads configuration and configures logging and telemetry before any
// subcommand runs.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithOverrides(o.configPath, o.profile, o.sets)
	if err != nil {
		return NewConfigError(err, o.configPath)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	o.cfg = cfg
	o.logger = telemetry.ConfigureSlog(o.stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig(serviceName, core.Version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
			Output:       o.stderr,
		})
		if err != nil {
			return err
		}
		o.shutdown = shutdown
		metrics, err := telemetry.NewMetrics(nil)
		if err != nil {
			return err
		}
		o.metrics = metrics
	}
	o.logger.DebugContext(cmd.Context(), "cli.started",
		slog.String("command", cmd.CommandPath()),
		slog.String("llm.provider", cfg.LLM.Provider),
		slog.String("llm.model", cfg.LLM.Model),
	)
	return nil
}

// app builds the orchestration stack. Callers must Close it.
func (o *rootOptions) app(ctx context.Context) (*app, error) {
	return newApp(ctx, o.cfg, o.logger, o.metrics)
}

// watchConfig reloads the log level when the config file changes. It is a
// no-op without a config file.
func (o *rootOptions) watchConfig(ctx context.Context) func() {
	if o.configPath == "" {
		return func() {}
	}
	w, err := config.NewWatcher(o.configPath, o.profile,
		config.WithOverrides(o.sets),
		config.WithWatchLogger(o.logger),
	)
	if err != nil {
		o.logger.WarnContext(ctx, "config.watch.failed", slog.String("error", err.Error()))
		return func() {}
	}
	w.OnChange(func(cfg *config.Config) {
		level := cfg.Log.Level
		if o.logLevel != "" {
			level = o.logLevel
		}
		telemetry.SetLogLevel(level)
		o.logger.Info("config.reloaded", slog.String("log.level", level))
	})
	w.Start(ctx)
	return w.Stop
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		// Version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "steward version %s\n", core.Version)
		},
	}
}
