package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/artifact"
	"github.com/movinture/latent-logic/cohort"
	"github.com/movinture/latent-logic/config"
	"github.com/movinture/latent-logic/tools"
	"github.com/movinture/latent-logic/unifiedllm"
	"github.com/movinture/latent-logic/validation"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		framework string
		runGroup  string
		refresh   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a cohort of models through one agent framework",
		Long: `Run every (model, prompt) unit through the selected framework, validate each
answer against the newest canonical snapshot for the prompt-set version
(fetching one if none exists), and persist run records, validation sidecars
and index rows under <output-dir>/<run-group>/.

Unit failures are recorded and never abort the cohort.

Examples:
  latentlogic run --framework scratch --models gpt-4o,DeepSeek-V3.2
  latentlogic run --framework strands --models Kimi-K2.5 --run-group nightly-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			set, err := config.LoadPromptSet(cfg.Prompts)
			if err != nil {
				return err
			}
			if err := config.RequireCohort(cfg.Models, len(set.Prompts)); err != nil {
				return err
			}
			if runGroup == "" {
				runGroup = newRunGroup(a)
			}

			store := artifact.NewStore(cfg.OutputDir, a.logger)
			if err := os.MkdirAll(store.Root, 0o755); err != nil {
				return err
			}
			snap, snapPath, err := a.loadOrBuildSnapshot(cmd.Context(), store, set, refresh)
			if err != nil {
				return err
			}

			client, err := cohort.NewClient(cfg.Provider, cfg.Gollm, cohort.NewLimiter(cfg.Provider.RateLimit), a.logger)
			if err != nil {
				return err
			}
			defer client.Close()
			fw, err := cohort.NewFramework(framework, client, cfg.Agent.MaxParallelTools)
			if err != nil {
				return err
			}

			registry := agentloop.NewToolRegistry()
			if _, err := tools.RegisterHTTPRequest(registry, tools.HTTPConfig{
				Timeout:        cfg.Tools.HTTPTimeout,
				MaxBodyChars:   cfg.Tools.MaxBodyChars,
				AllowedEnvVars: cfg.Tools.AllowedEnvVars,
				Logger:         a.logger,
			}); err != nil {
				return err
			}

			index, err := artifact.OpenIndex(cmd.Context(), store.IndexPath())
			if err != nil {
				return err
			}
			defer index.Close()

			// An empty mode defers to the model catalog.
			var mode unifiedllm.ToolCallMode
			if cfg.Agent.ToolCallMode != "" {
				mode, _ = unifiedllm.ParseToolCallMode(cfg.Agent.ToolCallMode)
			}
			runner := &cohort.Runner{
				Framework:   fw,
				Tools:       registry,
				Validator:   validation.NewValidator(cfg.Validation),
				Store:       store,
				Index:       index,
				Concurrency: cfg.Cohort.Concurrency,
				UnitTimeout: cfg.Cohort.UnitTimeout,
				MaxTurns:    cfg.Agent.MaxTurns,
				Template: agentloop.RunContext{
					ToolCallMode: mode,
					LoopWindow:   cfg.Agent.LoopWindow,
					Temperature:  cfg.Agent.Temperature,
				},
				Logger: a.logger,
			}

			a.logger.Info("starting cohort",
				zap.String("run_group", runGroup),
				zap.String("framework", fw.Name()),
				zap.String("snapshot", snapPath))
			report, err := runner.Run(cmd.Context(), runGroup, cfg.Models, set, snap)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run group: %s (%s)\n", report.RunGroup, report.Framework)
			fmt.Fprintf(out, "units: %d  valid: %d  invalid: %d  unverified: %d  errors: %d\n",
				len(report.Units), report.Valid, report.Invalid, report.Unverified, report.Errors)
			return nil
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "agent framework (scratch, strands)")
	cmd.Flags().StringVar(&runGroup, "run-group", "", "run group id (default: UTC timestamp plus a short uuid)")
	cmd.Flags().BoolVar(&refresh, "refresh-canonical", false, "fetch a new canonical snapshot instead of reusing the newest")
	_ = cmd.MarkFlagRequired("framework")
	return cmd
}

func newRunGroup(a *app) string {
	return fmt.Sprintf("%s-%s", a.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}
