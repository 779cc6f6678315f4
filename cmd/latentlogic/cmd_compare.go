package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/artifact"
	"github.com/movinture/latent-logic/comparison"
	"github.com/movinture/latent-logic/config"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		runGroup        string
		strandsRunGroup string
		printJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare scratch and strands results for a cohort",
		Long: `Load the scratch records of --run-group and the strands records of
--strands-run-group (default: the strands run group covering the most
(model, prompt) pairs, or --run-group itself when none is found), and write
<output-dir>/<run-group>/comparison.json.

Examples:
  latentlogic compare --run-group rg1 --models gpt-4o,DeepSeek-V3.2
  latentlogic compare --run-group rg1 --strands-run-group rg2 --json`,
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
			store := artifact.NewStore(cfg.OutputDir, a.logger)
			prompts := set.IDs()

			if strandsRunGroup == "" {
				strandsRunGroup, err = a.bestStrandsRunGroup(cmd.Context(), store, cfg.Models, prompts)
				if err != nil {
					return err
				}
				if strandsRunGroup == "" {
					strandsRunGroup = runGroup
				}
				a.logger.Info("selected strands run group", zap.String("run_group", strandsRunGroup))
			}

			scratch, err := store.LoadRows(runGroup, agentloop.ScratchFrameworkName)
			if err != nil {
				return err
			}
			strands, err := store.LoadRows(strandsRunGroup, agentloop.StrandsFrameworkName)
			if err != nil {
				return err
			}

			summary := comparison.Compare(scratch, strands, cfg.Models, prompts)
			summary.GeneratedAtUnix = a.now().Unix()
			summary.ScratchRunGroup = runGroup
			summary.StrandsRunGroup = strandsRunGroup
			path, err := store.WriteComparison(runGroup, summary)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if printJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			o := summary.Overall
			fmt.Fprintf(out, "comparison: %s\n", path)
			fmt.Fprintf(out, "scratch (%s): valid %d / verified %d / runs %d\n", runGroup, o.Scratch.ValidRuns, o.Scratch.VerifiedRuns, o.Scratch.Runs)
			fmt.Fprintf(out, "strands (%s): valid %d / verified %d / runs %d\n", strandsRunGroup, o.Strands.ValidRuns, o.Strands.VerifiedRuns, o.Strands.Runs)
			fmt.Fprintf(out, "pairwise: scratch wins %d, strands wins %d, ties %d (jointly covered %d)\n",
				o.ScratchWins, o.StrandsWins, o.Ties, o.JointlyCovered)
			if n := len(summary.Missing); n > 0 {
				fmt.Fprintf(out, "missing: %d\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runGroup, "run-group", "", "scratch run group; comparison.json is written here")
	cmd.Flags().StringVar(&strandsRunGroup, "strands-run-group", "", "strands run group (default: best covered)")
	cmd.Flags().BoolVar(&printJSON, "json", false, "print the summary as JSON")
	_ = cmd.MarkFlagRequired("run-group")
	return cmd
}

// bestStrandsRunGroup picks the strands run group with the best coverage.
// The index is consulted first; without one, the artifact tree is scanned.
func (a *app) bestStrandsRunGroup(ctx context.Context, store *artifact.Store, models, prompts []string) (string, error) {
	candidates := map[string][]comparison.Key{}

	if _, err := os.Stat(store.IndexPath()); err == nil {
		index, err := artifact.OpenIndex(ctx, store.IndexPath())
		if err != nil {
			return "", err
		}
		defer index.Close()
		if candidates, err = index.Keys(ctx, agentloop.StrandsFrameworkName); err != nil {
			return "", err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if len(candidates) == 0 {
		groups, err := store.RunGroups(agentloop.StrandsFrameworkName)
		if err != nil {
			return "", err
		}
		for _, g := range groups {
			rows, err := store.LoadRows(g, agentloop.StrandsFrameworkName)
			if err != nil {
				return "", err
			}
			for _, r := range rows {
				candidates[g] = append(candidates[g], comparison.Key{Model: r.Model, PromptID: r.PromptID})
			}
		}
	}

	best, covered := comparison.SelectBestRunGroup(candidates, models, prompts)
	a.logger.Debug("strands run group coverage", zap.String("run_group", best), zap.Int("covered", covered))
	return best, nil
}
