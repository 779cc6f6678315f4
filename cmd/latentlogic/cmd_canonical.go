package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/artifact"
	"github.com/movinture/latent-logic/canonical"
	"github.com/movinture/latent-logic/cohort"
	"github.com/movinture/latent-logic/config"
)

func newCanonicalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "canonical",
		Short: "Fetch and persist a canonical snapshot for the prompt set",
		Long: `Fetch ground truth for every prompt in the prompt set and write an immutable
snapshot to <output-dir>/canonical/canonical_<version>_<fetched_at>.json.

Prompts whose provider call fails are omitted and listed under "failures".

Examples:
  latentlogic canonical --prompts prompts.yaml
  GOOGLE_GEOCODING_API_KEY=... OPENWEATHER_API_KEY=... latentlogic canonical`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := config.LoadPromptSet(a.cfg.Prompts)
			if err != nil {
				return err
			}
			store := artifact.NewStore(a.cfg.OutputDir, a.logger)
			snap, path, err := a.buildSnapshot(cmd.Context(), store, set)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot: %s\n", path)
			fmt.Fprintf(out, "entries: %d, failures: %d\n", len(snap.Entries), len(snap.Failures))
			for _, f := range snap.Failures {
				fmt.Fprintf(out, "  %s (%s): %s\n", f.PromptID, f.Type, f.Reason)
			}
			return nil
		},
	}
}

// buildSnapshot fetches a fresh snapshot and saves it.
func (a *app) buildSnapshot(ctx context.Context, store *artifact.Store, set agentloop.PromptSet) (*canonical.Snapshot, string, error) {
	builder := cohort.NewBuilder(a.cfg.Canonical, a.logger)
	builder.Now = a.now
	snap, err := builder.Build(ctx, set, a.now())
	if err != nil {
		return nil, "", err
	}
	path, err := store.SaveSnapshot(snap)
	if err != nil {
		return nil, "", err
	}
	return snap, path, nil
}

// loadOrBuildSnapshot returns the newest snapshot for the set version,
// building one when none exists or refresh is set.
func (a *app) loadOrBuildSnapshot(ctx context.Context, store *artifact.Store, set agentloop.PromptSet, refresh bool) (*canonical.Snapshot, string, error) {
	if !refresh {
		snap, path, err := store.LatestSnapshot(set.Version)
		if err == nil {
			a.logger.Info("using canonical snapshot", zap.String("path", path))
			return snap, path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
	}
	return a.buildSnapshot(ctx, store, set)
}
