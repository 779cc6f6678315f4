package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/movinture/latent-logic/artifact"
)

func newRecordsCmd(a *app) *cobra.Command {
	var (
		runGroup  string
		printJSON bool
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List indexed records of a run group",
		Long: `List the (framework, model, prompt) units recorded in the SQLite index for a
run group, with their verdict, provenance and artifact paths.

Examples:
  latentlogic records --run-group rg1
  latentlogic records --run-group rg1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := artifact.NewStore(a.cfg.OutputDir, a.logger)
			index, err := artifact.OpenIndex(cmd.Context(), store.IndexPath())
			if err != nil {
				return err
			}
			defer index.Close()

			rows, err := index.Rows(cmd.Context(), runGroup)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printJSON {
				if rows == nil {
					rows = []artifact.IndexRow{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			if len(rows) == 0 {
				fmt.Fprintf(out, "no records for run group %q\n", runGroup)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FRAMEWORK\tMODEL\tPROMPT\tSTATUS\tVALID\tPROVENANCE\tREASON\tTURNS\tTOOLS")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
					r.Framework, r.Model, r.PromptID, r.Status, r.Valid, r.Provenance,
					dash(r.FailureReason), r.Turns, r.ToolCalls)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&runGroup, "run-group", "", "run group to list")
	cmd.Flags().BoolVar(&printJSON, "json", false, "print rows as JSON")
	_ = cmd.MarkFlagRequired("run-group")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
