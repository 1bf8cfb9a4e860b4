// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/datfetch/internal/history"
	"github.com/pdiddy/datfetch/internal/term"
	"github.com/pdiddy/datfetch/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded fetch runs",
	Long: `History lists the most recent fetch runs from the local ledger, newest
first. With --run it lists the per-item outcomes of one run instead.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyCmd.Flags().Bool("json", false, "print JSON instead of text")
	historyCmd.Flags().String("run", "", "list the item outcomes of this run id")
	historyCmd.Flags().String("db", "", "history database path")

	_ = viper.BindPFlag("history.path", historyCmd.Flags().Lookup("db"))

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	runID, _ := cmd.Flags().GetString("run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if runID != "" {
		outcomes, err := store.Outcomes(ctx, runID)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, outcomes)
		}
		printOutcomes(out, outcomes)
		return nil
	}

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, runs)
	}
	printRuns(out, runs)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		mode := ""
		if r.ListOnly {
			mode = " (list only)"
		}
		fmt.Fprintln(w, term.Title.Render(fmt.Sprintf("%s  %s%s", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Manifest, mode)))
		fmt.Fprintf(w, "  id: %s\n", r.ID)
		if r.Collection != "" {
			fmt.Fprintf(w, "  collection: %s\n", r.Collection)
		}
		fmt.Fprintf(w, "  wanted: %d, matched: %d, missing: %d\n", r.Wanted, r.Matched, r.Missing)
		fmt.Fprintf(w, "  downloaded: %d, already present: %d, failed: %d (%s)\n",
			r.Completed, r.AlreadyPresent, r.Failed, term.FormatBytes(r.Bytes))
	}
}

func printOutcomes(w io.Writer, outcomes []types.TransferOutcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "no outcomes recorded")
		return
	}
	for _, o := range outcomes {
		line := fmt.Sprintf("%-15s %s: %s", o.Kind, term.Counter(o.Task.Index, o.Task.Total), o.Task.DisplayName)
		if o.Kind == types.OutcomeFailed {
			fmt.Fprintln(w, term.Problem.Render(line+" ("+o.Reason+")"))
			continue
		}
		fmt.Fprintln(w, line)
	}
}
