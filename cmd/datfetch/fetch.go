// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/datfetch/internal/catalog"
	"github.com/pdiddy/datfetch/internal/ctxlog"
	"github.com/pdiddy/datfetch/internal/history"
	"github.com/pdiddy/datfetch/internal/listing"
	"github.com/pdiddy/datfetch/internal/manifest"
	"github.com/pdiddy/datfetch/internal/reconcile"
	"github.com/pdiddy/datfetch/internal/term"
	"github.com/pdiddy/datfetch/internal/transfer"
	"github.com/pdiddy/datfetch/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the files a DAT manifest lists",
	Long: `Fetch parses the DAT manifest, resolves the matching collection on the
remote index (asking when it cannot decide), and downloads every matched
file into the output directory. Items the collection lacks are listed at
the end so they can be found by hand.`,
	Example: `  datfetch fetch -i "Nintendo - Game Boy (Retool).dat" -o ./roms
  datfetch fetch -i redump.dat -o /mnt/roms --list`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.StringP("input", "i", "", "input DAT manifest listing the wanted files")
	f.StringP("output", "o", "", "existing directory the files are written into")
	f.BoolP("catalog", "c", false, "choose the catalog manually, even if found automatically")
	f.BoolP("system", "s", false, "choose the system collection manually, even if found automatically")
	f.BoolP("list", "l", false, "only list the files missing from the server, do not download")
	f.String("report", "", "write a YAML (or .json) report of the run to this path")
	f.Int64("chunk-size", 0, "split transfers into ranged requests of this many bytes (0 = whole file)")
	f.Int64("rate-limit", 0, "cap transfer speed in bytes per second (0 = unlimited)")
	f.Duration("timeout", 0, "HTTP client timeout (0 = none)")
	f.String("base-url", "", "root of the remote file index")
	f.Bool("no-history", false, "do not record this run in the history ledger")

	_ = fetchCmd.MarkFlagRequired("input")
	_ = fetchCmd.MarkFlagRequired("output")

	_ = viper.BindPFlag("http.base_url", f.Lookup("base-url"))
	_ = viper.BindPFlag("http.timeout", f.Lookup("timeout"))
	_ = viper.BindPFlag("transfer.chunk_size", f.Lookup("chunk-size"))
	_ = viper.BindPFlag("transfer.rate_limit", f.Lookup("rate-limit"))
	_ = viper.BindPFlag("history.disabled", f.Lookup("no-history"))

	rootCmd.AddCommand(fetchCmd)
}

// fetchOptions are the per-run choices that do not come from configuration.
type fetchOptions struct {
	Input           string
	Output          string
	ForceCatalog    bool
	ForceCollection bool
	ListOnly        bool
	ReportPath      string
}

func runFetch(cmd *cobra.Command, args []string) error {
	var opts fetchOptions
	opts.Input, _ = cmd.Flags().GetString("input")
	opts.Output, _ = cmd.Flags().GetString("output")
	opts.ForceCatalog, _ = cmd.Flags().GetBool("catalog")
	opts.ForceCollection, _ = cmd.Flags().GetBool("system")
	opts.ListOnly, _ = cmd.Flags().GetBool("list")
	opts.ReportPath, _ = cmd.Flags().GetString("report")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	err = fetch(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
	return settle(cmd.OutOrStdout(), err)
}

// settle turns non-fatal run errors into a printed notice so that only
// fatal errors reach the exit code.
func settle(out io.Writer, err error) error {
	if err == nil || types.IsFatal(err) {
		return err
	}
	fmt.Fprintln(out, term.Notice.Render(err.Error()))
	return nil
}

// fetch runs one manifest through resolution, reconciliation and transfer.
// Pre-flight, manifest and resolution problems are fatal. Items that fail
// to transfer yield a non-fatal KindTransferFailed error after the summary
// is printed; a cancelled run returns the context error once history and
// report are written.
func fetch(ctx context.Context, cfg types.Config, opts fetchOptions, in io.Reader, out io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	opts.Output = trimTrailingSeparator(opts.Output)
	if err := validatePaths(opts.Input, opts.Output); err != nil {
		return err
	}
	cfg.Transfer.OutputDir = opts.Output

	fmt.Fprintln(out, term.Info.Render("Output directory: "+opts.Output))
	fmt.Fprintln(out, term.Info.Render("Opening input DAT-file..."))

	doc, err := manifest.ParseFile(opts.Input)
	if err != nil {
		return err
	}
	origin, ok := manifest.ExtractOriginMetadata(doc)
	switch {
	case !ok:
		logger.Debug("manifest has no header, falling back to manual selection")
	case origin.HasProvenance():
		fmt.Fprintln(out, term.Info.Render(fmt.Sprintf("Processing %s: %s...", origin.ProvenanceLabel, origin.DisplayName)))
	default:
		fmt.Fprintln(out, term.Info.Render(fmt.Sprintf("Processing %s...", origin.DisplayName)))
	}
	wanted := manifest.ExtractWantedIdentities(doc)

	started := time.Now()
	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	lister := listing.NewClient(client, cfg.HTTP)

	resolver := &catalog.Resolver{
		Lister:          lister,
		Chooser:         catalog.NewInteractive(in, out),
		ForceOrigin:     opts.ForceCatalog,
		ForceCollection: opts.ForceCollection,
		Out:             out,
	}
	res, err := resolver.Resolve(ctx, origin)
	if err != nil {
		return err
	}

	inventory, err := lister.FetchInventory(ctx, res.Path())
	if err != nil {
		return err
	}
	result := reconcile.Reconcile(wanted, inventory)

	printCounts(out, wanted.Len(), len(inventory), len(result.Missing))

	var summary transfer.Summary
	if !opts.ListOnly {
		tasks := transfer.Tasks(lister.URL(res.Path()), opts.Output, result.Matched)
		engine := transfer.NewEngine(client, cfg.HTTP, cfg.Transfer, term.NewProgressLine(out), out)
		summary = engine.TransferAll(ctx, tasks)
		fmt.Fprintln(out, term.Info.Render("Downloading complete!"))
	}

	if !cfg.History.Disabled {
		run := history.NewRun(opts.Input, started)
		run.Origin = origin.ProvenanceLabel
		run.Collection = res.Path()
		run.ListOnly = opts.ListOnly
		run.Wanted = wanted.Len()
		run.Matched = len(result.Matched)
		run.Missing = len(result.Missing)
		run.Tally(summary.Outcomes)
		run.FinishedAt = time.Now().UTC()
		if err := recordRun(context.WithoutCancel(ctx), cfg.History, run, summary.Outcomes); err != nil {
			logger.Warn("recording run history failed", "err", err)
		}
	}

	if opts.ReportPath != "" {
		report := reconcile.NewReport(opts.Input, origin, res.Path(), len(inventory), result)
		report.AddOutcomes(summary.Outcomes)
		if err := reconcile.WriteReport(opts.ReportPath, report); err != nil {
			fmt.Fprintln(out, term.Problem.Render(fmt.Sprintf("Writing report failed: %v", err)))
		} else {
			fmt.Fprintln(out, term.Info.Render("Report written to "+opts.ReportPath))
		}
	}

	printFailed(out, summary.FailedOutcomes())
	printMissing(out, result.Missing)

	if err := ctx.Err(); err != nil {
		return err
	}
	return summary.Err()
}

func recordRun(ctx context.Context, cfg types.HistoryConfig, run history.Run, outcomes []types.TransferOutcome) error {
	store, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, run, outcomes)
}

// trimTrailingSeparator drops one trailing path separator, keeping a bare
// root intact.
func trimTrailingSeparator(dir string) string {
	if len(dir) > 1 && strings.HasSuffix(dir, string(os.PathSeparator)) {
		return dir[:len(dir)-1]
	}
	return dir
}

// validatePaths checks that input is a regular file and output an existing
// directory before any network activity.
func validatePaths(input, output string) error {
	if info, err := os.Stat(input); err != nil || !info.Mode().IsRegular() {
		return types.Errorf(types.KindInputPathInvalid, "validate", "invalid input DAT-file %q", input)
	}
	if info, err := os.Stat(output); err != nil || !info.IsDir() {
		return types.Errorf(types.KindOutputPathInvalid, "validate", "invalid output path %q", output)
	}
	return nil
}

func printCounts(out io.Writer, wanted, available, missing int) {
	fmt.Fprintln(out, term.Info.Render(fmt.Sprintf("Amount of wanted files in DAT-file  : %d", wanted)))
	fmt.Fprintln(out, term.Info.Render(fmt.Sprintf("Amount of found files at server     : %d", available)))
	if missing > 0 {
		fmt.Fprintln(out, term.Notice.Render(fmt.Sprintf("Amount of missing files at server   : %d", missing)))
	}
}

func printFailed(out io.Writer, failed []types.TransferOutcome) {
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(out, term.Problem.Render(fmt.Sprintf("Following %d files could not be downloaded:", len(failed))))
	for _, o := range failed {
		fmt.Fprintln(out, term.Notice.Render(fmt.Sprintf("%s (%s)", o.Task.DisplayName, o.Reason)))
	}
}

func printMissing(out io.Writer, missing []string) {
	if len(missing) == 0 {
		fmt.Fprintln(out, term.Info.Render("All wanted files found from server!"))
		return
	}
	fmt.Fprintln(out, term.Problem.Render(fmt.Sprintf(
		"Following %d files in DAT not automatically found from server, grab these manually:", len(missing))))
	for _, name := range missing {
		fmt.Fprintln(out, term.Notice.Render(name))
	}
}
