package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimwatch/internal/collect"
)

var scanTimeout time.Duration

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [company]",
	Short: "Collect mentions from every configured source now",
	Long: `Scan queries every source with credentials for each tracked company (or
only the named one), scores the results and stores new posts.

Sources without credentials are skipped. A failing source never stops the
others.

Example:
  claimwatch scan
  claimwatch scan Acme --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Minute, "overall scan timeout")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scanTimeout)
		defer cancel()
	}

	a, err := newApp(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	var reports []collect.Report
	if len(args) == 1 {
		reports = []collect.Report{a.collector.CollectCompany(ctx, strings.TrimSpace(args[0]))}
	} else {
		reports, err = a.collector.CollectAll(ctx)
		if err != nil && len(reports) == 0 {
			return fmt.Errorf("scan: %w", err)
		}
	}

	if jsonOutput {
		if perr := printJSON(cmd.OutOrStdout(), reports); perr != nil {
			return perr
		}
		return err
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No companies tracked. Add one with: claimwatch company add <name> <email>")
		return nil
	}

	if ferr := printScanTable(out, reports); ferr != nil {
		return ferr
	}
	return err
}

// printScanTable writes one row per company. FAILED counts items that could
// not be stored; failed sources are listed under SOURCES.
func printScanTable(w io.Writer, reports []collect.Report) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "COMPANY\tSEEN\tNEW\tDUPLICATE\tFAILED\tHIGH\tSOURCES")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Brand, r.Seen, r.Created, r.Duplicate, r.Summary.Failed, r.High, formatSources(r))
	}
	return tw.Flush()
}

func formatSources(r collect.Report) string {
	names := make([]string, 0, len(r.Sources))
	for name := range r.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+len(r.FailedSources))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, r.Sources[name]))
	}
	for _, name := range r.FailedSources {
		parts = append(parts, name+"=failed")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
