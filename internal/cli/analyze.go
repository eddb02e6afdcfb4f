package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimwatch/internal/pipeline"
)

var (
	analyzeURL     string
	analyzeBrand   string
	analyzeTimeout time.Duration
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [text...]",
	Short: "Fact-check pasted text or an article URL immediately",
	Long: `Analyze stores the text (or the readable text of --url) as a High priority
manual post, extracts its main claim, gathers evidence and adjudicates it.
The verdict is appended to the ledger. No alert is sent; use
'claimwatch history notify <id>' to alert a company afterwards.

Example:
  claimwatch analyze "Acme is shutting down all stores next week"
  claimwatch analyze --url https://example.com/story --brand Acme`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "analyse the article at this URL")
	analyzeCmd.Flags().StringVar(&analyzeBrand, "brand", "", "brand the text is about (default: Manual)")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 2*time.Minute, "overall analysis timeout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	req := pipeline.ManualRequest{
		Text:  strings.Join(args, " "),
		URL:   analyzeURL,
		Brand: analyzeBrand,
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("provide text to analyse or --url")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	a, err := newApp(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.manual.Analyze(ctx, req)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res *pipeline.ManualResult) {
	d := res.Debunk

	printBanner(w, "Verdict: "+string(d.Verdict))
	if res.Duplicate {
		fmt.Fprintf(w, "Already analysed; showing the recorded verdict.\n\n")
	}
	fmt.Fprintf(w, "Post:        #%d (%s, %s)\n", res.Post.ID, res.Post.Brand, res.Post.URLOr("Manual Entry"))
	fmt.Fprintf(w, "Debunk:      #%d\n", d.ID)
	fmt.Fprintf(w, "Claim:       %s\n", d.ClaimText)
	fmt.Fprintf(w, "Confidence:  %d%%\n", d.Confidence)
	if d.Explanation != "" {
		fmt.Fprintf(w, "Explanation: %s\n", d.Explanation)
	}
	if len(d.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range d.Sources {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if d.PRResponse != "" {
		fmt.Fprintf(w, "\nSuggested response:\n  %s\n", d.PRResponse)
	}
	if res.Analysis != nil && len(res.Analysis.Evidence) > 0 {
		fmt.Fprintln(w, "\nEvidence consulted:")
		for _, e := range res.Analysis.Evidence {
			fmt.Fprintf(w, "  - [%s] %s %s\n", e.Authority, truncate(e.Title, 60), e.URL)
		}
	}
	if len(res.Cited) > 0 {
		fmt.Fprintln(w, "\nLinks cited by the article:")
		for _, e := range res.Cited {
			fmt.Fprintf(w, "  - %s\n", e.URL)
		}
	}
	if res.Entry != nil {
		fmt.Fprintf(w, "\nLedger:      #%d %s\n", res.Entry.Sequence, res.Entry.Hash)
	}
	fmt.Fprintln(w)
}
