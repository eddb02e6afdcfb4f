package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimwatch/internal/score"
)

var (
	scoreLikes    int
	scoreComments int
	scoreShares   int
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score [text...]",
	Short: "Explain the priority tier a post would receive",
	Long: `Score applies the configured priority policy to the given text and
engagement counts and prints how the tier was reached. Nothing is stored.

Example:
  claimwatch score "Acme data breach leaked passwords" --likes 40 --shares 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scorer, err := score.NewScorer(appConfig.Priority)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		b := scorer.Explain(scoreLikes, scoreComments, scoreShares, text)

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, b)
		}

		printBanner(out, "Priority: "+b.Tier.Badge())
		fmt.Fprintf(out, "Formula:     %s\n", b.Formula)
		fmt.Fprintf(out, "Engagement:  %d (likes %d, comments %d, shares %d)\n", b.Engagement, b.Likes, b.Comments, b.Shares)
		if len(b.KeywordHits) > 0 {
			fmt.Fprintf(out, "Keywords:    %s (+%d)\n", strings.Join(b.KeywordHits, ", "), b.Bonus)
		} else {
			fmt.Fprintf(out, "Keywords:    none\n")
		}
		fmt.Fprintf(out, "Score:       %d (medium >= %d, high >= %d)\n",
			b.Total, appConfig.Priority.MediumThreshold, appConfig.Priority.HighThreshold)
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().IntVar(&scoreLikes, "likes", 0, "like count")
	scoreCmd.Flags().IntVar(&scoreComments, "comments", 0, "comment count")
	scoreCmd.Flags().IntVar(&scoreShares, "shares", 0, "share count")
}
