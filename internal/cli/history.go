package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/notify"
	"github.com/ppiankov/claimwatch/internal/store"
)

var (
	historyLimit int
	notifyEmail  string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded verdicts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		debunks, err := st.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), debunks)
		}
		if len(debunks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No verdicts recorded yet.")
			return nil
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tDATE\tBRAND\tVERDICT\tCONF\tNOTIFIED\tCLAIM\tURL")
		for _, d := range debunks {
			brand := ""
			if d.Post != nil {
				brand = d.Post.Brand
			}
			notified := "no"
			if d.NotificationSent {
				notified = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
				d.ID, d.CreatedAt.Format("2006-01-02 15:04"), brand, d.Verdict, d.Confidence,
				notified, truncate(d.ClaimText, 50), d.Post.URLOr("Manual Entry"))
		}
		return tw.Flush()
	},
}

// historyNotifyCmd sends an alert for a recorded verdict
var historyNotifyCmd = &cobra.Command{
	Use:   "notify <debunk-id>",
	Short: "Send the alert for a recorded verdict, whatever its outcome",
	Long: `Notify emails the alert for a recorded verdict. The recipient is --email,
else the matching company's address, else the configured sender.

Example:
  claimwatch history notify 12
  claimwatch history notify 12 --email legal@acme.example`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid debunk id %q", args[0])
		}

		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		log := logging.WithComponent("notify")
		notifier := notify.NewNotifier(appConfig.SMTP, log)
		dispatcher := notify.NewDispatcher(notifier, st, appConfig.SMTP.Sender, log)

		alert, err := dispatcher.Resend(cmd.Context(), uint(id), notifyEmail)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("debunk #%d not found", id)
		case errors.Is(err, notify.ErrNoRecipient):
			return fmt.Errorf("no recipient for debunk #%d; pass --email", id)
		case errors.Is(err, notify.ErrNotConfigured):
			return fmt.Errorf("email is not configured; set smtp.sender and smtp.password (EMAIL_SENDER, EMAIL_PASSWORD)")
		case err != nil:
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Alert for debunk #%d sent to %s\n", id, alert.To)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyNotifyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum rows (0 for all)")
	historyNotifyCmd.Flags().StringVar(&notifyEmail, "email", "", "recipient address")
}
