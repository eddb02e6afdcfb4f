package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimwatch/internal/ledger"
)

// ExitTampered is the exit code of 'ledger verify' on an integrity violation
const ExitTampered = 2

var ledgerLimit int

// ledgerCmd represents the ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and verify the hash-chained verdict ledger",
	Long: `Every verdict is appended to a ledger whose entries are chained with
SHA-256: hash = sha256(prev_hash || canonical_json(content)). The first entry
links to 64 zeros. Editing any recorded verdict breaks the chain from that
entry onward.`,
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-verify the whole chain from genesis",
	Long: `Verify walks the ledger from the genesis hash, recomputing every hash and
cross-checking every entry against the verdict it records.

Exits 0 when the chain is intact and 2 on tampering.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		report, err := st.VerifyLedger(cmd.Context())
		if err != nil && !errors.Is(err, ledger.ErrTampered) {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if perr := printJSON(out, report); perr != nil {
				return perr
			}
		} else if report.Valid {
			fmt.Fprintf(out, "✓ Ledger intact: %d entries\n", report.Entries)
			fmt.Fprintf(out, "  Tail hash: %s\n", report.TailHash)
		} else {
			fmt.Fprintf(out, "✗ Ledger integrity violated at entry %d\n", report.Sequence)
			fmt.Fprintf(out, "  %s\n", report.Error)
		}

		if err != nil {
			return &exitError{code: ExitTampered, err: err}
		}
		return nil
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print ledger entries in sequence order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		entries, err := st.LedgerEntries(cmd.Context(), ledgerLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty.")
			return nil
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "SEQ\tDEBUNK\tHASH\tPREV\tRECORDED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
				e.Sequence, e.DebunkID, e.Hash[:16], e.PrevHash[:16], e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)

	ledgerShowCmd.Flags().IntVar(&ledgerLimit, "limit", 0, "maximum entries (0 for all)")
}
