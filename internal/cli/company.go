package cli

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimwatch/internal/store"
)

// companyCmd represents the company command
var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage tracked companies",
	Long: `Manage the companies whose mentions are collected and whose contact
address receives alerts.`,
}

var companyAddCmd = &cobra.Command{
	Use:     "add <name> <email>",
	Short:   "Track a company",
	Example: `  claimwatch company add Acme pr@acme.example`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := mail.ParseAddress(args[1]); err != nil {
			return fmt.Errorf("invalid email %q: %w", args[1], err)
		}

		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		company, created, err := st.AddCompany(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), company)
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Tracking %s (#%d), alerts go to %s\n", company.Name, company.ID, company.Email)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already tracked (#%d, %s)\n", company.Name, company.ID, company.Email)
		}
		return nil
	},
}

var companyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked companies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		companies, err := st.ListCompanies(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), companies)
		}
		if len(companies) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No companies tracked.")
			return nil
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tADDED")
		for _, c := range companies {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.Email, c.CreatedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	},
}

var companyRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Stop tracking a company; its posts and verdicts are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid company id %q", args[0])
		}

		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.DeleteCompany(cmd.Context(), uint(id)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("company #%d not found", id)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed company #%d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(companyCmd)
	companyCmd.AddCommand(companyAddCmd)
	companyCmd.AddCommand(companyListCmd)
	companyCmd.AddCommand(companyRemoveCmd)
}
