package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/openmined/dirsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLedgerCmd())
}

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or reset the checksum ledger",
	}
	cmd.AddCommand(newLedgerStatsCmd(), newLedgerShowCmd(), newLedgerCleanCmd())
	return cmd
}

func newLedgerStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the size of the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			s, err := newSyncer(cmd)
			if err != nil {
				return err
			}
			stats, err := s.LedgerStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:     %s\n", cyan.Render(s.Workspace().LedgerPath))
			fmt.Fprintf(out, "Size:     %s\n", humanize.Bytes(uint64(utils.FileSize(s.Workspace().LedgerPath))))
			fmt.Fprintf(out, "Entities: %s\n", humanize.Comma(int64(stats.Entities)))
			fmt.Fprintf(out, "Rows:     %s\n", humanize.Comma(int64(stats.Rows)))
			return nil
		},
	}
}

func newLedgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the fingerprints recorded for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			s, err := newSyncer(cmd)
			if err != nil {
				return err
			}
			entries, err := s.LedgerEntries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no ledger entries for '%s'", args[0])
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(gray).
				Headers("FIELD", "FINGERPRINT", "UPDATED")
			for _, e := range entries {
				t.Row(e.Field, string(e.Fingerprint), e.UpdatedAt)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}

func newLedgerCleanCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Empty the ledger so that the next pass starts from first contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("cleaning the ledger turns every entity into first contact, pass --yes to confirm")
			}
			cmd.SilenceUsage = true
			s, err := newSyncer(cmd)
			if err != nil {
				return err
			}
			if err := s.CleanLedger(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("ledger cleaned"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}
