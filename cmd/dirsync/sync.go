package main

import (
	"fmt"
	"io"

	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/openmined/dirsync/internal/syncer"
	"github.com/spf13/cobra"
)

// dialDirectory replaces the LDAP connection when set.
var dialDirectory syncer.DialFunc

func newSyncer(cmd *cobra.Command) (*syncer.Syncer, error) {
	return syncer.New(syncer.Options{
		DataDir: dataDir(cmd),
		Dial:    dialDirectory,
	})
}

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	var (
		dryRun bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}
			cmd.SilenceUsage = true

			s, err := newSyncer(cmd)
			if err != nil {
				return err
			}

			report, err := s.Run(cmd.Context(), dryRun)
			if report != nil {
				if format == "json" {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report what would change without writing")
	cmd.Flags().StringVarP(&format, "format", "o", "text", "report format: text or json")

	return cmd
}

func printReport(w io.Writer, r *reconcile.Report) {
	style := green
	switch {
	case r.State == reconcile.StateAborted:
		style = red
	case r.State == reconcile.StateInterrupted || r.Counts.Conflicts > 0:
		style = yellow
	}
	fmt.Fprintln(w, style.Render(r.Summary()))

	for _, issue := range r.Issues {
		marker := yellow.Render("warning")
		if issue.Kind == reconcile.IssueConflict {
			marker = red.Render("conflict")
		}
		fmt.Fprintf(w, "  %s %s\n", marker, issue.Message)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", red.Render("error"), r.Error)
	}
	fmt.Fprintf(w, "%s\n", gray.Render("run "+r.RunID))
}
