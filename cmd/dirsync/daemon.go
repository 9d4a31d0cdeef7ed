package main

import (
	"log/slog"
	"time"

	"github.com/openmined/dirsync/internal/controlplane"
	"github.com/openmined/dirsync/internal/syncer"
	"github.com/openmined/dirsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	var (
		interval  time.Duration
		addr      string
		authToken string
		noHTTP    bool
		noWatch   bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync on an interval, on file changes and on request",
		Long: `Sync on an interval, on file changes and on request.

Flags override the daemon section of the config. The control plane serves
status, manual sync, the event log and ledger maintenance over http.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			slog.Info("dirsync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			s, err := newSyncer(cmd)
			if err != nil {
				return err
			}
			cfg, err := s.LoadConfig()
			if err != nil {
				return err
			}

			dc := syncer.DaemonConfig{
				Interval: cfg.Daemon.Interval,
				DryRun:   dryRun,
			}
			if cmd.Flag("interval").Changed {
				dc.Interval = interval
			}
			if cfg.Daemon.Watch && !noWatch {
				dc.WatchPaths = []string{s.Workspace().ConfigPath, cfg.LocalPath()}
			}
			if !noHTTP {
				cp := &controlplane.Config{
					Addr:      cfg.Daemon.HTTPAddr,
					AuthToken: cfg.Daemon.HTTPToken,
				}
				if cmd.Flag("http-addr").Changed {
					cp.Addr = addr
				}
				if cmd.Flag("http-token").Changed {
					cp.AuthToken = authToken
				}
				dc.HTTP = cp
			}

			d, err := syncer.NewDaemon(s, dc)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return d.Start(cmd.Context())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "time between passes, 0 to sync only on triggers")
	cmd.Flags().StringVarP(&addr, "http-addr", "a", "", "address of the control plane")
	cmd.Flags().StringVarP(&authToken, "http-token", "t", "", "access token for the control plane")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not start the control plane")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not sync on config or local store changes")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report what would change without writing")

	return cmd
}
