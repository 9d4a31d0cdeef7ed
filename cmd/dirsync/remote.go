package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/controlplane/handlers"
	"github.com/openmined/dirsync/internal/cpclient"
	"github.com/openmined/dirsync/internal/eventlog"
	"github.com/spf13/cobra"
)

const followInterval = time.Second

func init() {
	rootCmd.AddCommand(newRemoteCmd())
}

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running daemon over its control plane",
	}
	addControlPlaneFlags(cmd.PersistentFlags())
	cmd.AddCommand(
		newRemoteStatusCmd(),
		newRemoteSyncCmd(),
		newRemoteStopCmd(),
		newRemoteLogsCmd(),
	)
	return cmd
}

type flagSet interface {
	StringP(name, shorthand, value, usage string) *string
}

func addControlPlaneFlags(fs flagSet) {
	fs.StringP("addr", "a", "", "control plane address, defaults to daemon.http_addr")
	fs.StringP("token", "t", "", "control plane token, defaults to daemon.http_token")
}

// controlPlaneClient builds a client from the flags, falling back to the
// daemon section of the config in the data directory.
func controlPlaneClient(cmd *cobra.Command) *cpclient.Client {
	addr, token := config.DefaultHTTPAddr, ""
	if cfg, err := config.Load(dataDir(cmd), nil); err == nil {
		if cfg.Daemon.HTTPAddr != "" {
			addr = cfg.Daemon.HTTPAddr
		}
		token = cfg.Daemon.HTTPToken
	}
	if f := cmd.Flag("addr"); f != nil && f.Changed {
		addr = f.Value.String()
	}
	if f := cmd.Flag("token"); f != nil && f.Changed {
		token = f.Value.String()
	}
	return cpclient.New(addr, token)
}

func newRemoteStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the daemon state and its last report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			status, err := controlPlaneClient(cmd).Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func printStatus(w io.Writer, s *handlers.StatusResponse) {
	state := green.Render(string(s.State))
	if s.Running {
		state = yellow.Render(string(s.State))
	}
	fmt.Fprintf(w, "%s%s\n", gray.Render("State    "), state)
	fmt.Fprintf(w, "%s%s (%s)\n", gray.Render("Version  "), s.Version, s.Revision)
	if s.Last != nil {
		fmt.Fprintf(w, "%s%s, %s\n", gray.Render("Last     "), s.Summary, humanize.Time(s.Last.FinishedAt))
	} else {
		fmt.Fprintf(w, "%s%s\n", gray.Render("Last     "), "no sync yet")
	}
	if rt := s.Runtime; rt != nil {
		uptime := time.Duration(rt.Uptime) * time.Millisecond
		fmt.Fprintf(w, "%s%d, up %s\n", gray.Render("PID      "), rt.PID, uptime.Truncate(time.Second))
		fmt.Fprintf(w, "%s%s (%.1f%%)\n", gray.Render("Memory   "), humanize.Bytes(rt.RSS), rt.MemoryPercent)
	}
}

func newRemoteSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ask the daemon for a pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := controlPlaneClient(cmd).Sync(cmd.Context()); err != nil {
				if cpclient.IsCode(err, handlers.ErrCodeSyncRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), yellow.Render("A sync is already running."))
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("Sync requested."))
			return nil
		},
	}
}

func newRemoteStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Interrupt the running pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := controlPlaneClient(cmd).Stop(cmd.Context()); err != nil {
				if cpclient.IsCode(err, handlers.ErrCodeSyncIdle) {
					fmt.Fprintln(cmd.OutOrStdout(), gray.Render("No sync running."))
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("Stop requested."))
			return nil
		},
	}
}

func newRemoteLogsCmd() *cobra.Command {
	var (
		follow bool
		since  int64
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the sync events of the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			client := controlPlaneClient(cmd)

			token := since
			for {
				page, err := client.Logs(ctx, token, 0)
				if err != nil {
					return err
				}
				for _, e := range page.Logs {
					printEvent(cmd.OutOrStdout(), e)
				}
				token = page.NextToken
				if page.HasMore {
					continue
				}
				if !follow {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(followInterval):
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events")
	cmd.Flags().Int64Var(&since, "since", 0, "sequence number to start from")

	return cmd
}

func printEvent(w io.Writer, e eventlog.Entry) {
	style := cyan
	switch e.Level {
	case eventlog.LevelWarn:
		style = yellow
	case eventlog.LevelError:
		style = red
	}
	fmt.Fprintf(w, "%s %s\n", gray.Render(e.Time.Local().Format(time.TimeOnly)), style.Render(e.Message))
}
