package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/eventlog"
	"github.com/openmined/dirsync/internal/utils"
	"github.com/openmined/dirsync/internal/version"
	"github.com/openmined/dirsync/internal/workspace"
	"github.com/spf13/cobra"
)

const envDataDir = config.EnvPrefix + "_DATA_DIR"

var logFile io.Closer

var rootCmd = &cobra.Command{
	Use:           "dirsync",
	Short:         "Two-way sync between an LDAP directory and a local contact store",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		return setupLogging(cmd, verbose)
	},
}

func init() {
	addPersistentFlags(rootCmd)
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("data-dir", "d", config.DefaultDataDir, "dirsync data directory")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output to the terminal")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red.Render("ERROR:"), err)
		os.Exit(1)
	}
}

// dataDir resolves the data directory: the flag when set, then
// DIRSYNC_DATA_DIR, then the default.
func dataDir(cmd *cobra.Command) string {
	if f := cmd.Flag("data-dir"); f != nil && f.Changed {
		return f.Value.String()
	}
	if env := os.Getenv(envDataDir); env != "" {
		return env
	}
	return config.DefaultDataDir
}

// setupLogging logs to stderr, colored on a terminal, and to the log file of
// the data directory when it exists.
func setupLogging(cmd *cobra.Command, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlers := []slog.Handler{
		tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		}),
	}

	ws, err := workspace.New(dataDir(cmd))
	if err != nil {
		return err
	}
	if utils.DirExists(ws.LogsDir) {
		file, err := os.OpenFile(ws.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = file
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	slog.SetDefault(slog.New(eventlog.NewFanout(handlers...)))
	return nil
}
