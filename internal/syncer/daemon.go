package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/dirsync/internal/controlplane"
	"github.com/openmined/dirsync/internal/reconcile"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type DaemonConfig struct {
	// Interval between passes. Zero runs passes only on triggers.
	Interval time.Duration
	DryRun   bool
	// WatchPaths are files whose changes trigger a pass.
	WatchPaths []string
	// HTTP enables the control plane when non-nil.
	HTTP *controlplane.Config
}

// Daemon runs passes on a timer, on file changes and on control plane
// requests until its context is cancelled.
type Daemon struct {
	syncer  *Syncer
	config  DaemonConfig
	cps     *controlplane.Server
	watcher *fileWatcher
}

func NewDaemon(s *Syncer, config DaemonConfig) (*Daemon, error) {
	d := &Daemon{syncer: s, config: config}

	if config.HTTP != nil {
		cps, err := controlplane.New(config.HTTP, s)
		if err != nil {
			return nil, fmt.Errorf("control plane: %w", err)
		}
		d.cps = cps
	}
	if len(config.WatchPaths) > 0 {
		d.watcher = newFileWatcher(config.WatchPaths...)
	}
	return d, nil
}

func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("daemon start", "interval", d.config.Interval, "dryRun", d.config.DryRun, "watch", d.watcher != nil, "http", d.cps != nil)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return d.loop(egCtx)
	})

	if d.watcher != nil {
		eg.Go(func() error {
			err := d.watcher.Watch(egCtx, func(path string) {
				slog.Info("file changed, sync requested", "path", path)
				if err := d.syncer.Trigger(); err != nil {
					slog.Debug("sync trigger", "error", err)
				}
			})
			if err != nil {
				return fmt.Errorf("file watcher: %w", err)
			}
			return nil
		})
	}

	if d.cps != nil {
		eg.Go(func() error {
			if err := d.cps.Start(egCtx); err != nil {
				return fmt.Errorf("failed to start control plane: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("stopping daemon")
		d.syncer.Stop()
		if d.cps == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return d.cps.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

func (d *Daemon) loop(ctx context.Context) error {
	var tick <-chan time.Time
	if d.config.Interval > 0 {
		ticker := time.NewTicker(d.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	d.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			d.runOnce(ctx)
		case <-d.syncer.triggers:
			d.runOnce(ctx)
		}
	}
}

// runOnce runs a pass. A failed pass is logged and the daemon carries on;
// the next tick retries with a freshly loaded config.
func (d *Daemon) runOnce(ctx context.Context) {
	if d.watcher != nil {
		d.watcher.Suspend()
		defer d.watcher.Resume(defaultIgnoreTimeout)
	}

	report, err := d.syncer.Run(ctx, d.config.DryRun)
	switch {
	case errors.Is(err, reconcile.ErrSyncAlreadyRunning):
		slog.Debug("sync skipped", "reason", err)
	case err != nil:
		slog.Error("sync failed", "run", report.RunID, "error", err)
	default:
		slog.Info("sync done", "run", report.RunID, "summary", report.Summary())
	}
}
