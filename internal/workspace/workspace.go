// Package workspace is the dirsync data directory: config, ledger, logs and
// the lock that keeps two passes from running against it at once.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/dirsync/internal/utils"
)

const (
	logsDir    = "logs"
	lockFile   = "dirsync.lock"
	ledgerFile = "ledger.db"
	logFile    = "dirsync.log"
	configFile = "config.yaml"
)

var (
	ErrWorkspaceLocked = errors.New("data directory locked by another process")
)

type Workspace struct {
	Root       string
	LogsDir    string
	LedgerPath string
	ConfigPath string

	flock *flock.Flock
}

func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	return &Workspace{
		Root:       root,
		LogsDir:    filepath.Join(root, logsDir),
		LedgerPath: filepath.Join(root, ledgerFile),
		ConfigPath: filepath.Join(root, configFile),
		flock:      flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// LogFile is the path of the file log handler.
func (w *Workspace) LogFile() string {
	return filepath.Join(w.LogsDir, logFile)
}

// Initialized reports whether the data directory holds a config.
func (w *Workspace) Initialized() bool {
	return utils.DirExists(w.Root) && utils.FileExists(w.ConfigPath)
}

// Setup creates the directory layout. A file or symlink occupying the root
// path is removed first.
func (w *Workspace) Setup() error {
	replaced, err := utils.ReplaceNonDir(w.Root)
	if err != nil {
		return fmt.Errorf("failed to prepare %s: %w", w.Root, err)
	}
	if replaced {
		slog.Warn("replaced non-directory at data directory path", "path", w.Root)
	}

	for _, dir := range []string{w.Root, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	slog.Info("workspace", "root", w.Root)
	return nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock data directory: %w", err)
	}

	return os.Remove(w.flock.Path())
}
