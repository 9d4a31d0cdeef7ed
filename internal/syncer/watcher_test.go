package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher_FiresOnWatchedFile(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "config.yaml")
	other := filepath.Join(dir, "ledger.db")

	fw := newFileWatcher(watched)
	fw.debounceTimeout = 20 * time.Millisecond

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fw.Watch(ctx, func(string) { fired.Add(1) })
	}()

	// writes to other files in the directory are ignored
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())

	require.Eventually(t, func() bool {
		_ = os.WriteFile(watched, []byte("v"), 0o644)
		return fired.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestFileWatcher_SuspendAndResume(t *testing.T) {
	fw := newFileWatcher(filepath.Join(t.TempDir(), "local.db"))
	assert.False(t, fw.ignored())

	fw.Suspend()
	assert.True(t, fw.ignored())

	fw.Resume(50 * time.Millisecond)
	assert.True(t, fw.ignored(), "grace period")
	assert.Eventually(t, func() bool { return !fw.ignored() }, time.Second, 10*time.Millisecond)
}

func TestNewFileWatcher_GroupsDirectories(t *testing.T) {
	fw := newFileWatcher("/data/config.yaml", "/data/local.db", "/contacts/book.db")
	assert.Equal(t, []string{"/data", "/contacts"}, fw.dirs)
	assert.Len(t, fw.files, 3)
}
