package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/openmined/dirsync/internal/controlplane"
	"github.com/openmined/dirsync/internal/controlplane/handlers"
	"github.com/openmined/dirsync/internal/cpclient"
	"github.com/openmined/dirsync/internal/directory"
	"github.com/openmined/dirsync/internal/eventlog"
	"github.com/openmined/dirsync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveControlPlane runs the control plane of a syncer over dir and
// returns its address.
func serveControlPlane(t *testing.T, dir string) (*syncer.Syncer, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := syncer.New(syncer.Options{DataDir: dir, Dial: dialDirectory})
	require.NoError(t, err)

	h, err := controlplane.SetupRoutes(s, &controlplane.RouteConfig{AuthToken: "secret", RateLimit: "1000-S"})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return s, srv.URL
}

func TestRemoteCommands(t *testing.T) {
	dir := initDataDir(t)
	withDirectory(t, directory.NewEntry("uid=alice,ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"alice"},
		"cn":  {"Alice"},
	}))
	s, addr := serveControlPlane(t, dir)

	out, err := execute(t, "remote", "status", "-d", dir, "-a", addr, "-t", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "idle")
	assert.Contains(t, out, "no sync yet")

	_, err = s.Run(context.Background(), false)
	require.NoError(t, err)

	out, err = execute(t, "remote", "status", "-d", dir, "-a", addr, "-t", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "1 created")

	out, err = execute(t, "remote", "logs", "-d", dir, "-a", addr, "-t", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Starting sync...")
	assert.Contains(t, out, "...finished sync.")

	out, err = execute(t, "remote", "sync", "-d", dir, "-a", addr, "-t", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Sync requested.")

	out, err = execute(t, "remote", "stop", "-d", dir, "-a", addr, "-t", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "No sync running.")

	_, err = execute(t, "remote", "status", "-d", dir, "-a", addr, "-t", "wrong")
	assert.ErrorContains(t, err, "401")
}

func TestWatchModel(t *testing.T) {
	dir := initDataDir(t)
	withDirectory(t)
	_, addr := serveControlPlane(t, dir)

	m := newWatchModel(context.Background(), cpclient.New(addr, "secret"))
	assert.Contains(t, m.View(), "connecting...")

	msg := m.poll()()
	poll, ok := msg.(pollMsg)
	require.True(t, ok)
	require.NoError(t, poll.err)

	next, cmd := m.Update(poll)
	m = next.(watchModel)
	assert.NotNil(t, cmd, "schedules the next poll")
	assert.Contains(t, m.View(), "idle")

	next, _ = m.Update(pollMsg{logs: &handlers.LogsResponse{
		Logs:      []eventlog.Entry{{Seq: 7, Message: "Warning: alice has no mail", Level: eventlog.LevelWarn}},
		NextToken: 8,
	}})
	m = next.(watchModel)
	assert.Equal(t, int64(8), m.token)
	assert.Contains(t, m.View(), "Warning: alice has no mail")

	next, _ = m.Update(actionMsg{message: txtSyncRequested})
	m = next.(watchModel)
	assert.True(t, strings.Contains(m.View(), txtSyncRequested))
}
