package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_LevelsAndPaging(t *testing.T) {
	j := NewJournal(10)
	j.Event("Starting sync...")
	j.Event("Warning: more than one record for id '5' in Local, using the first one, please clean up")
	j.Event("There is a conflict for id '7' (fields: mail), please resolve manually")
	j.Event("Error: Directory list: connection refused")

	page, next, more := j.Page(0, 2)
	require.Len(t, page, 2)
	assert.Equal(t, LevelInfo, page[0].Level)
	assert.Equal(t, LevelWarn, page[1].Level)
	assert.Equal(t, int64(2), next)
	assert.True(t, more)

	page, next, more = j.Page(next, 10)
	require.Len(t, page, 2)
	assert.Equal(t, LevelWarn, page[0].Level)
	assert.Equal(t, LevelError, page[1].Level)
	assert.Equal(t, int64(4), next)
	assert.False(t, more)

	page, next, more = j.Page(next, 10)
	assert.Empty(t, page)
	assert.Equal(t, int64(4), next)
	assert.False(t, more)
}

func TestJournal_Eviction(t *testing.T) {
	j := NewJournal(3)
	for i := range 5 {
		j.Event(fmt.Sprintf("event %d", i))
	}
	assert.Equal(t, 3, j.Len())

	page, next, more := j.Page(0, 10)
	require.Len(t, page, 3)
	assert.Equal(t, int64(2), page[0].Seq)
	assert.Equal(t, "event 2", page[0].Message)
	assert.Equal(t, "event 4", page[2].Message)
	assert.Equal(t, int64(5), next)
	assert.False(t, more)

	page, next, _ = j.Page(99, 10)
	assert.Empty(t, page)
	assert.Equal(t, int64(5), next)
}

func TestFanout(t *testing.T) {
	var info, warn bytes.Buffer
	h := NewFanout(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("run", "abc")

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger.Info("hello")
	logger.Warn("careful")

	assert.Contains(t, info.String(), "msg=hello")
	assert.Contains(t, info.String(), "msg=careful")
	assert.Contains(t, info.String(), "run=abc")
	assert.NotContains(t, warn.String(), "hello")
	assert.Contains(t, warn.String(), "msg=careful")
}
