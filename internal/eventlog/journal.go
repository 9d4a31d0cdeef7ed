package eventlog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultCapacity = 1000

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one sync event. Seq increases by one per event and survives
// eviction, so it doubles as a paging token.
type Entry struct {
	Seq     int64     `json:"seq"`
	Time    time.Time `json:"timestamp"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Journal keeps the most recent sync events in a ring buffer and mirrors
// each one to slog. It is safe for concurrent use.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	start   int
	size    int
	next    int64
	now     func() time.Time
}

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		entries: make([]Entry, capacity),
		now:     time.Now,
	}
}

// Event records msg. It implements reconcile.Sink.
func (j *Journal) Event(msg string) {
	level := levelOf(msg)

	j.mu.Lock()
	e := Entry{Seq: j.next, Time: j.now().UTC(), Level: level, Message: msg}
	j.next++
	idx := (j.start + j.size) % len(j.entries)
	j.entries[idx] = e
	if j.size < len(j.entries) {
		j.size++
	} else {
		j.start = (j.start + 1) % len(j.entries)
	}
	j.mu.Unlock()

	slog.Log(context.Background(), level.slog(), msg, "seq", e.Seq)
}

func levelOf(msg string) Level {
	switch {
	case strings.HasPrefix(msg, "Error"):
		return LevelError
	case strings.HasPrefix(msg, "Warning"), strings.HasPrefix(msg, "There is a"):
		return LevelWarn
	default:
		return LevelInfo
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Page returns up to limit entries with Seq >= from, the token for the
// next page and whether more entries are already available. Entries evicted
// before from was requested are skipped.
func (j *Journal) Page(from int64, limit int) ([]Entry, int64, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	oldest := j.next - int64(j.size)
	from = max(from, oldest)
	if from >= j.next {
		return []Entry{}, j.next, false
	}
	if limit <= 0 {
		return []Entry{}, from, true
	}

	n := min(int(j.next-from), limit)
	out := make([]Entry, 0, n)
	offset := int(from - oldest)
	for i := range n {
		out = append(out, j.entries[(j.start+offset+i)%len(j.entries)])
	}
	next := from + int64(n)
	return out, next, next < j.next
}

// Len is the number of retained entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.size
}
