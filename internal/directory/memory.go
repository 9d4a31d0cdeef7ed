package directory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps entries in insertion order. Search ignores the filter
// and returns every entry.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(entries ...*Entry) *MemoryStore {
	m := &MemoryStore{}
	for _, e := range entries {
		m.entries = append(m.entries, e.clone())
	}
	return m
}

func (m *MemoryStore) index(dn string) int {
	for i, e := range m.entries {
		if strings.EqualFold(e.DN, dn) {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) Search(ctx context.Context) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.clone())
	}
	return out, nil
}

func (m *MemoryStore) Find(ctx context.Context, attr, value string) ([]*Entry, error) {
	all, err := m.Search(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Entry
	for _, e := range all {
		if slices.Contains(e.Values(attr), value) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get returns a copy of the entry at dn, or nil.
func (m *MemoryStore) Get(dn string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(dn); i >= 0 {
		return m.entries[i].clone()
	}
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) Add(_ context.Context, dn string, attrs map[string][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index(dn) >= 0 {
		return fmt.Errorf("directory add %s: entry already exists", dn)
	}
	m.entries = append(m.entries, NewEntry(dn, maps.Clone(attrs)))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, dn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(dn)
	if i < 0 {
		return fmt.Errorf("directory delete %s: no such object", dn)
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return nil
}

func (m *MemoryStore) Modify(_ context.Context, dn string, replace map[string][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(dn)
	if i < 0 {
		return fmt.Errorf("directory modify %s: no such object", dn)
	}
	for name, values := range replace {
		m.entries[i].Set(name, values)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
