package reconcile

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openmined/dirsync/internal/field"
	"github.com/openmined/dirsync/internal/ledger"
	"github.com/stretchr/testify/require"
)

type memEntity struct {
	id     string
	fields map[string]field.Value
}

func (e *memEntity) ID() string { return e.id }

func (e *memEntity) Values(_ context.Context, name string) (field.Value, error) {
	return e.fields[name], nil
}

// memSide is an ordered in-memory side for engine tests.
type memSide struct {
	kind    SideKind
	mu      sync.Mutex
	records []*memEntity
	failOn  string
}

func newMemSide(kind SideKind) *memSide {
	return &memSide{kind: kind}
}

func (s *memSide) put(id string, kv ...string) *memSide {
	e := &memEntity{id: id, fields: map[string]field.Value{}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.fields[kv[i]] = field.NewScalar(kv[i+1])
	}
	s.records = append(s.records, e)
	return s
}

func (s *memSide) putList(id, name string, values ...string) *memSide {
	if e := s.get(id); e != nil {
		e.fields[name] = field.NewList(values...)
		return s
	}
	s.records = append(s.records, &memEntity{id: id, fields: map[string]field.Value{name: field.NewList(values...)}})
	return s
}

func (s *memSide) get(id string) *memEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (s *memSide) value(id, name string) string {
	e := s.get(id)
	if e == nil {
		return ""
	}
	return e.fields[name].First()
}

var errInjected = errors.New("injected failure")

func (s *memSide) fail(op string) error {
	if s.failOn == op {
		return errInjected
	}
	return nil
}

func (s *memSide) Kind() SideKind { return s.kind }

func (s *memSide) List(context.Context) ([]Entity, error) {
	if err := s.fail("list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entity, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *memSide) Lookup(_ context.Context, id string) ([]Entity, error) {
	if err := s.fail("lookup"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entity
	for _, r := range s.records {
		if r.id == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memSide) Create(_ context.Context, id string, values map[string]field.Value) error {
	if err := s.fail("create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &memEntity{id: id, fields: maps.Clone(values)})
	return nil
}

func (s *memSide) Delete(_ context.Context, e Entity) error {
	if err := s.fail("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r == e {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memSide) Apply(_ context.Context, e Entity, name string, v field.Value) error {
	if err := s.fail("apply"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.(*memEntity).fields[name] = v
	return nil
}

type fixture struct {
	dir    *memSide
	local  *memSide
	ledger *ledger.Ledger
	events []string
	closed int
	policy Policy
	fields []string
	shapes map[string]field.Shape
	scope  Scope
	dryRun bool
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	f := &fixture{
		dir:    newMemSide(Directory),
		local:  newMemSide(Local),
		ledger: l,
		policy: DefaultPolicy(),
		fields: []string{"cn", "mail"},
	}
	f.engine = NewEngine(SinkFunc(func(msg string) { f.events = append(f.events, msg) }))
	return f
}

func (f *fixture) load(context.Context) (*Plan, error) {
	return &Plan{
		Policy: f.policy,
		Fields: f.fields,
		Shapes: f.shapes,
		Scope:  f.scope,
		DryRun: f.dryRun,
		Open: func(context.Context) (*Session, error) {
			return NewSession(f.ledger, f.dir, f.local, func() error {
				f.closed++
				return nil
			}), nil
		},
	}, nil
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	report, err := f.engine.Run(context.Background(), f.load)
	require.NoError(t, err)
	return report
}

func (f *fixture) seed(t *testing.T, id string, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, f.ledger.Put(context.Background(), id, kv[i], field.Hash(field.NewScalar(kv[i+1]))))
	}
}

func (f *fixture) base(t *testing.T, id, name string) field.Fingerprint {
	t.Helper()
	fp, err := f.ledger.Get(context.Background(), id, name)
	require.NoError(t, err)
	return fp
}
