package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/openmined/dirsync/internal/field"
)

// Entity is one record on either side, read through the field mapping.
type Entity interface {
	ID() string
	Values(ctx context.Context, fieldName string) (field.Value, error)
}

// Side adapts a store to the operations a pass needs. Field names are the
// Directory attribute names of the mapping; each side translates them to its
// own storage.
type Side interface {
	Kind() SideKind
	List(ctx context.Context) ([]Entity, error)
	Lookup(ctx context.Context, id string) ([]Entity, error)
	Create(ctx context.Context, id string, values map[string]field.Value) error
	Delete(ctx context.Context, e Entity) error
	Apply(ctx context.Context, e Entity, fieldName string, v field.Value) error
}

// Ledger is the checksum ledger as seen by the engine.
type Ledger interface {
	Has(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id, fieldName string) (field.Fingerprint, error)
	Put(ctx context.Context, id, fieldName string, fp field.Fingerprint) error
	RemoveAll(ctx context.Context, id string) error
}

// Session holds everything a single pass touches. Close releases the
// resources in reverse acquisition order.
type Session struct {
	Ledger    Ledger
	Directory Side
	Local     Side

	closeOnce sync.Once
	closers   []func() error
	closeErr  error
}

func NewSession(l Ledger, directory, local Side, closers ...func() error) *Session {
	return &Session{
		Ledger:    l,
		Directory: directory,
		Local:     local,
		closers:   closers,
	}
}

func (s *Session) side(k SideKind) Side {
	if k == Directory {
		return s.Directory
	}
	return s.Local
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Sink receives human readable progress events.
type Sink interface {
	Event(msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg string)

func (f SinkFunc) Event(msg string) { f(msg) }

type discardSink struct{}

func (discardSink) Event(string) {}
