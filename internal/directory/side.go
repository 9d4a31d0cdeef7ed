package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmined/dirsync/internal/field"
	"github.com/openmined/dirsync/internal/reconcile"
)

// Naming describes how entries created by the sync are named and typed.
type Naming struct {
	BaseDN string
	// Leaf is the RDN attribute; its value is the identifier.
	Leaf string
	// LeafCopies are extra attributes that also receive the identifier.
	LeafCopies    []string
	ObjectClasses []string
}

// DN returns the distinguished name of a new entry for id.
func (n Naming) DN(id string) string {
	return fmt.Sprintf("%s=%s,%s", n.Leaf, escapeRDNValue(id), n.BaseDN)
}

// Side exposes a Store to the sync engine.
type Side struct {
	store  Store
	idAttr string
	naming Naming
}

var _ reconcile.Side = (*Side)(nil)

func NewSide(store Store, idAttr string, naming Naming) *Side {
	return &Side{store: store, idAttr: idAttr, naming: naming}
}

func (s *Side) Kind() reconcile.SideKind { return reconcile.Directory }

func (s *Side) List(ctx context.Context) ([]reconcile.Entity, error) {
	entries, err := s.store.Search(ctx)
	if err != nil {
		return nil, err
	}
	return s.entities(entries), nil
}

func (s *Side) Lookup(ctx context.Context, id string) ([]reconcile.Entity, error) {
	entries, err := s.store.Find(ctx, s.idAttr, id)
	if err != nil {
		return nil, err
	}
	return s.entities(entries), nil
}

func (s *Side) entities(entries []*Entry) []reconcile.Entity {
	out := make([]reconcile.Entity, 0, len(entries))
	for _, e := range entries {
		out = append(out, &entity{side: s, entry: e})
	}
	return out
}

// Create adds an entry named by the leaf attribute under the base DN. The
// leaf, its copies and the identifier attribute are set to id unless the
// mapping already provides them.
func (s *Side) Create(ctx context.Context, id string, values map[string]field.Value) error {
	e := NewEntry(s.naming.DN(id), nil)
	for name, v := range values {
		if vs := v.NonEmpty(); len(vs) > 0 {
			e.Set(name, vs)
		}
	}
	for _, attr := range append([]string{s.naming.Leaf, s.idAttr}, s.naming.LeafCopies...) {
		if attr != "" && len(e.Values(attr)) == 0 {
			e.Set(attr, []string{id})
		}
	}
	if len(s.naming.ObjectClasses) > 0 {
		e.Set("objectClass", s.naming.ObjectClasses)
	}
	return s.store.Add(ctx, e.DN, e.Attributes)
}

func (s *Side) Delete(ctx context.Context, e reconcile.Entity) error {
	ent, err := s.own(e)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, ent.entry.DN)
}

// Apply replaces all values of the attribute in one modify request.
func (s *Side) Apply(ctx context.Context, e reconcile.Entity, name string, v field.Value) error {
	ent, err := s.own(e)
	if err != nil {
		return err
	}
	values := v.NonEmpty()
	if err := s.store.Modify(ctx, ent.entry.DN, map[string][]string{name: values}); err != nil {
		return err
	}
	ent.entry.Set(name, values)
	return nil
}

func (s *Side) own(e reconcile.Entity) (*entity, error) {
	ent, ok := e.(*entity)
	if !ok || ent.side != s {
		return nil, fmt.Errorf("entity %q does not belong to the directory", e.ID())
	}
	return ent, nil
}

type entity struct {
	side  *Side
	entry *Entry
}

func (e *entity) ID() string {
	if vs := e.entry.Values(e.side.idAttr); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (e *entity) Values(_ context.Context, name string) (field.Value, error) {
	return field.NewList(e.entry.Values(name)...), nil
}

// escapeRDNValue escapes an attribute value for use in a DN (RFC 4514).
func escapeRDNValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch {
		case r == ',' || r == '+' || r == '"' || r == '\\' || r == '<' || r == '>' || r == ';' || r == '=':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '#' && i == 0:
			b.WriteString(`\#`)
		case r == ' ' && (i == 0 || i == len(v)-1):
			b.WriteString(`\ `)
		case r == 0:
			b.WriteString(`\00`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
