package local

import (
	"context"
	"fmt"

	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/field"
	"github.com/openmined/dirsync/internal/reconcile"
)

// Side exposes the store to the sync engine through the field mapping.
type Side struct {
	store   *Store
	idField string
	fields  map[string]config.LocalField
}

var _ reconcile.Side = (*Side)(nil)

func NewSide(store *Store, idField string, mapping []config.FieldMapping) *Side {
	fields := make(map[string]config.LocalField, len(mapping))
	for _, m := range mapping {
		fields[m.Directory] = m.Local
	}
	return &Side{store: store, idField: idField, fields: fields}
}

func (s *Side) Kind() reconcile.SideKind { return reconcile.Local }

func (s *Side) List(ctx context.Context) ([]reconcile.Entity, error) {
	recs, err := s.store.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.entities(recs), nil
}

func (s *Side) Lookup(ctx context.Context, id string) ([]reconcile.Entity, error) {
	recs, err := s.store.QueryByIdentifier(ctx, s.idField, id)
	if err != nil {
		return nil, err
	}
	return s.entities(recs), nil
}

func (s *Side) entities(recs []Record) []reconcile.Entity {
	out := make([]reconcile.Entity, 0, len(recs))
	for _, r := range recs {
		out = append(out, &entity{side: s, rec: r})
	}
	return out
}

// Create inserts a record carrying the identifier and every non-absent
// mapped value. A multi-valued value mapped to a plain field keeps its first
// element.
func (s *Side) Create(ctx context.Context, id string, values map[string]field.Value) error {
	fields := map[string]string{s.idField: id}
	var items []Item
	for name, v := range values {
		desc, err := s.descriptor(name)
		if err != nil {
			return err
		}
		if desc.MultiValued() {
			items = append(items, newItems(0, desc, v)...)
			continue
		}
		if first := v.First(); first != "" {
			fields[desc.Name] = first
		}
	}
	_, err := s.store.InsertRecord(ctx, fields, items)
	return err
}

func (s *Side) Delete(ctx context.Context, e reconcile.Entity) error {
	ent, err := s.own(e)
	if err != nil {
		return err
	}
	return s.store.DeleteRecord(ctx, ent.rec.ID)
}

// Apply replaces the field: plain fields are overwritten, sub-entries
// matching the descriptor are deleted and re-inserted from v.
func (s *Side) Apply(ctx context.Context, e reconcile.Entity, name string, v field.Value) error {
	ent, err := s.own(e)
	if err != nil {
		return err
	}
	desc, err := s.descriptor(name)
	if err != nil {
		return err
	}

	if !desc.MultiValued() {
		value := v.First()
		if err := s.store.UpdateRecord(ctx, ent.rec.ID, map[string]string{desc.Name: value}); err != nil {
			return err
		}
		if value == "" {
			delete(ent.rec.Fields, desc.Name)
		} else {
			ent.rec.Fields[desc.Name] = value
		}
		return nil
	}

	current, err := s.matchingItems(ctx, ent.rec.ID, desc)
	if err != nil {
		return err
	}
	remove := make([]int64, 0, len(current))
	for _, it := range current {
		remove = append(remove, it.ID)
	}
	return s.store.ReplaceItems(ctx, remove, newItems(ent.rec.ID, desc, v))
}

func (s *Side) descriptor(name string) (config.LocalField, error) {
	desc, ok := s.fields[name]
	if !ok {
		return config.LocalField{}, fmt.Errorf("field %q is not mapped", name)
	}
	return desc, nil
}

func (s *Side) own(e reconcile.Entity) (*entity, error) {
	ent, ok := e.(*entity)
	if !ok || ent.side != s {
		return nil, fmt.Errorf("entity %q does not belong to the local store", e.ID())
	}
	return ent, nil
}

func (s *Side) matchingItems(ctx context.Context, recordID int64, desc config.LocalField) ([]Item, error) {
	items, err := s.store.ListItems(ctx, recordID, desc.Collection)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Name == desc.Name && desc.Matches(it.Type, it.Kind, it.Label) {
			out = append(out, it)
		}
	}
	return out, nil
}

func newItems(recordID int64, desc config.LocalField, v field.Value) []Item {
	values := v.NonEmpty()
	items := make([]Item, 0, len(values))
	for _, value := range values {
		items = append(items, Item{
			ContactID:  recordID,
			Collection: desc.Collection,
			Name:       desc.Name,
			Value:      value,
			Type:       desc.Type,
			Kind:       desc.Kind,
			Label:      desc.Label,
		})
	}
	return items
}

type entity struct {
	side *Side
	rec  Record
}

func (e *entity) ID() string { return e.rec.Fields[e.side.idField] }

// Values reads plain fields from the record loaded by List or Lookup and
// sub-entries from the store on each call.
func (e *entity) Values(ctx context.Context, name string) (field.Value, error) {
	desc, err := e.side.descriptor(name)
	if err != nil {
		return field.Value{}, err
	}
	if !desc.MultiValued() {
		return field.NewScalar(e.rec.Fields[desc.Name]), nil
	}
	items, err := e.side.matchingItems(ctx, e.rec.ID, desc)
	if err != nil {
		return field.Value{}, err
	}
	values := make([]string, 0, len(items))
	for _, it := range items {
		values = append(values, it.Value)
	}
	return field.NewList(values...), nil
}
