// Package directory is the Directory side: an LDAP server reached through
// go-ldap, or an in-memory stand-in.
package directory

import (
	"context"
	"strings"
)

// Entry is one Directory entry. Attribute names compare case-insensitively.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

func NewEntry(dn string, attrs map[string][]string) *Entry {
	e := &Entry{DN: dn, Attributes: make(map[string][]string, len(attrs))}
	for k, v := range attrs {
		e.Set(k, v)
	}
	return e
}

// Values returns the values of attr in server order.
func (e *Entry) Values(attr string) []string {
	if v, ok := e.Attributes[attr]; ok {
		return v
	}
	for k, v := range e.Attributes {
		if strings.EqualFold(k, attr) {
			return v
		}
	}
	return nil
}

// Set replaces attr. No values removes it.
func (e *Entry) Set(attr string, values []string) {
	for k := range e.Attributes {
		if strings.EqualFold(k, attr) {
			delete(e.Attributes, k)
		}
	}
	if len(values) > 0 {
		e.Attributes[attr] = append([]string(nil), values...)
	}
}

func (e *Entry) clone() *Entry {
	return NewEntry(e.DN, e.Attributes)
}

// Store is the Directory wire surface used by the sync.
type Store interface {
	Search(ctx context.Context) ([]*Entry, error)
	// Find searches for entries whose attr holds value.
	Find(ctx context.Context, attr, value string) ([]*Entry, error)
	Add(ctx context.Context, dn string, attrs map[string][]string) error
	Delete(ctx context.Context, dn string) error
	// Modify replaces each given attribute with its values. An empty value
	// list removes the attribute.
	Modify(ctx context.Context, dn string, replace map[string][]string) error
	Close() error
}
