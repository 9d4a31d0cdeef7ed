package config

import (
	"fmt"
	"strings"

	"github.com/openmined/dirsync/internal/field"
)

// TypeCustom marks a Local sub-entry matched by its label instead of its type.
const TypeCustom = "custom"

// FieldMapping maps one Directory attribute to one Local field.
type FieldMapping struct {
	Directory string     `mapstructure:"directory" yaml:"directory"`
	Local     LocalField `mapstructure:"local" yaml:"local"`
}

// LocalField describes where a mapped value lives in the Local store. With
// an empty Collection the value is a plain field of the record. Otherwise
// it is held by the record's sub-entries in Collection, each with its own
// Type, Kind and Label.
type LocalField struct {
	Collection string `mapstructure:"collection" yaml:"collection,omitempty" json:"collection,omitempty"`
	Name       string `mapstructure:"name" yaml:"name" json:"name"`
	Type       string `mapstructure:"type" yaml:"type,omitempty" json:"type,omitempty"`
	Kind       string `mapstructure:"kind" yaml:"kind,omitempty" json:"kind,omitempty"`
	Label      string `mapstructure:"label" yaml:"label,omitempty" json:"label,omitempty"`
}

func (f LocalField) Equal(o LocalField) bool {
	return f == o
}

// MultiValued reports whether the field is stored as sub-entries.
func (f LocalField) MultiValued() bool {
	return f.Collection != ""
}

// Shape is the form the local store keeps the field in. A plain column holds
// a single value.
func (f LocalField) Shape() field.Shape {
	if f.MultiValued() {
		return field.List
	}
	return field.Scalar
}

// Matches reports whether a sub-entry of the field's collection with the
// given discriminators belongs to this field. A custom type matches on the
// label, an empty type matches any type, and an empty kind matches any kind.
func (f LocalField) Matches(typ, kind, label string) bool {
	switch {
	case f.Type == "":
	case strings.EqualFold(f.Type, TypeCustom):
		if label != f.Label {
			return false
		}
	case typ != f.Type:
		return false
	}
	return f.Kind == "" || kind == f.Kind
}

func (f LocalField) String() string {
	if !f.MultiValued() {
		return f.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s", f.Collection, f.Name)
	if f.Type != "" {
		fmt.Fprintf(&b, "[type=%s]", f.Type)
	}
	if f.Kind != "" {
		fmt.Fprintf(&b, "[kind=%s]", f.Kind)
	}
	if f.Label != "" {
		fmt.Fprintf(&b, "[label=%s]", f.Label)
	}
	return b.String()
}
