// Package field holds the value shapes exchanged between the two stores and
// the fingerprints used to detect changes to them.
package field

import "strings"

// Shape is the form a mapped field takes in the local store.
type Shape int

const (
	Scalar Shape = iota
	List
)

func (s Shape) String() string {
	switch s {
	case Scalar:
		return "scalar"
	case List:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the current content of one mapped field. A scalar holds at most
// one element. Order of a list is significant.
type Value struct {
	values []string
}

// NewScalar returns a scalar value. An empty string is an absent value.
func NewScalar(v string) Value {
	if v == "" {
		return Value{}
	}
	return Value{values: []string{v}}
}

// NewList returns an ordered multi-value. Empty elements are kept as the
// store returned them; Hash and NonEmpty skip them.
func NewList(vs ...string) Value {
	if len(vs) == 0 {
		return Value{}
	}
	cp := make([]string, len(vs))
	copy(cp, vs)
	return Value{values: cp}
}

// As projects v onto the given shape. A scalar keeps only the first
// non-empty element, a list keeps the non-empty elements in order.
func (v Value) As(s Shape) Value {
	if s == Scalar {
		return NewScalar(v.First())
	}
	return NewList(v.NonEmpty()...)
}

// IsAbsent reports whether the value carries no content at all.
func (v Value) IsAbsent() bool {
	for _, s := range v.values {
		if s != "" {
			return false
		}
	}
	return true
}

// Values returns a copy of the elements.
func (v Value) Values() []string {
	if len(v.values) == 0 {
		return nil
	}
	cp := make([]string, len(v.values))
	copy(cp, v.values)
	return cp
}

// NonEmpty returns the elements with empty strings dropped, the form used
// when a value is written to a store.
func (v Value) NonEmpty() []string {
	var out []string
	for _, s := range v.values {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// First returns the first non-empty element or "".
func (v Value) First() string {
	for _, s := range v.values {
		if s != "" {
			return s
		}
	}
	return ""
}

func (v Value) String() string {
	return strings.Join(v.values, ", ")
}
