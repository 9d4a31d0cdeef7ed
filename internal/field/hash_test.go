package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_AbsentValues(t *testing.T) {
	cases := []struct {
		name  string
		value Value
	}{
		{"zero", Value{}},
		{"empty-scalar", NewScalar("")},
		{"empty-list", NewList()},
		{"list-of-empties", NewList("", "")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.True(t, c.value.IsAbsent())
			assert.Equal(t, Absent, Hash(c.value))
		})
	}
}

func TestHash_ScalarMatchesMD5(t *testing.T) {
	// md5("alice@example.com")
	assert.Equal(t, Fingerprint("c160f8cc69a4f0bf2b0362752353d060"), Hash(NewScalar("alice@example.com")))
}

func TestHash_SingleElementListEqualsScalar(t *testing.T) {
	assert.Equal(t, Hash(NewScalar("555-1234")), Hash(NewList("555-1234")))
}

func TestHash_ListOrderIsSignificant(t *testing.T) {
	ab := Hash(NewList("a", "b"))
	ba := Hash(NewList("b", "a"))
	assert.NotEqual(t, ab, ba)
	assert.Equal(t, ab, Hash(NewList("a", "b")))
	assert.Equal(t, Hash(NewScalar("a\tb")), ab)
}

func TestHash_IgnoresEmptyElements(t *testing.T) {
	assert.Equal(t, Hash(NewScalar("bob@example.com")), Hash(NewList("bob@example.com", "")))
	assert.Equal(t, Hash(NewList("a", "b")), Hash(NewList("", "a", "", "b")))
}

func TestHash_NeverAbsentForContent(t *testing.T) {
	assert.False(t, Hash(NewScalar("0")).IsAbsent())
	assert.Len(t, string(Hash(NewScalar("0"))), 32)
}

func TestValue_NonEmptyAndFirst(t *testing.T) {
	v := NewList("", "a", "", "b")
	assert.Equal(t, []string{"a", "b"}, v.NonEmpty())
	assert.Equal(t, "a", v.First())
}

func TestNewList_CopiesInput(t *testing.T) {
	in := []string{"a", "b"}
	v := NewList(in...)
	in[0] = "z"
	assert.Equal(t, []string{"a", "b"}, v.Values())
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "scalar", Scalar.String())
	assert.Equal(t, "list", List.String())
}

func TestValue_As(t *testing.T) {
	multi := NewList("Alice", "", "Ally")

	assert.Equal(t, []string{"Alice"}, multi.As(Scalar).Values())
	assert.Equal(t, []string{"Alice", "Ally"}, multi.As(List).Values())

	assert.True(t, NewList().As(Scalar).IsAbsent())
	assert.Equal(t, []string{"x"}, NewScalar("x").As(List).Values())
	assert.Equal(t, Hash(NewScalar("Alice")), Hash(multi.As(Scalar)))
}
