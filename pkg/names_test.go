package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameTableInternIsIdempotent(t *testing.T) {
	nt := NewNameTable()
	a := nt.Intern("foo")
	b := nt.Intern("foo")
	assert.Equal(t, a, b, "two Intern calls for the same name must return the same NameID")

	c := nt.Intern("bar")
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, nt.Len())
}

func TestNameTableLookup(t *testing.T) {
	nt := NewNameTable()
	id := nt.Intern("foo")

	got, ok := nt.Lookup("foo")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = nt.Lookup("never-interned")
	assert.False(t, ok)
}

func TestNameTableGetReturnsSameUnderlyingName(t *testing.T) {
	nt := NewNameTable()
	id := nt.Intern("foo")
	pn := nt.Get(id)
	assert.Equal(t, "foo", pn.Name)
	assert.Equal(t, NoName, pn.Srcpkg)
	assert.True(t, pn.Mtime.Unknown())
}

func TestMtimeOrdering(t *testing.T) {
	unknown := Mtime{}
	missing := missingMtime()
	early := timestampMtime(100)
	late := timestampMtime(200)

	assert.True(t, unknown.Before(early))
	assert.True(t, missing.Before(early))
	assert.True(t, early.Before(late))
	assert.False(t, late.Before(early))
	assert.True(t, early.AtLeast(early))
	assert.False(t, early.Before(unknown))
	assert.False(t, early.Before(missing))
}
