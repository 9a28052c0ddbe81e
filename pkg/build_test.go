package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStoreFindOrCreateIsUnique(t *testing.T) {
	nt := NewNameTable()
	bt := NewBuilderTable()
	bs := NewBuildStore()

	name := nt.Intern("foo")
	builder := bt.Intern("x86_64", NoBuilder)

	b1 := bs.FindOrCreate(name, builder)
	b2 := bs.FindOrCreate(name, builder)
	assert.Same(t, b1, b2, "exactly one Build per (name, builder) pair")

	other := bt.Intern("aarch64", NoBuilder)
	b3 := bs.FindOrCreate(name, other)
	assert.NotSame(t, b1, b3)
}

func TestBuildStoreFind(t *testing.T) {
	nt := NewNameTable()
	bt := NewBuilderTable()
	bs := NewBuildStore()

	name := nt.Intern("foo")
	builder := bt.Intern("x86_64", NoBuilder)

	_, ok := bs.Find(name, builder)
	assert.False(t, ok)

	created := bs.FindOrCreate(name, builder)
	found, ok := bs.Find(name, builder)
	require.True(t, ok)
	assert.Same(t, created, found)
}

func TestBuildFlags(t *testing.T) {
	b := &Build{}
	b.Set(FlagWork | FlagCycle)
	assert.True(t, b.Has(FlagWork))
	assert.True(t, b.Any(FlagCycle))
	assert.False(t, b.Has(FlagDirty))

	b.Clear(FlagCycle)
	assert.False(t, b.Any(FlagCycle))
	assert.True(t, b.Has(FlagWork))
}
