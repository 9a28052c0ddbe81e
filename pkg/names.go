// Package pkg implements the package/build graph model: interned package
// names and builders, the Build node store, the on-disk template probe, the
// dependency-file parser, and the staleness planner that decides which
// Builds need dependency re-extraction or a rebuild.
package pkg

// Mtime is a tri-state timestamp: never probed, probed and absent, or a real
// stat result.
type Mtime struct {
	state mtimeState
	unix  int64
}

type mtimeState uint8

const (
	// MtimeUnknown means the path has never been stat'd this run.
	MtimeUnknown mtimeState = iota
	// MtimeMissing means the path was stat'd and does not exist.
	MtimeMissing
	// MtimeTimestamp means the path exists; Unix holds its mtime.
	MtimeTimestamp
)

// Unknown reports whether this Mtime has never been probed.
func (m Mtime) Unknown() bool { return m.state == MtimeUnknown }

// Missing reports whether this Mtime was probed and found absent.
func (m Mtime) Missing() bool { return m.state == MtimeMissing }

// Known reports whether this Mtime holds a real timestamp.
func (m Mtime) Known() bool { return m.state == MtimeTimestamp }

// Unix returns the recorded timestamp. Only meaningful when Known() is true.
func (m Mtime) Unix() int64 { return m.unix }

func missingMtime() Mtime { return Mtime{state: MtimeMissing} }

func timestampMtime(sec int64) Mtime { return Mtime{state: MtimeTimestamp, unix: sec} }

// Before reports whether m is strictly older than other. An Unknown or
// Missing mtime is treated as older than any real timestamp, matching the
// planner's "dep is missing or older than template" reading.
func (m Mtime) Before(other Mtime) bool {
	if !m.Known() {
		return other.Known()
	}
	if !other.Known() {
		return false
	}
	return m.unix < other.unix
}

// AtLeast reports whether m is not older than other (the inverse of Before,
// used for the planner's "fresh" / "unchanged since" comparisons).
func (m Mtime) AtLeast(other Mtime) bool { return !m.Before(other) }

// NameID is the interned handle for a PackageName.
type NameID int

// NoName is the sentinel "absent" NameID, used for PackageName.Srcpkg when
// a name is itself a source package (has no alias).
const NoName NameID = -1

// PackageName is a name interned in the Name Table. It carries a
// mtime, an optional alias to a source name (symlink or virtual suffix),
// and the two back-reference lists used by the planner and job pool.
type PackageName struct {
	ID   NameID
	Name string

	Mtime Mtime

	// Srcpkg is the source PackageName this name aliases, or NoName if this
	// name is itself a source package.
	Srcpkg NameID

	// Produces lists Builds that name this PackageName as their own source
	// package or as one of their sub-packages.
	Produces []BuildID

	// Use lists Builds that depend on this PackageName (host or target dep).
	Use []BuildID

	Dirty bool
}

// NameTable interns package names for one driver run.
type NameTable struct {
	byName map[string]NameID
	names  []*PackageName
}

// NewNameTable returns an empty, ready-to-use NameTable.
func NewNameTable() *NameTable {
	return &NameTable{byName: make(map[string]NameID)}
}

// Intern returns the NameID for name, creating it if this is the first time
// it has been seen. Two calls with the same string always return the same
// ID.
func (t *NameTable) Intern(name string) NameID {
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := NameID(len(t.names))
	t.names = append(t.names, &PackageName{ID: id, Name: name, Srcpkg: NoName})
	t.byName[name] = id
	return id
}

// Lookup returns the NameID for name without creating it.
func (t *NameTable) Lookup(name string) (NameID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Get dereferences a NameID into its PackageName. Panics on an out-of-range
// ID, which would indicate an internal bookkeeping bug.
func (t *NameTable) Get(id NameID) *PackageName {
	return t.names[id]
}

// Len returns the number of interned names.
func (t *NameTable) Len() int { return len(t.names) }

// All returns every interned PackageName, in interning order.
func (t *NameTable) All() []*PackageName { return t.names }
