package pkg

// BuildID is the interned handle for a Build.
type BuildID int

// Flag is a bit in a Build's flag set.
type Flag uint8

const (
	// FlagWork marks a Build as admitted to the current run's plan.
	FlagWork Flag = 1 << iota
	// FlagCycle marks a Build as being on the current walker's stack.
	FlagCycle
	// FlagDeps marks a Build whose dependency metadata has been loaded.
	FlagDeps
	// FlagDirty marks a Build that needs action this run.
	FlagDirty
	// FlagSkip marks a Build as known-unactionable this run.
	FlagSkip
)

// Build is (PackageName owning the template) x Builder.
type Build struct {
	ID      BuildID
	Name    NameID
	Builder BuilderID

	Version  string
	Revision string

	HostDeps   []NameID
	TargetDeps []NameID
	SubPkgs    []NameID

	DepMtime      Mtime
	DepErrMtime   Mtime
	LogMtime      Mtime
	LogErrMtime   Mtime

	NBlock int
	Flags  Flag
}

// Has reports whether all bits in want are set.
func (b *Build) Has(want Flag) bool { return b.Flags&want == want }

// Any reports whether any bit in want is set.
func (b *Build) Any(want Flag) bool { return b.Flags&want != 0 }

// Set turns on the given bits.
func (b *Build) Set(want Flag) { b.Flags |= want }

// Clear turns off the given bits.
func (b *Build) Clear(want Flag) { b.Flags &^= want }

// BuildStore holds every Build created during a run, keyed by
// (source PackageName, Builder).
type BuildStore struct {
	byKey  map[buildKey]BuildID
	builds []*Build
}

type buildKey struct {
	name    NameID
	builder BuilderID
}

// NewBuildStore returns an empty, ready-to-use BuildStore.
func NewBuildStore() *BuildStore {
	return &BuildStore{byKey: make(map[buildKey]BuildID)}
}

// FindOrCreate returns the Build for (name, builder), creating it (with a
// zero flag set, Unknown mtimes, NBlock 0) if this is the first reference.
// name must already have been resolved to its source PackageName by the
// caller: a Build never attaches to an alias.
func (s *BuildStore) FindOrCreate(name NameID, builder BuilderID) *Build {
	key := buildKey{name: name, builder: builder}
	if id, ok := s.byKey[key]; ok {
		return s.builds[id]
	}
	id := BuildID(len(s.builds))
	b := &Build{ID: id, Name: name, Builder: builder}
	s.builds = append(s.builds, b)
	s.byKey[key] = id
	return b
}

// Find returns the Build for (name, builder) if one already exists.
func (s *BuildStore) Find(name NameID, builder BuilderID) (*Build, bool) {
	id, ok := s.byKey[buildKey{name: name, builder: builder}]
	if !ok {
		return nil, false
	}
	return s.builds[id], true
}

// Get dereferences a BuildID.
func (s *BuildStore) Get(id BuildID) *Build {
	return s.builds[id]
}

// All returns every Build created so far, in creation order.
func (s *BuildStore) All() []*Build { return s.builds }
