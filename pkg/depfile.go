package pkg

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DepPaths returns the .dep and .err paths for a Build under the deps/
// tree: deps/<arch>/<name>.{dep,err} for native builders, or
// deps/<arch>@<host>/<name>.{dep,err} for cross builders.
func (c *Context) DepPaths(b *Build) (depPath, errPath string) {
	pn := c.Names.Get(b.Name)
	dir := filepath.Join(c.DepsDir, c.Builders.DirSuffix(b.Builder))
	base := filepath.Join(dir, pn.Name)
	return base + ".dep", base + ".err"
}

// StatDeps stats a Build's .dep and .err files and records their mtimes.
func (c *Context) StatDeps(b *Build) error {
	depPath, errPath := c.DepPaths(b)
	m, err := statMtime(depPath)
	if err != nil {
		return err
	}
	b.DepMtime = m
	m, err = statMtime(errPath)
	if err != nil {
		return err
	}
	b.DepErrMtime = m
	return nil
}

// LogPaths returns the .log and .err paths for a Build under the logs/
// tree. Only meaningful once Version and Revision are known.
func (c *Context) LogPaths(b *Build) (logPath, errPath string) {
	pn := c.Names.Get(b.Name)
	dir := filepath.Join(c.LogsDir, c.Builders.DirSuffix(b.Builder))
	base := fmt.Sprintf("%s-%s_%s", pn.Name, b.Version, b.Revision)
	full := filepath.Join(dir, base)
	return full + ".log", full + ".err"
}

// StatLogs stats a Build's .log and .err files and records their mtimes.
func (c *Context) StatLogs(b *Build) error {
	logPath, errPath := c.LogPaths(b)
	m, err := statMtime(logPath)
	if err != nil {
		return err
	}
	b.LogMtime = m
	m, err = statMtime(errPath)
	if err != nil {
		return err
	}
	b.LogErrMtime = m
	return nil
}

func statMtime(path string) (Mtime, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return missingMtime(), nil
		}
		return Mtime{}, fmt.Errorf("pkg: stat %s: %w", path, err)
	}
	return timestampMtime(fi.ModTime().Unix()), nil
}

// depKey identifies which array a recognized array key populates.
type depKey int

const (
	depHost depKey = iota
	depTarget
	depSub
	depIgnore
)

var scalarKeys = map[string]bool{
	"pkgname":  true,
	"version":  true,
	"revision": true,
}

var arrayKeys = map[string]depKey{
	"hostmakedepends": depHost,
	"makedepends":     depTarget,
	"depends":         depTarget,
	"subpackages":     depSub,
}

// ParsedDeps is the result of parsing one dbulk-dump dependency file.
type ParsedDeps struct {
	PkgName  string
	Version  string
	Revision string

	HostDeps   []string
	TargetDeps []string
	SubPkgs    []string
}

// ParseDepFile parses the dbulk-dump output grammar: scalar lines
// "key: value"; array lines "key:" followed by zero or more single-space
// indented continuation lines. Unrecognized keys are skipped. A line that
// has no ':' and is not a space-prefixed continuation of the current array
// is a ParseError.
func ParseDepFile(path string, r *bufio.Reader) (*ParsedDeps, error) {
	pd := &ParsedDeps{}
	var curArray depKey
	inArray := false

	lineNo := 0
	for {
		line, err := r.ReadString('\n')
		if len(line) == 0 && err != nil {
			break
		}
		lineNo++
		line = strings.TrimRight(line, "\n")

		if strings.HasPrefix(line, " ") && inArray {
			entry := strings.TrimPrefix(line, " ")
			switch curArray {
			case depHost:
				pd.HostDeps = append(pd.HostDeps, entry)
			case depTarget:
				pd.TargetDeps = append(pd.TargetDeps, entry)
			case depSub:
				pd.SubPkgs = append(pd.SubPkgs, entry)
			case depIgnore:
			}
			if err != nil {
				break
			}
			continue
		}

		inArray = false

		if line == "" {
			if err != nil {
				break
			}
			continue
		}

		key, rest, found := strings.Cut(line, ":")
		if !found {
			return nil, &ParseError{File: path, Line: lineNo, Text: line}
		}

		value := strings.TrimPrefix(rest, " ")
		if value == "" {
			if ak, ok := arrayKeys[key]; ok {
				curArray = ak
				inArray = true
			} else {
				curArray = depIgnore
				inArray = true
			}
			if err != nil {
				break
			}
			continue
		}

		if scalarKeys[key] {
			switch key {
			case "pkgname":
				pd.PkgName = value
			case "version":
				pd.Version = value
			case "revision":
				pd.Revision = value
			}
		}

		if err != nil {
			break
		}
	}

	return pd, nil
}

// ParseDepFilePath opens and parses the .dep file at path.
func ParseDepFilePath(path string) (*ParsedDeps, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pkg: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseDepFile(path, bufio.NewReader(f))
}

// ApplyDeps populates b's dependency arrays from a parsed dep file and
// interns every referenced name. SubPkgs is populated unconditionally so
// that completing a source build unblocks dependents of its sub-package
// names.
func (c *Context) ApplyDeps(b *Build, pd *ParsedDeps) {
	if pd.Version != "" {
		b.Version = pd.Version
	}
	if pd.Revision != "" {
		b.Revision = pd.Revision
	}

	b.HostDeps = internAll(c.Names, pd.HostDeps)
	b.TargetDeps = internAll(c.Names, pd.TargetDeps)
	b.SubPkgs = internAll(c.Names, pd.SubPkgs)

	pn := c.Names.Get(b.Name)
	for _, dep := range b.HostDeps {
		c.Names.Get(dep).Use = append(c.Names.Get(dep).Use, b.ID)
	}
	for _, dep := range b.TargetDeps {
		c.Names.Get(dep).Use = append(c.Names.Get(dep).Use, b.ID)
	}
	for _, sub := range b.SubPkgs {
		subPN := c.Names.Get(sub)
		subPN.Produces = append(subPN.Produces, b.ID)
	}
	pn.Produces = append(pn.Produces, b.ID)

	b.Set(FlagDeps)
}

func internAll(t *NameTable, names []string) []NameID {
	if len(names) == 0 {
		return nil
	}
	ids := make([]NameID, 0, len(names))
	for _, n := range names {
		ids = append(ids, t.Intern(n))
	}
	return ids
}
