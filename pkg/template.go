package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var virtualSuffixes = []string{"-dbg", "-32bit"}

// Context bundles the interned tables and configuration the planner and
// template probe need, in place of process-scope globals.
type Context struct {
	Names    *NameTable
	Builders *BuilderTable
	Builds   *BuildStore

	SrcpkgsDir string
	DepsDir    string
	LogsDir    string

	Explain func(format string, args ...any)
}

// Probe resolves name to its on-disk template and caches the result on the
// interned PackageName. Idempotent: a second call on a name whose
// mtime is already known returns immediately.
func (c *Context) Probe(id NameID) error {
	pn := c.Names.Get(id)
	if !pn.Mtime.Unknown() {
		return nil
	}

	path := filepath.Join(c.SrcpkgsDir, pn.Name)
	fi, err := os.Lstat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("pkg: stat %s: %w", path, err)
		}
		return c.probeMissing(pn, path)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		return c.probeSymlink(pn, path)
	}

	if fi.IsDir() {
		return c.probeDirectory(pn, path)
	}

	return &TemplateMissingError{Name: pn.Name, Path: path}
}

func (c *Context) probeMissing(pn *PackageName, path string) error {
	for _, suffix := range virtualSuffixes {
		if base, ok := strings.CutSuffix(pn.Name, suffix); ok {
			baseID := c.Names.Intern(base)
			if err := c.Probe(baseID); err != nil {
				return err
			}
			basePN := c.Names.Get(baseID)
			pn.Mtime = basePN.Mtime
			if basePN.Srcpkg != NoName {
				pn.Srcpkg = basePN.Srcpkg
			} else {
				pn.Srcpkg = baseID
			}
			return nil
		}
	}
	pn.Mtime = missingMtime()
	return &TemplateMissingError{Name: pn.Name, Path: path}
}

func (c *Context) probeSymlink(pn *PackageName, path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("pkg: lstat %s: %w", path, err)
	}
	pn.Mtime = timestampMtime(fi.ModTime().Unix())

	target, err := os.Readlink(path)
	if err != nil {
		return fmt.Errorf("pkg: readlink %s: %w", path, err)
	}
	if strings.HasSuffix(target, "/") {
		if c.Explain != nil {
			c.Explain("warning: symlink target %s for %s has a trailing slash, stripping", target, pn.Name)
		}
		target = strings.TrimSuffix(target, "/")
	}
	target = filepath.Base(target)

	srcID := c.Names.Intern(target)
	if err := c.Probe(srcID); err != nil {
		return err
	}
	pn.Srcpkg = srcID
	return nil
}

func (c *Context) probeDirectory(pn *PackageName, dirPath string) error {
	templatePath := filepath.Join(dirPath, "template")
	fi, err := os.Stat(templatePath)
	if err != nil {
		if os.IsNotExist(err) {
			pn.Mtime = missingMtime()
			return &TemplateMissingError{Name: pn.Name, Path: templatePath}
		}
		return fmt.Errorf("pkg: stat %s: %w", templatePath, err)
	}
	pn.Mtime = timestampMtime(fi.ModTime().Unix())
	return nil
}

// Source resolves name to its source PackageName, following Srcpkg if set.
func (c *Context) Source(id NameID) NameID {
	pn := c.Names.Get(id)
	if pn.Srcpkg != NoName {
		return pn.Srcpkg
	}
	return id
}

// ScanAll lists every entry directly under SrcpkgsDir (directories and
// symlinks alike), for the no-targets-given case: scan all packages.
func (c *Context) ScanAll() ([]string, error) {
	entries, err := os.ReadDir(c.SrcpkgsDir)
	if err != nil {
		return nil, fmt.Errorf("pkg: reading %s: %w", c.SrcpkgsDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
