package pkg

import "errors"

// Planner walks the package/build graph depth-first, classifying each
// visited Build as up-to-date, buildable, skip-on-prior-error, or cyclic,
// and feeding ready Builds (nblock == 0) into its work Queue.
type Planner struct {
	ctx   *Context
	Queue *Queue

	// NumTotal counts every build job enqueued across the run, including
	// Builds unblocked later by completions.
	NumTotal int
}

// NewPlanner returns a Planner bound to ctx, with a fresh empty work Queue.
func NewPlanner(ctx *Context) *Planner {
	return &Planner{ctx: ctx, Queue: NewQueue()}
}

// Plan is the staleness planner's entry point. It returns the final
// flag-set of the visited Build. A non-nil error is always fatal: an
// unexpected filesystem error during stat/open/rename. TemplateMissing and
// CycleDetected are not returned as errors — they mark the Build SKIP|DIRTY
// and planning continues.
func (p *Planner) Plan(name NameID, builder BuilderID) (Flag, error) {
	return p.plan(name, builder)
}

func (p *Planner) plan(name NameID, builder BuilderID) (Flag, error) {
	if err := p.ctx.Probe(name); err != nil {
		if isTemplateMissing(err) {
			sentinel := p.ctx.Builds.FindOrCreate(name, builder)
			sentinel.Set(FlagSkip | FlagDirty)
			p.explain("%s: template missing, skipping", p.ctx.Names.Get(name).Name)
			return sentinel.Flags, nil
		}
		return 0, err
	}

	source := p.ctx.Source(name)
	b := p.ctx.Builds.FindOrCreate(source, builder)
	pn := p.ctx.Names.Get(source)

	if b.Has(FlagCycle) {
		b.Set(FlagSkip | FlagDirty)
		p.explain("cycle detected <- %s", pn.Name)
		return b.Flags, nil
	}
	if b.Has(FlagWork) {
		return b.Flags, nil
	}

	b.Set(FlagCycle | FlagWork)
	b.Clear(FlagDirty)

	if err := p.ctx.StatDeps(b); err != nil {
		return 0, err
	}

	templateMtime := pn.Mtime

	switch {
	case b.DepMtime.Before(templateMtime) && b.DepErrMtime.Before(templateMtime):
		b.Set(FlagDirty)
		b.NBlock = 0
		b.Clear(FlagCycle)
		p.explain("%s: dep file missing or stale, scheduling extraction", pn.Name)
		pn.Dirty = true
		p.enqueue(b.ID, JobExtract)
		return b.Flags, nil

	case b.DepMtime.Before(templateMtime) && b.DepErrMtime.AtLeast(templateMtime):
		b.Set(FlagSkip | FlagDirty)
		b.Clear(FlagCycle)
		p.explain("%s: template unchanged since previous dependency-extraction error", pn.Name)
		pn.Dirty = true
		return b.Flags, nil
	}

	if err := p.loadDeps(b); err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) {
			return 0, err
		}
		// A malformed dep file is not fatal: skip this Build and go on.
		b.Set(FlagSkip | FlagDirty)
		b.Clear(FlagCycle)
		p.explain("%s: %v", pn.Name, pe)
		pn.Dirty = true
		return b.Flags, nil
	}
	if err := p.ctx.StatLogs(b); err != nil {
		return 0, err
	}

	actionable := p.classifyLogs(b, pn, templateMtime)

	if actionable {
		hostBuilder := p.ctx.Builders.HostBuilder(builder)
	recurse:
		for _, deps := range [2]struct {
			names   []NameID
			builder BuilderID
		}{{b.HostDeps, hostBuilder}, {b.TargetDeps, builder}} {
			for _, dep := range deps.names {
				depFlags, err := p.plan(dep, deps.builder)
				if err != nil {
					return 0, err
				}
				if p.absorb(b, depFlags, pn) {
					break recurse
				}
			}
		}
	}

	b.Clear(FlagCycle)

	if b.Has(FlagDirty) {
		p.markDirty(b, pn)
		if !b.Has(FlagSkip) && b.NBlock == 0 {
			p.enqueue(b.ID, JobBuild)
		}
	}

	return b.Flags, nil
}

// enqueue pushes a ready Build onto the work Queue. Only build jobs count
// toward NumTotal: a dependency extraction is a graph-rewriting step, not a
// package built, so a fresh package that needs both extraction and a build
// still counts once. Builds become ready either directly during the planning
// walk (NBlock starts at zero) or later, when Done() decrements a
// blocked Build's NBlock to zero as its prerequisites complete.
func (p *Planner) enqueue(id BuildID, kind JobKind) {
	p.Queue.Push(id, kind)
	if kind == JobBuild {
		p.NumTotal++
	}
}

// absorb folds a recursed dependency's outcome into the current Build's
// cycle/dirty/nblock state.
// Returns true when a cycle was absorbed, so the caller breaks out to the
// epilogue instead of walking further dependencies.
func (p *Planner) absorb(b *Build, depFlags Flag, pn *PackageName) bool {
	if depFlags&FlagCycle != 0 {
		b.Set(FlagSkip | FlagDirty)
		p.explain(" <- %s", pn.Name)
		return true
	}
	if depFlags&FlagDirty != 0 {
		b.Set(FlagDirty)
		b.NBlock++
	}
	return false
}

func (p *Planner) markDirty(b *Build, pn *PackageName) {
	pn.Dirty = true
	for _, sub := range b.SubPkgs {
		p.ctx.Names.Get(sub).Dirty = true
	}
}

// loadDeps parses the Build's .dep file into its dependency arrays.
func (p *Planner) loadDeps(b *Build) error {
	depPath, _ := p.ctx.DepPaths(b)
	pd, err := ParseDepFilePath(depPath)
	if err != nil {
		return err
	}
	p.ctx.ApplyDeps(b, pd)
	return nil
}

// classifyLogs applies the log-mtime decision table, returning whether the
// Build remains actionable: whether recursion into its dependencies should
// proceed at all. A Build just marked SKIP due to an unchanged prior build
// error short-circuits its subtree.
func (p *Planner) classifyLogs(b *Build, pn *PackageName, templateMtime Mtime) bool {
	switch {
	case b.LogMtime.Missing() && b.LogErrMtime.Missing():
		b.Set(FlagDirty)
	case b.LogMtime.Missing() && b.LogErrMtime.Before(templateMtime):
		b.Set(FlagDirty)
	case b.LogMtime.Missing() && b.LogErrMtime.AtLeast(templateMtime):
		b.Set(FlagSkip | FlagDirty)
		p.explain("%s: template unchanged since previous build error", pn.Name)
	default:
		// log present: not dirty, even when the log is older than the template.
	}
	return !b.Has(FlagSkip)
}

func (p *Planner) explain(format string, args ...any) {
	if p.ctx.Explain != nil {
		p.ctx.Explain(format, args...)
	}
}

func isTemplateMissing(err error) bool {
	var tm *TemplateMissingError
	return errors.As(err, &tm)
}
