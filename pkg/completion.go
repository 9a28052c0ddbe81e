package pkg

// CompleteExtract handles a successful dependency-extractor job for id: the
// caller has already renamed .dep.tmp into place. This
// clears WORK and re-enters the planner at the same (name, builder) pair so
// freshly discovered dependencies are walked; CYCLE is already clear from the
// original visit, so re-entry proceeds past the WORK gate in plan().
func (p *Planner) CompleteExtract(id BuildID) (Flag, error) {
	b := p.ctx.Builds.Get(id)
	b.Clear(FlagWork)
	if err := p.ctx.StatDeps(b); err != nil {
		return 0, err
	}
	return p.plan(b.Name, b.Builder)
}

// Done fires when a package name has been produced: every Build in name's
// Use list
// that is part of the current plan (WORK set) has its NBlock decremented.
// Any Build whose NBlock reaches zero is enqueued for its Build Runner and
// returned to the caller (mainly for tests/logging; the caller need not
// drain the Queue itself).
func (p *Planner) Done(name NameID) []BuildID {
	pn := p.ctx.Names.Get(name)
	var ready []BuildID
	for _, useID := range pn.Use {
		b := p.ctx.Builds.Get(useID)
		if !b.Has(FlagWork) {
			continue
		}
		b.NBlock--
		if b.NBlock == 0 {
			p.enqueue(useID, JobBuild)
			ready = append(ready, useID)
		}
	}
	return ready
}

// CompleteBuild handles a successful build-runner job for id: clears DIRTY
// and calls Done on the Build's own
// PackageName and every sub-package it produces, so dependents of aliased
// sub-packages unblock exactly like direct dependents.
func (p *Planner) CompleteBuild(id BuildID) []BuildID {
	b := p.ctx.Builds.Get(id)
	b.Clear(FlagDirty)

	ready := p.Done(b.Name)
	for _, sub := range b.SubPkgs {
		ready = append(ready, p.Done(sub)...)
	}
	return ready
}
