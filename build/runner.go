// Package build runs the job pool that drains a pkg.Queue: for each ready
// Build it spawns either the dependency extractor or the package builder as
// an external child process, then feeds the result back into the planner so
// newly-unblocked Builds get queued in turn.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"driver/builddb"
	"driver/config"
	"driver/log"
	"driver/pkg"
)

// jobResult is what a job goroutine sends back to the driver loop on
// completion. The driver goroutine is the only one that ever touches the
// pkg graph; job goroutines only run a child process and report back.
type jobResult struct {
	entry   pkg.Entry
	name    string
	builder string
	success bool
	err     error
}

// Pool owns one driver run: the package/build graph, the staleness planner,
// the job-pool slot limit, and the UI/ledger sinks that observe it.
type Pool struct {
	ctx     *pkg.Context
	planner *pkg.Planner
	cfg     *config.Config
	logger  *log.Logger
	ui      BuildUI
	db      *builddb.DB
	runID   string

	results chan jobResult
	active  int

	stats Stats
}

// NewPool returns a Pool ready to drain planner's Queue. logger, ui, and db
// may each be nil; a nil sink is simply not written to.
func NewPool(ctx *pkg.Context, planner *pkg.Planner, cfg *config.Config, logger *log.Logger, ui BuildUI, db *builddb.DB, runID string) *Pool {
	return &Pool{
		ctx:     ctx,
		planner: planner,
		cfg:     cfg,
		logger:  logger,
		ui:      ui,
		db:      db,
		runID:   runID,
		results: make(chan jobResult),
		stats:   Stats{NumTotal: planner.NumTotal},
	}
}

// Run drains the Queue until every planned Build has either finished or
// permanently stalled (a failed job's dependents never reach NBlock == 0).
// It launches up to cfg.MaxJobs jobs concurrently and blocks on results as
// slots fill; this loop is the only thing
// that mutates the pkg graph.
func (p *Pool) Run(parent context.Context) (Stats, error) {
	for {
		for p.active < p.cfg.MaxJobs {
			entry, ok := p.planner.Queue.Pop()
			if !ok {
				break
			}
			p.active++
			go p.runJob(parent, entry)
		}

		if p.active == 0 {
			break
		}

		res := <-p.results
		p.active--
		if err := p.absorb(res); err != nil {
			return p.stats, err
		}
	}

	return p.stats, nil
}

func (p *Pool) runJob(parent context.Context, entry pkg.Entry) {
	b := p.ctx.Builds.Get(entry.Build)
	pn := p.ctx.Names.Get(b.Name)
	builderName := p.ctx.Builders.DirSuffix(b.Builder)

	var success bool
	var err error
	if p.cfg.DryRun {
		success, err = true, nil
	} else if entry.Kind == pkg.JobExtract {
		success, err = p.runExtract(parent, b)
	} else {
		success, err = p.runBuild(parent, b)
	}

	p.results <- jobResult{entry: entry, name: pn.Name, builder: builderName, success: success, err: err}
}

// absorb applies one completed job's outcome to the plan graph, UI, ledger,
// and run stats, then re-enters the planner as needed. It runs exclusively
// on the driver goroutine.
func (p *Pool) absorb(res jobResult) error {
	if res.err != nil && !isJobFailure(res.err) {
		// Not a child-exit failure: an unexpected filesystem error is fatal.
		return res.err
	}

	b := p.ctx.Builds.Get(res.entry.Build)

	if p.db != nil {
		rec := &builddb.JobRecord{
			RunID:   p.runID,
			Name:    res.name,
			Builder: res.builder,
			Kind:    res.entry.Kind.String(),
			Success: res.success,
		}
		if err := p.db.PutJob(rec); err != nil && p.logger != nil {
			p.logger.Explain("builddb: recording job for %s: %v", res.name, err)
		}
	}

	if !res.success {
		p.stats.NumFailed++
		if p.ui != nil {
			p.ui.LogEvent(fmt.Sprintf("[%s] %s failed: %v", res.entry.Kind, res.name, res.err))
		}
		if p.logger != nil {
			p.logger.Progress(p.stats.NumFinished, p.stats.NumTotal, res.entry.Kind.String()+" failed", res.name)
		}
		p.reportProgress()
		return nil
	}

	p.stats.NumFinished++
	if p.ui != nil {
		p.ui.LogEvent(fmt.Sprintf("[%s] %s done", res.entry.Kind, res.name))
	}
	if p.logger != nil {
		p.logger.Progress(p.stats.NumFinished, p.stats.NumTotal, res.entry.Kind.String(), res.name)
	}
	p.reportProgress()

	// A dry run consumes every popped Build through the builder-completion
	// success path, extraction jobs included.
	if res.entry.Kind == pkg.JobExtract && !p.cfg.DryRun {
		if _, err := p.planner.CompleteExtract(b.ID); err != nil {
			return err
		}
		p.stats.NumTotal = p.planner.NumTotal
		return nil
	}

	p.planner.CompleteBuild(b.ID)
	p.stats.NumTotal = p.planner.NumTotal
	return nil
}

func (p *Pool) reportProgress() {
	if p.ui != nil {
		p.ui.UpdateProgress(p.stats)
	}
}

// runExtract spawns the dependency extractor for b: stdout to .dep.tmp and
// stderr to .err.tmp. On a clean exit the .err.tmp is unlinked and .dep.tmp
// renamed into place; otherwise the .dep.tmp is unlinked and .err.tmp becomes
// the .err marker a later Plan compares against the template mtime.
func (p *Pool) runExtract(parent context.Context, b *pkg.Build) (bool, error) {
	pn := p.ctx.Names.Get(b.Name)
	depPath, errPath := p.ctx.DepPaths(b)

	if err := os.MkdirAll(filepath.Dir(depPath), 0755); err != nil {
		return false, err
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return false, err
	}
	defer devNull.Close()

	depTmp := depPath + ".tmp"
	errTmp := errPath + ".tmp"
	out, err := os.Create(depTmp)
	if err != nil {
		return false, err
	}
	defer out.Close()
	errOut, err := os.Create(errTmp)
	if err != nil {
		return false, err
	}
	defer errOut.Close()

	args := p.toolArgs(b, "dbulk-dump", pn.Name)
	cmd := exec.CommandContext(parent, p.cfg.ToolPath, args...)
	cmd.Stdin = devNull
	cmd.Stdout = out
	cmd.Stderr = errOut

	runErr := cmd.Run()
	out.Close()
	errOut.Close()

	if runErr == nil {
		os.Remove(errTmp)
		if err := os.Rename(depTmp, depPath); err != nil {
			return false, err
		}
		return true, nil
	}

	os.Remove(depTmp)
	if err := os.Rename(errTmp, errPath); err != nil {
		return false, err
	}
	return false, &ErrExtractorFailed{Name: pn.Name, Builder: p.ctx.Builders.DirSuffix(b.Builder), Err: classifyExit(runErr)}
}

// runBuild spawns the package builder for b, capturing combined output to
// <name>-<version>_<revision>.log.tmp and renaming to .log on success or
// .err on failure.
func (p *Pool) runBuild(parent context.Context, b *pkg.Build) (bool, error) {
	pn := p.ctx.Names.Get(b.Name)
	logPath, errPath := p.ctx.LogPaths(b)

	args := p.toolArgs(b, "-1Et", "-j", "4", "pkg", pn.Name)
	childErr, err := p.runCombined(parent, args, logPath, errPath)
	if err != nil {
		return false, err
	}
	if childErr != nil {
		return false, &ErrBuildFailed{Name: pn.Name, Builder: p.ctx.Builders.DirSuffix(b.Builder), Err: childErr}
	}
	return true, nil
}

// toolArgs builds the external tool's argv: "-a <arch>" is prepended for
// cross builders only, matching DirSuffix's "<arch>@<host>" naming.
func (p *Pool) toolArgs(b *pkg.Build, rest ...string) []string {
	builder := p.ctx.Builders.Get(b.Builder)
	if builder.IsCross() {
		return append([]string{"-a", builder.Arch}, rest...)
	}
	return rest
}

// runCombined runs the external tool with the given argv, stdin /dev/null,
// stdout+stderr captured to outPath.tmp, renaming to outPath on a clean exit
// and to errPath otherwise. childErr carries the classified exit of a failed
// child; err reports a filesystem problem the caller treats as fatal.
func (p *Pool) runCombined(parent context.Context, args []string, outPath, errPath string) (childErr, err error) {
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, err
	}
	defer devNull.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, err
	}

	tmpPath := outPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	cmd := exec.CommandContext(parent, p.cfg.ToolPath, args...)
	cmd.Stdin = devNull
	cmd.Stdout = out
	cmd.Stderr = out

	runErr := cmd.Run()
	out.Close()

	if runErr == nil {
		if err := os.Rename(tmpPath, outPath); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := os.Rename(tmpPath, errPath); err != nil {
		return nil, err
	}
	return classifyExit(runErr), nil
}

// classifyExit turns an *exec.ExitError's raw wait status into a descriptive
// error, distinguishing a signal death from a plain non-zero exit via
// golang.org/x/sys/unix.WaitStatus.
func classifyExit(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	raw, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return err
	}
	ws := unix.WaitStatus(raw)
	if ws.Signaled() {
		return fmt.Errorf("killed by signal %s", ws.Signal())
	}
	return fmt.Errorf("exited with status %d", ws.ExitStatus())
}

// isJobFailure reports whether err is a child-process failure (extractor or
// builder), as opposed to an unexpected OS error.
func isJobFailure(err error) bool {
	var ef *ErrExtractorFailed
	var bf *ErrBuildFailed
	return errors.As(err, &ef) || errors.As(err, &bf)
}
