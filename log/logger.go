// Package log provides the driver's run-scoped logging: a progress line per
// job completion, an explain trace gated on -d, and a fatal-error record.
// It is distinct from the per-package .dep/.err/.log/.err files the job
// pool writes directly under deps/ and logs/ (those are the build's
// authoritative output, not diagnostics about the driver itself).
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"driver/config"
)

// Logger owns the driver's own run-scoped log files.
type Logger struct {
	cfg     *config.Config
	explain bool

	progress *os.File
	explainF *os.File
	fatal    *os.File

	mu sync.Mutex
}

// New creates a Logger, writing its files under <DistDir>/var/log/driver.
// When explain is false the explain file is still created (for round-trip
// simplicity) but nothing is ever written to it.
func New(cfg *config.Config, explain bool) (*Logger, error) {
	dir := filepath.Join(cfg.DistDir, "var", "log", "driver")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("log: creating %s: %w", dir, err)
	}

	l := &Logger{cfg: cfg, explain: explain}

	var err error
	if l.progress, err = os.Create(filepath.Join(dir, "00_progress.log")); err != nil {
		return nil, err
	}
	if l.explainF, err = os.Create(filepath.Join(dir, "01_explain.log")); err != nil {
		return nil, err
	}
	if l.fatal, err = os.Create(filepath.Join(dir, "02_fatal.log")); err != nil {
		return nil, err
	}

	fmt.Fprintf(l.progress, "# driver run started %s\n", time.Now().Format(time.RFC3339))
	return l, nil
}

// Close closes all underlying files. Safe to call once.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range []*os.File{l.progress, l.explainF, l.fatal} {
		if f != nil {
			f.Close()
		}
	}
}

// Progress records one "[done/total] <action> <name>" completion line,
// mirroring it to stderr.
func (l *Logger) Progress(done, total int, action, name string) {
	line := fmt.Sprintf("[%d/%d] %s %s", done, total, action, name)
	l.mu.Lock()
	fmt.Fprintln(l.progress, line)
	l.mu.Unlock()
	fmt.Fprintln(os.Stderr, line)
}

// Explain emits a one-line planner trace, to the explain file and stderr,
// when -d/Explain is set. No-op otherwise: nothing is written anywhere.
func (l *Logger) Explain(format string, args ...any) {
	if !l.explain {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintln(l.explainF, msg)
	l.mu.Unlock()
	fmt.Fprintln(os.Stderr, msg)
}

// Fatal records a fatal error before the caller terminates the process.
func (l *Logger) Fatal(err error) {
	l.mu.Lock()
	fmt.Fprintf(l.fatal, "%s: %v\n", time.Now().Format(time.RFC3339), err)
	l.mu.Unlock()
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
}
