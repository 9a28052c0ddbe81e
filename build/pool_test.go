package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver/config"
	"driver/pkg"
)

// fakeTool is a stand-in for xbps-src: "dbulk-dump <name>" prints minimal
// dependency metadata on stdout; "pkg <name>" appends the package name to an
// order file so tests can observe scheduling.
const fakeTool = `#!/bin/sh
if [ "$1" = "dbulk-dump" ]; then
	printf 'pkgname: %%s\nversion: 1\nrevision: 1\n' "$2"
	exit 0
fi
echo "building $5" >> %q
exit 0
`

func newPoolFixture(t *testing.T, tool string) (*pkg.Context, *config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	srcpkgs := filepath.Join(dir, "srcpkgs")
	require.NoError(t, os.MkdirAll(srcpkgs, 0755))

	toolPath := filepath.Join(dir, "xbps-src")
	require.NoError(t, os.WriteFile(toolPath, []byte(tool), 0755))

	cfg := &config.Config{
		DistDir:  dir,
		ToolPath: toolPath,
		Arch:     "x86_64",
		MaxJobs:  2,
	}
	ctx := &pkg.Context{
		Names:      pkg.NewNameTable(),
		Builders:   pkg.NewBuilderTable(),
		Builds:     pkg.NewBuildStore(),
		SrcpkgsDir: srcpkgs,
		DepsDir:    cfg.DepsDir(),
		LogsDir:    cfg.LogsDir(),
	}
	return ctx, cfg, dir
}

func writePoolTemplate(t *testing.T, srcpkgsDir, name string, mtime time.Time) {
	t.Helper()
	d := filepath.Join(srcpkgsDir, name)
	require.NoError(t, os.MkdirAll(d, 0755))
	path := filepath.Join(d, "template")
	require.NoError(t, os.WriteFile(path, []byte("pkgname="+name+"\n"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func writePoolDep(t *testing.T, ctx *pkg.Context, builder pkg.BuilderID, name, content string, mtime time.Time) {
	t.Helper()
	dir := filepath.Join(ctx.DepsDir, ctx.Builders.DirSuffix(builder))
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name+".dep")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestPoolFreshPackageExtractsThenBuilds(t *testing.T) {
	orderFile := filepath.Join(t.TempDir(), "order")
	ctx, cfg, dir := newPoolFixture(t, fmt.Sprintf(fakeTool, orderFile))
	writePoolTemplate(t, ctx.SrcpkgsDir, "foo", time.Now().Add(-time.Hour))

	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("foo"), builder)
	require.NoError(t, err)

	pool := NewPool(ctx, planner, cfg, nil, nil, nil, "")
	stats, err := pool.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.NumFinished, "one extraction plus one build")
	assert.Equal(t, 1, stats.NumTotal)
	assert.Equal(t, 0, stats.NumFailed)

	depPath := filepath.Join(dir, "deps", "x86_64", "foo.dep")
	assert.FileExists(t, depPath)
	assert.NoFileExists(t, depPath+".tmp")
	assert.NoFileExists(t, filepath.Join(dir, "deps", "x86_64", "foo.err"))

	logPath := filepath.Join(dir, "logs", "x86_64", "foo-1_1.log")
	assert.FileExists(t, logPath)
	assert.NoFileExists(t, logPath+".tmp")
}

func TestPoolSecondRunSchedulesNothing(t *testing.T) {
	orderFile := filepath.Join(t.TempDir(), "order")
	ctx, cfg, _ := newPoolFixture(t, fmt.Sprintf(fakeTool, orderFile))
	writePoolTemplate(t, ctx.SrcpkgsDir, "foo", time.Now().Add(-time.Hour))

	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("foo"), builder)
	require.NoError(t, err)
	_, err = NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err)

	// A fresh run over the unchanged tree observes a fresh .dep and a log at
	// least as new as the template: zero jobs.
	ctx2 := &pkg.Context{
		Names:      pkg.NewNameTable(),
		Builders:   pkg.NewBuilderTable(),
		Builds:     pkg.NewBuildStore(),
		SrcpkgsDir: ctx.SrcpkgsDir,
		DepsDir:    ctx.DepsDir,
		LogsDir:    ctx.LogsDir,
	}
	builder2 := ctx2.Builders.Intern("x86_64", pkg.NoBuilder)
	planner2 := pkg.NewPlanner(ctx2)
	flags, err := planner2.Plan(ctx2.Names.Intern("foo"), builder2)
	require.NoError(t, err)
	assert.Zero(t, flags&pkg.FlagDirty)
	assert.True(t, planner2.Queue.Empty())
	assert.Equal(t, 0, planner2.NumTotal)
}

func TestPoolExtractorFailureLeavesErrMarker(t *testing.T) {
	tool := `#!/bin/sh
if [ "$1" = "dbulk-dump" ]; then
	echo "no such template" >&2
	exit 1
fi
exit 0
`
	ctx, cfg, dir := newPoolFixture(t, tool)
	writePoolTemplate(t, ctx.SrcpkgsDir, "foo", time.Now().Add(-time.Hour))

	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("foo"), builder)
	require.NoError(t, err)

	stats, err := NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err, "a failed child is a job failure, not a fatal error")

	assert.Equal(t, 0, stats.NumFinished)
	assert.Equal(t, 1, stats.NumFailed)

	errPath := filepath.Join(dir, "deps", "x86_64", "foo.err")
	assert.FileExists(t, errPath)
	assert.NoFileExists(t, filepath.Join(dir, "deps", "x86_64", "foo.dep"))
	assert.NoFileExists(t, errPath+".tmp")

	content, err := os.ReadFile(errPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "no such template")
}

func TestPoolBuildFailureRenamesLogToErr(t *testing.T) {
	tool := `#!/bin/sh
if [ "$1" = "dbulk-dump" ]; then
	printf 'pkgname: %s\nversion: 1\nrevision: 1\n' "$2"
	exit 0
fi
echo "configure: error"
exit 1
`
	ctx, cfg, dir := newPoolFixture(t, tool)
	writePoolTemplate(t, ctx.SrcpkgsDir, "foo", time.Now().Add(-time.Hour))

	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("foo"), builder)
	require.NoError(t, err)

	stats, err := NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NumFinished, "the extraction succeeded")
	assert.Equal(t, 1, stats.NumFailed, "the build failed")

	assert.FileExists(t, filepath.Join(dir, "logs", "x86_64", "foo-1_1.err"))
	assert.NoFileExists(t, filepath.Join(dir, "logs", "x86_64", "foo-1_1.log"))
}

func TestPoolFailedPrerequisiteBlocksDependent(t *testing.T) {
	// b's build fails; a depends on b and must never run.
	orderFile := filepath.Join(t.TempDir(), "order")
	tool := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "dbulk-dump" ]; then
	printf 'pkgname: %%s\nversion: 1\nrevision: 1\n' "$2"
	exit 0
fi
echo "$5" >> %q
[ "$5" = "b" ] && exit 1
exit 0
`, orderFile)
	ctx, cfg, _ := newPoolFixture(t, tool)
	base := time.Now().Add(-time.Hour)
	writePoolTemplate(t, ctx.SrcpkgsDir, "a", base)
	writePoolTemplate(t, ctx.SrcpkgsDir, "b", base)

	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	writePoolDep(t, ctx, builder, "a", "pkgname: a\nversion: 1\nrevision: 1\ndepends:\n b\n", base.Add(time.Minute))
	writePoolDep(t, ctx, builder, "b", "pkgname: b\nversion: 1\nrevision: 1\n", base.Add(time.Minute))

	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("a"), builder)
	require.NoError(t, err)
	require.Equal(t, 1, planner.NumTotal, "only b is ready at plan time; a waits on it")

	stats, err := NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.NumFinished)
	assert.Equal(t, 1, stats.NumFailed)

	order, err := os.ReadFile(orderFile)
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(order), "a never ran: its prerequisite failed")
}

func TestPoolChainBuildsInDependencyOrder(t *testing.T) {
	orderFile := filepath.Join(t.TempDir(), "order")
	ctx, cfg, _ := newPoolFixture(t, fmt.Sprintf(fakeTool, orderFile))
	cfg.MaxJobs = 1

	base := time.Now().Add(-time.Hour)
	for _, n := range []string{"a", "b", "c"} {
		writePoolTemplate(t, ctx.SrcpkgsDir, n, base)
	}
	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	writePoolDep(t, ctx, builder, "a", "pkgname: a\nversion: 1\nrevision: 1\ndepends:\n b\n", base.Add(time.Minute))
	writePoolDep(t, ctx, builder, "b", "pkgname: b\nversion: 1\nrevision: 1\ndepends:\n c\n", base.Add(time.Minute))
	writePoolDep(t, ctx, builder, "c", "pkgname: c\nversion: 1\nrevision: 1\n", base.Add(time.Minute))

	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("a"), builder)
	require.NoError(t, err)

	stats, err := NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NumFinished)
	assert.Equal(t, 3, stats.NumTotal)

	order, err := os.ReadFile(orderFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"building c", "building b", "building a"},
		strings.Split(strings.TrimSpace(string(order)), "\n"))
}

func TestPoolDryRunSpawnsNothing(t *testing.T) {
	ctx, cfg, dir := newPoolFixture(t, "#!/bin/sh\nexit 1\n")
	cfg.DryRun = true
	writePoolTemplate(t, ctx.SrcpkgsDir, "foo", time.Now().Add(-time.Hour))

	builder := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("foo"), builder)
	require.NoError(t, err)

	stats, err := NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NumFinished)
	assert.Equal(t, 0, stats.NumFailed)
	assert.NoDirExists(t, filepath.Join(dir, "deps"))
	assert.NoDirExists(t, filepath.Join(dir, "logs"))
}

func TestPoolCrossBuilderPassesArchAndUsesCrossDirs(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	tool := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
if [ "$3" = "dbulk-dump" ]; then
	printf 'pkgname: %%s\nversion: 1\nrevision: 1\n' "$4"
fi
exit 0
`, argsFile)
	ctx, cfg, dir := newPoolFixture(t, tool)
	writePoolTemplate(t, ctx.SrcpkgsDir, "foo", time.Now().Add(-time.Hour))

	host := ctx.Builders.Intern("x86_64", pkg.NoBuilder)
	cross := ctx.Builders.Intern("aarch64", host)
	planner := pkg.NewPlanner(ctx)
	_, err := planner.Plan(ctx.Names.Intern("foo"), cross)
	require.NoError(t, err)

	stats, err := NewPool(ctx, planner, cfg, nil, nil, nil, "").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumFinished)

	assert.FileExists(t, filepath.Join(dir, "deps", "aarch64@x86_64", "foo.dep"))
	assert.FileExists(t, filepath.Join(dir, "logs", "aarch64@x86_64", "foo-1_1.log"))

	argv, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(argv)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "-a aarch64 dbulk-dump foo", lines[0])
	assert.Equal(t, "-a aarch64 -1Et -j 4 pkg foo", lines[1])
}

func TestStatsStartFromPlannerTotal(t *testing.T) {
	ctx, cfg, _ := newPoolFixture(t, "#!/bin/sh\nexit 0\n")
	planner := pkg.NewPlanner(ctx)
	planner.NumTotal = 7
	pool := NewPool(ctx, planner, cfg, nil, nil, nil, "")
	assert.Equal(t, 7, pool.stats.NumTotal)
}
