// Package cmd wires the driver's command-line interface: the root command
// plans and runs builds, "status" reads the run-history ledger, and "logs"
// inspects the driver's own log files.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"driver/build"
	"driver/builddb"
	"driver/config"
	"driver/log"
	"driver/pkg"
)

var (
	flagExplain  bool
	flagDistDir  string
	flagJobs     int
	flagDryRun   bool
	flagToolMode string
	flagArch     string
	flagHostArch string
	flagNoUI     bool
	flagConfig   string
)

var rootCmd = &cobra.Command{
	Use:   "driver [flags] [package ...]",
	Short: "Incremental parallel build driver for a source-package distribution",
	Long: `driver decides which source packages need their dependency metadata
(re)extracted and which need to be (re)built, by comparing template
modification times against previously recorded dependency files, error
markers, and build logs, then runs the minimum set of external build
commands in parallel while respecting the dependency graph.

With no package arguments, every package under <distdir>/srcpkgs is planned.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDriver,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDistDir, "distdir", "D", "", "source-distribution root (default $HOME/void-packages)")
	pf.StringVar(&flagConfig, "config", "", "path to an ini configuration file")

	f := rootCmd.Flags()
	f.BoolVarP(&flagExplain, "explain", "d", false, "emit explanatory planner traces on stderr")
	f.IntVarP(&flagJobs, "jobs", "j", 0, "maximum concurrent jobs")
	f.BoolVarP(&flagDryRun, "dry-run", "n", false, "mark builds completed without spawning children")
	f.StringVarP(&flagToolMode, "tool", "t", "", "select an alternate tool mode (reserved; skips the build loop)")
	f.StringVarP(&flagArch, "arch", "a", "", "target architecture")
	f.StringVar(&flagHostArch, "hostarch", "", "host architecture for cross builds")
	f.BoolVar(&flagNoUI, "noui", false, "disable the live dashboard, use plain progress output")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
}

// Execute runs the root command, printing any error and exiting non-zero on
// fatal setup or filesystem problems. Job failures alone still exit 0.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "driver: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration for a subcommand invocation:
// ini-file values first, then any CLI flags that were actually given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("distdir") {
		cfg.SetDistDir(flagDistDir)
	}
	if cmd.Flags().Changed("jobs") {
		cfg.MaxJobs = flagJobs
	}
	if cmd.Flags().Changed("arch") {
		cfg.Arch = flagArch
	}
	if cmd.Flags().Changed("hostarch") {
		cfg.HostArch = flagHostArch
	}
	if flagExplain {
		cfg.Explain = true
	}
	if flagDryRun {
		cfg.DryRun = true
	}
	if flagNoUI {
		cfg.DisableUI = true
	}
	cfg.ToolMode = flagToolMode
	return cfg, nil
}

func runDriver(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Targets = args

	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.ToolMode != "" {
		fmt.Fprintf(os.Stderr, "tool mode %q is reserved, skipping the build loop\n", cfg.ToolMode)
		return nil
	}

	logger, err := log.New(cfg, cfg.Explain)
	if err != nil {
		return err
	}
	defer logger.Close()

	dbDir := filepath.Join(cfg.DistDir, "var", "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Fatal(err)
		return err
	}
	db, err := builddb.OpenDB(filepath.Join(dbDir, "driver.db"))
	if err != nil {
		logger.Fatal(err)
		return err
	}
	defer db.Close()

	runID := uuid.NewString()
	start := time.Now()
	if err := db.StartRun(runID, cfg.DistDir, cfg.Targets, start); err != nil {
		logger.Fatal(err)
		return err
	}

	gctx := &pkg.Context{
		Names:      pkg.NewNameTable(),
		Builders:   pkg.NewBuilderTable(),
		Builds:     pkg.NewBuildStore(),
		SrcpkgsDir: cfg.SrcpkgsDir(),
		DepsDir:    cfg.DepsDir(),
		LogsDir:    cfg.LogsDir(),
		Explain:    logger.Explain,
	}

	var builder pkg.BuilderID
	if cfg.HostArch != "" && cfg.HostArch != cfg.Arch {
		host := gctx.Builders.Intern(cfg.HostArch, pkg.NoBuilder)
		builder = gctx.Builders.Intern(cfg.Arch, host)
	} else {
		builder = gctx.Builders.Intern(cfg.Arch, pkg.NoBuilder)
	}

	targets := cfg.Targets
	if len(targets) == 0 {
		if targets, err = gctx.ScanAll(); err != nil {
			logger.Fatal(err)
			return err
		}
	}

	planner := pkg.NewPlanner(gctx)
	for _, name := range targets {
		if _, err := planner.Plan(gctx.Names.Intern(name), builder); err != nil {
			logger.Fatal(err)
			finishRun(db, runID, build.Stats{}, false)
			return err
		}
	}

	var ui build.BuildUI
	if cfg.DisableUI || cfg.DryRun {
		ui = build.NewStdoutUI()
	} else {
		ui = build.NewNcursesUI()
	}
	if err := ui.Start(); err != nil {
		ui = build.NewStdoutUI()
	}

	pool := build.NewPool(gctx, planner, cfg, logger, ui, db, runID)
	stats, runErr := pool.Run(context.Background())
	ui.Stop()

	finishRun(db, runID, stats, runErr == nil && stats.NumFailed == 0)

	if runErr != nil {
		logger.Fatal(runErr)
		return runErr
	}

	fmt.Printf("finished %d of %d builds, %d failed\n", stats.NumFinished, stats.NumTotal, stats.NumFailed)
	return nil
}

func finishRun(db *builddb.DB, runID string, stats build.Stats, success bool) {
	rs := builddb.RunStats{
		NumTotal:    stats.NumTotal,
		NumFinished: stats.NumFinished,
		NumFailed:   stats.NumFailed,
	}
	if err := db.FinishRun(runID, rs, time.Now(), success); err != nil {
		fmt.Fprintf(os.Stderr, "driver: recording run outcome: %v\n", err)
	}
}
