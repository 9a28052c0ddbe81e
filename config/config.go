// Package config loads driver configuration: the source-distribution root,
// the external tool path, the job slot limit, and the run-mode flags
// (dry-run, explain, alternate tool mode). Defaults come from an optional
// ini file; CLI flags always win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/ini.v1"
)

// Config holds the resolved settings for one driver invocation.
type Config struct {
	// DistDir is the source-distribution root containing srcpkgs/, deps/, logs/.
	DistDir string
	// ToolPath is the external xbps-src-style helper used for both
	// dependency extraction (dbulk-dump) and building (pkg).
	ToolPath string
	// Arch is the target architecture for the default (native) builder.
	Arch string
	// HostArch, when non-empty, makes the default builder a cross builder
	// with this host architecture.
	HostArch string
	// MaxJobs is the job-pool slot count.
	MaxJobs int
	// DryRun marks every ready Build completed without spawning a child.
	DryRun bool
	// Explain enables planner trace lines on stderr (-d).
	Explain bool
	// ToolMode, when set, selects an alternate tool mode (-t) and causes
	// the driver to skip planning/build entirely; see runDriver in package cmd.
	ToolMode string
	// Targets is the positional package-name argument list. Empty means
	// "scan all packages under <DistDir>/srcpkgs".
	Targets []string
	// DisableUI turns off the optional ncurses live dashboard.
	DisableUI bool
}

const defaultToolName = "xbps-src"

// Default returns a Config with the built-in defaults applied, before any
// ini file or CLI flags are layered on top.
func Default() *Config {
	home, _ := os.UserHomeDir()
	distDir := filepath.Join(home, "void-packages")
	return &Config{
		DistDir:  distDir,
		ToolPath: filepath.Join(distDir, defaultToolName),
		Arch:     runtime.GOARCH,
		MaxJobs:  1,
	}
}

// Load builds a Config by starting from Default(), layering in values found
// in an ini-format configuration file (first of iniPath, if non-empty, then
// $XDG_CONFIG_HOME/driver/driver.ini, then /etc/driver/driver.ini), and
// returns it for the caller (normally cmd) to overlay with CLI flags.
//
// A missing config file is not an error: Default()'s values are used as-is.
func Load(iniPath string) (*Config, error) {
	cfg := Default()

	path := iniPath
	if path == "" {
		path = discoverConfigFile()
	}
	if path == "" {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	sec := f.Section("driver")
	if v := sec.Key("distdir").String(); v != "" {
		cfg.DistDir = v
	}
	if v := sec.Key("tool").String(); v != "" {
		cfg.ToolPath = v
	} else if sec.Key("distdir").String() != "" {
		// tool path tracks distdir unless explicitly overridden
		cfg.ToolPath = filepath.Join(cfg.DistDir, defaultToolName)
	}
	if v := sec.Key("arch").String(); v != "" {
		cfg.Arch = v
	}
	if v := sec.Key("hostarch").String(); v != "" {
		cfg.HostArch = v
	}
	if n, err := sec.Key("jobs").Int(); err == nil && n > 0 {
		cfg.MaxJobs = n
	}
	if b, err := sec.Key("explain").Bool(); err == nil {
		cfg.Explain = b
	}
	if b, err := sec.Key("noui").Bool(); err == nil {
		cfg.DisableUI = b
	}

	return cfg, nil
}

func discoverConfigFile() string {
	candidates := make([]string, 0, 2)
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "driver", "driver.ini"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "driver", "driver.ini"))
	}
	candidates = append(candidates, "/etc/driver/driver.ini")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// SetDistDir points the configuration at a new distribution root. ToolPath
// tracks the new root; callers overriding the tool explicitly must do so
// after this call.
func (cfg *Config) SetDistDir(dir string) {
	cfg.DistDir = dir
	cfg.ToolPath = filepath.Join(dir, defaultToolName)
}

// Validate checks that the configuration is usable before planning starts.
func (cfg *Config) Validate() error {
	if cfg.DistDir == "" {
		return fmt.Errorf("config: distdir is not set")
	}
	info, err := os.Stat(filepath.Join(cfg.DistDir, "srcpkgs"))
	if err != nil {
		return fmt.Errorf("config: %s/srcpkgs: %w", cfg.DistDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: %s/srcpkgs is not a directory", cfg.DistDir)
	}
	if cfg.MaxJobs < 1 {
		return fmt.Errorf("config: MaxJobs must be at least 1")
	}
	return nil
}

// SrcpkgsDir returns <DistDir>/srcpkgs.
func (cfg *Config) SrcpkgsDir() string {
	return filepath.Join(cfg.DistDir, "srcpkgs")
}

// DepsDir returns <DistDir>/deps.
func (cfg *Config) DepsDir() string {
	return filepath.Join(cfg.DistDir, "deps")
}

// LogsDir returns <DistDir>/logs.
func (cfg *Config) LogsDir() string {
	return filepath.Join(cfg.DistDir, "logs")
}
