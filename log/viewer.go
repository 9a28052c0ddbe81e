package log

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"driver/config"
)

// logFiles enumerates the driver's own ambient log files under
// <DistDir>/var/log/driver, in the order Logger.New creates them.
var logFiles = []string{"00_progress.log", "01_explain.log", "02_fatal.log"}

func driverLogDir(cfg *config.Config) string {
	return filepath.Join(cfg.DistDir, "var", "log", "driver")
}

// resolveLogName maps a short name ("progress", "explain", "fatal", or a
// numeric prefix like "00") to its on-disk filename.
func resolveLogName(name string) (string, error) {
	name = strings.ToLower(name)
	for _, f := range logFiles {
		if f == name || strings.HasPrefix(f, name) || strings.TrimSuffix(strings.SplitN(f, "_", 2)[1], ".log") == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("log: unknown log name %q", name)
}

// List prints the driver's ambient log files and their current size.
func List(cfg *config.Config) {
	dir := driverLogDir(cfg)
	fmt.Println("Driver log files:")
	for _, f := range logFiles {
		path := filepath.Join(dir, f)
		info, err := os.Stat(path)
		if err != nil {
			fmt.Printf("  %-16s (not yet created)\n", f)
			continue
		}
		fmt.Printf("  %-16s %8d bytes\n", f, info.Size())
	}
}

// Tail prints the last n lines of the named ambient log file.
func Tail(cfg *config.Config, name string, n int) error {
	fname, err := resolveLogName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(driverLogDir(cfg), fname)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("log: opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("log: reading %s: %w", path, err)
	}

	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	for _, line := range lines[start:] {
		fmt.Println(line)
	}
	return nil
}

// Grep prints every line of the named ambient log file containing pattern.
func Grep(cfg *config.Config, name, pattern string) error {
	fname, err := resolveLogName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(driverLogDir(cfg), fname)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("log: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if strings.Contains(scanner.Text(), pattern) {
			fmt.Printf("%d: %s\n", lineNum, scanner.Text())
		}
	}
	return scanner.Err()
}
