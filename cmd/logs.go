package cmd

import (
	"github.com/spf13/cobra"

	"driver/log"
)

var logsTailLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the driver's own log files",
	Long: `Inspects the driver's run-scoped log files under
<distdir>/var/log/driver (progress, explain, fatal). These are diagnostics
about the driver itself, distinct from the per-package build logs under
<distdir>/logs.`,
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the driver's log files and their sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log.List(cfg)
		return nil
	},
}

var logsTailCmd = &cobra.Command{
	Use:   "tail <progress|explain|fatal>",
	Short: "Print the last lines of a driver log file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return log.Tail(cfg, args[0], logsTailLines)
	},
}

var logsGrepCmd = &cobra.Command{
	Use:   "grep <progress|explain|fatal> <pattern>",
	Short: "Print matching lines of a driver log file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return log.Grep(cfg, args[0], args[1])
	},
}

func init() {
	logsTailCmd.Flags().IntVarP(&logsTailLines, "lines", "l", 20, "number of lines to print")
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsGrepCmd)
}
