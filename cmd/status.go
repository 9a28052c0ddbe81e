package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"driver/builddb"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run history from the ledger",
	Long: `Without arguments, lists every recorded driver run, most recent first.
With a run ID, shows that run's metadata and the jobs it executed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.DistDir, "var", "db", "driver.db")
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no runs recorded yet")
			return nil
		}
		return err
	}

	db, err := builddb.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showRun(db, args[0])
	}
	return listRuns(db)
}

func listRuns(db *builddb.DB) error {
	runs, err := db.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-8s  %s\n", "RUN", "STARTED", "STATUS", "BUILDS")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-8s  %d/%d (%d failed)\n",
			r.ID, r.StartTime.Format("2006-01-02 15:04:05"), r.Status,
			r.Stats.NumFinished, r.Stats.NumTotal, r.Stats.NumFailed)
	}
	return nil
}

func showRun(db *builddb.DB, runID string) error {
	rec, err := db.GetRun(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run %s\n", rec.ID)
	fmt.Printf("  distdir:  %s\n", rec.DistDir)
	fmt.Printf("  targets:  %v\n", rec.Targets)
	fmt.Printf("  started:  %s\n", rec.StartTime.Format("2006-01-02 15:04:05"))
	if !rec.EndTime.IsZero() {
		fmt.Printf("  finished: %s\n", rec.EndTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  status:   %s\n", rec.Status)
	fmt.Printf("  builds:   %d/%d (%d failed)\n",
		rec.Stats.NumFinished, rec.Stats.NumTotal, rec.Stats.NumFailed)

	jobs, err := db.ListJobs(runID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	fmt.Println("  jobs:")
	for _, j := range jobs {
		outcome := "ok"
		if !j.Success {
			outcome = "FAILED"
		}
		fmt.Printf("    %-8s %-30s %-16s %s\n", j.Kind, j.Name, j.Builder, outcome)
	}
	return nil
}
