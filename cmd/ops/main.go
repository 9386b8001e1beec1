// Command worklog-ops backs up and restores file-backend data
// directories, and drills a backup end to end: archive, restore into
// a scratch directory, then verify the restored collections
// deserialize and line up with the source.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"worklog/internal/ops"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "backup":
		if err := cmdBackup(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "backup failed:", err)
			os.Exit(1)
		}
	case "restore":
		if err := cmdRestore(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "restore failed:", err)
			os.Exit(1)
		}
	case "verify":
		if err := cmdVerify(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "verify failed:", err)
			os.Exit(1)
		}
	case "drill":
		if err := cmdDrill(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "drill failed:", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(2)
	}
}

func cmdBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data", "path to tracking data directory")
	out := fs.String("out", "", "output archive path (.tar.gz)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Refuse to archive data that is already broken.
	sum, err := ops.VerifyDataDir(*dataDir)
	if err != nil {
		return err
	}

	if *out == "" {
		ts := time.Now().UTC().Format("20060102T150405Z")
		*out = filepath.Join("backups", "worklog-"+ts+".tar.gz")
	}
	if err := ops.BackupDataDir(*dataDir, *out); err != nil {
		return err
	}
	fmt.Println(*out)
	printSummary(sum)
	return nil
}

func cmdRestore(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	archive := fs.String("archive", "", "input backup archive (.tar.gz)")
	target := fs.String("target-dir", "data-restored", "restore target directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *archive == "" {
		return fmt.Errorf("archive is required")
	}
	if err := ops.RestoreDataDir(*archive, *target); err != nil {
		return err
	}
	sum, err := ops.VerifyDataDir(*target)
	if err != nil {
		return err
	}
	printSummary(sum)
	return nil
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data", "path to tracking data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sum, err := ops.VerifyDataDir(*dataDir)
	if err != nil {
		return err
	}
	printSummary(sum)
	return nil
}

// cmdDrill backs up, restores into a scratch dir, and verifies the
// restored tracking data reads back identical to the source. Run it
// before trusting a backup.
func cmdDrill(args []string) error {
	fs := flag.NewFlagSet("drill", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data", "path to tracking data directory")
	workDir := fs.String("work-dir", os.TempDir(), "temporary workspace for drill artifacts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(*workDir, 0o755); err != nil {
		return err
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	archive := filepath.Join(*workDir, "worklog-drill-"+ts+".tar.gz")
	restoreDir := filepath.Join(*workDir, "worklog-drill-restore-"+ts)

	srcSum, err := ops.VerifyDataDir(*dataDir)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := ops.BackupDataDir(*dataDir, archive); err != nil {
		return err
	}
	if err := ops.RestoreDataDir(archive, restoreDir); err != nil {
		return err
	}
	restoredSum, err := ops.VerifyDataDir(restoreDir)
	if err != nil {
		return fmt.Errorf("restored: %w", err)
	}
	if srcSum != restoredSum {
		return fmt.Errorf("restored data diverges from source: src=%+v restored=%+v", srcSum, restoredSum)
	}

	fmt.Println("backup:", archive)
	fmt.Println("restored:", restoreDir)
	printSummary(restoredSum)
	return nil
}

func printSummary(s ops.Summary) {
	fmt.Printf("days=%d archivedTasks=%d currentTasks=%d projects=%d categories=%d totalDurationMs=%d\n",
		s.Days, s.ArchivedTasks, s.CurrentTasks, s.Projects, s.Categories, s.TotalDuration)
}

func printUsage() {
	fmt.Println("usage:")
	fmt.Println("  worklog-ops backup  --data-dir data --out backups/backup.tar.gz")
	fmt.Println("  worklog-ops restore --archive backups/backup.tar.gz --target-dir data-restored")
	fmt.Println("  worklog-ops verify  --data-dir data")
	fmt.Println("  worklog-ops drill   --data-dir data --work-dir /tmp")
}
