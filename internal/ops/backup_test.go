package ops

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"worklog/internal/model"
	"worklog/internal/storage/file"
)

func TestBackupRestoreDataDir_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "src")
	logger := log.New(io.Discard, "", 0)

	store, err := file.Open(src, logger)
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	start := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	task := model.NewTask("client call", start)
	task.Close(start.Add(45 * time.Minute))
	rec := model.NewDayRecord(start, *task.EndTime, []model.Task{task}, "invoiced")
	if err := store.SaveArchivedDays(ctx, []model.DayRecord{rec}); err != nil {
		t.Fatalf("seed archive: %v", err)
	}
	if err := store.SaveProjects(ctx, model.SeedProjects()); err != nil {
		t.Fatalf("seed projects: %v", err)
	}

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	if err := BackupDataDir(src, archive); err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("archive missing: %v", err)
	}

	restoreDir := filepath.Join(t.TempDir(), "restore")
	if err := RestoreDataDir(archive, restoreDir); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	restored, err := file.Open(restoreDir, logger)
	if err != nil {
		t.Fatalf("open restored store: %v", err)
	}
	days, err := restored.ArchivedDays(ctx)
	if err != nil {
		t.Fatalf("read restored archive: %v", err)
	}
	if len(days) != 1 || days[0].ID != rec.ID {
		t.Fatalf("restored archive mismatch: %+v", days)
	}
	if days[0].Notes != "invoiced" {
		t.Fatalf("restored notes mismatch: %q", days[0].Notes)
	}
	projects, err := restored.Projects(ctx)
	if err != nil {
		t.Fatalf("read restored projects: %v", err)
	}
	if len(projects) != len(model.SeedProjects()) {
		t.Fatalf("restored projects mismatch: %d", len(projects))
	}
}

func TestBackupDataDir_RejectsNonDataDir(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "random.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := BackupDataDir(src, filepath.Join(t.TempDir(), "out.tar.gz")); err == nil {
		t.Fatalf("expected backup to reject directory without settings.json")
	}
}

func TestRestoreDataDir_RejectsPathTraversal(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bad.tar.gz")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len("bad")),
	}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write([]byte("bad")); err != nil {
		t.Fatalf("write body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	if err := RestoreDataDir(archive, filepath.Join(t.TempDir(), "out")); err == nil {
		t.Fatalf("expected restore to reject path traversal archive")
	}
}
