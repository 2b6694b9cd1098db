package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLocalStore_UploadDownload(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()
	work := t.TempDir()

	src := writeTemp(t, work, "benchmark_log.csv", "timestamp,run_id\n")
	if err := store.Upload(ctx, src, "results/benchmark_log.csv"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	exists, err := store.Exists(ctx, "results/benchmark_log.csv")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("uploaded object not found")
	}

	dest := filepath.Join(work, "restored", "benchmark_log.csv")
	if err := store.Download(ctx, "results/benchmark_log.csv", dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "timestamp,run_id\n" {
		t.Errorf("restored content = %q", got)
	}
}

func TestLocalStore_DownloadMissingObject(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	err = store.Download(context.Background(), "absent", filepath.Join(t.TempDir(), "out"))
	if err != ErrObjectNotFound {
		t.Errorf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStore_DeleteIsIdempotent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	src := writeTemp(t, t.TempDir(), "f", "data")
	if err := store.Upload(ctx, src, "f"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if err := store.Delete(ctx, "f"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "f"); err != nil {
		t.Errorf("second delete must be a no-op, got %v", err)
	}

	exists, err := store.Exists(ctx, "f")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("object still exists after delete")
	}
}

func TestLocalStore_ListObjects(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()
	work := t.TempDir()

	for _, name := range []string{"a.csv", "sub/b.csv"} {
		src := writeTemp(t, work, filepath.Base(name), "x")
		if err := store.Upload(ctx, src, "results/"+name); err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
	}
	src := writeTemp(t, work, "other", "x")
	if err := store.Upload(ctx, src, "data/other"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	objects, err := store.ListObjects(ctx, "results")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(objects)
	want := []string{"results/a.csv", "results/sub/b.csv"}
	if len(objects) != len(want) || objects[0] != want[0] || objects[1] != want[1] {
		t.Errorf("objects = %v, want %v", objects, want)
	}

	// A prefix with no objects lists empty, not an error.
	none, err := store.ListObjects(ctx, "missing")
	if err != nil {
		t.Fatalf("ListObjects on empty prefix failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no objects, got %v", none)
	}
}

func TestSyncDir(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	src := t.TempDir()
	writeTemp(t, src, "benchmark_log.csv", "log")
	writeTemp(t, src, filepath.Join("row", "fact_sales.csv"), "rows")

	if err := SyncDir(ctx, store, src, "runs/run-1"); err != nil {
		t.Fatalf("SyncDir failed: %v", err)
	}

	objects, err := store.ListObjects(ctx, "runs/run-1")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(objects)
	want := []string{"runs/run-1/benchmark_log.csv", "runs/run-1/row/fact_sales.csv"}
	if len(objects) != 2 || objects[0] != want[0] || objects[1] != want[1] {
		t.Errorf("objects = %v, want %v", objects, want)
	}
}

func TestVerifySync(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	src := t.TempDir()
	writeTemp(t, src, "benchmark_log.csv", "log")
	writeTemp(t, src, filepath.Join("row", "fact_sales.csv"), "rows")

	if err := SyncDir(ctx, store, src, "results"); err != nil {
		t.Fatalf("SyncDir failed: %v", err)
	}
	if err := VerifySync(ctx, store, src, "results"); err != nil {
		t.Errorf("VerifySync after a complete sync failed: %v", err)
	}

	// Losing an object after the sync must be detected.
	if err := store.Delete(ctx, "results/row/fact_sales.csv"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	err = VerifySync(ctx, store, src, "results")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("err = %v, want ErrObjectNotFound", err)
	}
}
