package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	content := []byte("Metadata : []\nData :\n")
	if err := storage.Put(ctx, "results/run-1.log", content); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := storage.Get(ctx, "results/run-1.log")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	// Put replaces
	if err := storage.Put(ctx, "results/run-1.log", []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, _ = storage.Get(ctx, "results/run-1.log")
	if string(got) != "v2" {
		t.Errorf("expected overwritten content, got %q", got)
	}
}

func TestLocalStorage_Download(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	if err := storage.Put(ctx, "reports/a.json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "nested", "a.json")
	if err := storage.Download(ctx, "reports/a.json", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("content mismatch: %q", data)
	}
}

func TestLocalStorage_NotFound(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	if _, err := storage.Get(ctx, "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get: expected ErrObjectNotFound, got %v", err)
	}
	if err := storage.Download(ctx, "missing", filepath.Join(t.TempDir(), "x")); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Download: expected ErrObjectNotFound, got %v", err)
	}
	if err := storage.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of missing object should succeed, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"reports/b.json", "reports/a.json", "results/r.log"} {
		if err := storage.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	objects, err := storage.ListObjects(ctx, "reports/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	if objects[0].Key != "reports/a.json" || objects[1].Key != "reports/b.json" {
		t.Errorf("unexpected keys: %v", objects)
	}
	if objects[0].Size != int64(len("reports/a.json")) {
		t.Errorf("unexpected size: %d", objects[0].Size)
	}

	if err := storage.Delete(ctx, "reports/a.json"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	objects, _ = storage.ListObjects(ctx, "")
	if len(objects) != 2 {
		t.Errorf("expected 2 objects after delete, got %d", len(objects))
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Put(ctx, "x", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
