package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
)

func newSeededStorage(t *testing.T, keys ...string) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	for _, k := range keys {
		if err := storage.Put(context.Background(), k, []byte("content of "+k)); err != nil {
			t.Fatalf("Put failed for %s: %v", k, err)
		}
	}
	return storage
}

func TestBatchDownloader_BasicDownload(t *testing.T) {
	var keys []string
	for i := 0; i < 10; i++ {
		keys = append(keys, fmt.Sprintf("reports/report-%d.json", i))
	}
	storage := newSeededStorage(t, keys...)
	downloader := NewBatchDownloader(storage, 3, t.TempDir())

	result, err := downloader.Download(context.Background(), keys)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(result.LocalPaths) != len(keys) {
		t.Errorf("expected %d local paths, got %d", len(keys), len(result.LocalPaths))
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
	if result.Downloads != len(keys) {
		t.Errorf("expected %d downloads, got %d", len(keys), result.Downloads)
	}

	for k, local := range result.LocalPaths {
		data, err := os.ReadFile(local)
		if err != nil {
			t.Errorf("failed to read %s: %v", local, err)
			continue
		}
		if string(data) != "content of "+k {
			t.Errorf("content mismatch for %s", k)
		}
	}
}

func TestBatchDownloader_CacheHit(t *testing.T) {
	storage := newSeededStorage(t, "reports/a.json")
	downloader := NewBatchDownloader(storage, 2, t.TempDir())
	ctx := context.Background()

	if _, err := downloader.Download(ctx, []string{"reports/a.json"}); err != nil {
		t.Fatalf("first Download failed: %v", err)
	}
	result, err := downloader.Download(ctx, []string{"reports/a.json"})
	if err != nil {
		t.Fatalf("second Download failed: %v", err)
	}
	if result.CacheHits != 1 || result.Downloads != 0 {
		t.Errorf("expected 1 cache hit and 0 downloads, got %d/%d", result.CacheHits, result.Downloads)
	}
}

func TestBatchDownloader_PartialFailure(t *testing.T) {
	storage := newSeededStorage(t, "reports/a.json")
	downloader := NewBatchDownloader(storage, 2, t.TempDir())

	result, err := downloader.Download(context.Background(), []string{"reports/a.json", "reports/missing.json"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(result.LocalPaths) != 1 {
		t.Errorf("expected 1 success, got %d", len(result.LocalPaths))
	}
	if _, ok := result.Errors["reports/missing.json"]; !ok {
		t.Errorf("expected error for missing object, got %v", result.Errors)
	}
}

func TestBatchDownloader_EmptyRequest(t *testing.T) {
	downloader := NewBatchDownloader(newSeededStorage(t), 0, t.TempDir())
	result, err := downloader.Download(context.Background(), nil)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(result.LocalPaths) != 0 || len(result.Errors) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}
