package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchDownloader fetches many objects into a local directory in parallel.
// Objects already present in the directory are not fetched again.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	destDir     string
}

// BatchResult contains the outcome of a batch download.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// NewBatchDownloader creates a downloader writing into destDir with at most
// concurrency transfers in flight.
func NewBatchDownloader(storage ObjectStorage, concurrency int, destDir string) *BatchDownloader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		destDir:     destDir,
	}
}

// Download fetches every key. Per-object failures are reported in
// BatchResult.Errors; the returned error is reserved for setup failures.
func (b *BatchDownloader) Download(ctx context.Context, keys []string) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(keys) == 0 {
		return result, nil
	}
	if err := os.MkdirAll(b.destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, key := range keys {
		local := b.LocalPath(key)
		if _, err := os.Stat(local); err == nil {
			result.LocalPaths[key] = local
			result.CacheHits++
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[key] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(key, local string) {
			defer sem.Release(1)
			defer wg.Done()

			err := b.storage.Download(ctx, key, local)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[key] = err
				return
			}
			result.LocalPaths[key] = local
			result.Downloads++
		}(key, local)
	}

	wg.Wait()
	return result, nil
}

// LocalPath returns where key is stored inside the destination directory.
func (b *BatchDownloader) LocalPath(key string) string {
	return filepath.Join(b.destDir, strings.ReplaceAll(key, "/", "_"))
}
