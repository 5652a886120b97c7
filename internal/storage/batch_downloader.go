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

// BatchDownloader downloads many objects in parallel into a local cache
// directory, skipping objects already present in the cache.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// BatchResult contains the outcome of a batch download.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// Err returns one of the download errors, or nil when all succeeded.
func (r *BatchResult) Err() error {
	for path, err := range r.Errors {
		return fmt.Errorf("download %s: %w", path, err)
	}
	return nil
}

// NewBatchDownloader creates a batch downloader with at most concurrency
// downloads in flight.
func NewBatchDownloader(storage ObjectStorage, concurrency int, cacheDir string) *BatchDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Download fetches the objects. Objects keep their relative path under the
// cache directory, so equal file names in different partitions do not
// collide. Per-object failures are reported in the result; the returned
// error is only set when the context ends before all downloads started.
func (b *BatchDownloader) Download(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}

	var queue []string
	for _, p := range objectPaths {
		local, err := b.localPath(p)
		if err != nil {
			result.Errors[p] = err
			continue
		}
		if _, err := os.Stat(local); err == nil {
			result.LocalPaths[p] = local
			result.CacheHits++
			continue
		}
		queue = append(queue, p)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, err
		}

		wg.Add(1)
		go func(path string) {
			defer sem.Release(1)
			defer wg.Done()

			local, _ := b.localPath(path)
			err := os.MkdirAll(filepath.Dir(local), 0755)
			if err == nil {
				err = b.storage.Download(ctx, path, local)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				os.Remove(local)
				result.Errors[path] = err
				return
			}
			result.LocalPaths[path] = local
			result.Downloads++
		}(p)
	}

	wg.Wait()
	return result, nil
}

func (b *BatchDownloader) localPath(objectPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectPath))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(b.cacheDir, clean), nil
}
