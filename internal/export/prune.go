package export

import (
	"os"
	"path/filepath"
	"sync"
)

// PruneEmptyDirs removes path if it contains nothing but empty directory
// trees, recursing bottom-up, and reports whether it was removed. With
// jobs > 1 the top-level subdirectories are pruned concurrently and the
// final decision about path itself is taken once under a mutex.
func PruneEmptyDirs(path string, jobs int) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	if jobs <= 1 {
		return pruneDir(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}

	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allEmpty := true

	for _, entry := range entries {
		if !entry.IsDir() {
			mu.Lock()
			allEmpty = false
			mu.Unlock()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(sub string) {
			defer wg.Done()
			defer func() { <-sem }()
			removed := pruneDir(sub)
			mu.Lock()
			if !removed {
				allEmpty = false
			}
			mu.Unlock()
		}(filepath.Join(path, entry.Name()))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !allEmpty {
		return false
	}
	if remaining, err := os.ReadDir(path); err != nil || len(remaining) > 0 {
		return false
	}
	return os.Remove(path) == nil
}

func pruneDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	empty := true
	for _, entry := range entries {
		if !entry.IsDir() {
			empty = false
			break
		}
		if !pruneDir(filepath.Join(dir, entry.Name())) {
			empty = false
			break
		}
	}
	if !empty {
		return false
	}
	return os.Remove(dir) == nil
}
