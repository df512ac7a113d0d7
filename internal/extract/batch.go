package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrLocked is reported when another process is already extracting the
// same input.
var ErrLocked = errors.New("input is being extracted by another process")

// LockDir holds the per-input advisory lock files. Each file exists only
// while its input is being extracted.
var LockDir = os.TempDir()

// RunBatch extracts every path with at most concurrency files in flight.
// Reports are returned in input order; a failed file does not stop the
// others.
func RunBatch(ctx context.Context, e *Extractor, paths []string, concurrency int) []*Report {
	if concurrency < 1 {
		concurrency = 1
	}
	reports := make([]*Report, len(paths))

	workChan := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < concurrency && i < len(paths); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workChan {
				reports[idx] = e.runLocked(ctx, paths[idx])
			}
		}()
	}

	for i := range paths {
		workChan <- i
	}
	close(workChan)
	wg.Wait()
	return reports
}

func (e *Extractor) runLocked(ctx context.Context, path string) *Report {
	lock, err := acquireLock(lockPath(path))
	if err != nil {
		rep := &Report{Path: path}
		rep.abort(err)
		if errors.Is(err, ErrLocked) {
			e.logger().Warnw("Skipping input locked by another process", "file", path)
		}
		return rep
	}
	defer releaseLock(lock)

	rep, _ := e.Run(ctx, path)
	return rep
}

const lockAttempts = 3

// acquireLock takes the lock file at path. A holder removes its lock file
// on release, so a lock taken on a file that is no longer at path is
// dropped and taken again.
func acquireLock(path string) (*flock.Flock, error) {
	for i := 0; i < lockAttempts; i++ {
		lock := flock.New(path)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("locking input: %w", err)
		}
		if !locked {
			return nil, ErrLocked
		}
		held, herr := lock.Stat()
		cur, cerr := os.Stat(path)
		if herr == nil && cerr == nil && os.SameFile(held, cur) {
			return lock, nil
		}
		lock.Close()
	}
	return nil, ErrLocked
}

// releaseLock removes the lock file while still holding it.
func releaseLock(lock *flock.Flock) {
	os.Remove(lock.Path())
	lock.Close()
}

func lockPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(LockDir, "subtools-"+hex.EncodeToString(sum[:8])+".lock")
}
