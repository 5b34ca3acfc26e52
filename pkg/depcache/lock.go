package depcache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
)

// fileLock is an exclusive OS lock held on an open lock file. The kernel
// drops the lock when the descriptor is closed, including on crash.
type fileLock struct {
	file *os.File
}

// acquireLock polls a non-blocking exclusive lock attempt until it succeeds,
// ctx is done or timeout elapses.
func acquireLock(ctx context.Context, path string, timeout, poll time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, fsutil.FileModeDefault)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ok, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if ok {
			return &fileLock{file: f}, nil
		}
		logger.Debug("Dependency cache locked, retrying", logger.Fields{"lock": path})

		select {
		case <-ctx.Done():
			_ = f.Close()
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: %s", errors.ErrCacheLocked, path)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release unlocks and closes the lock file. It is safe to call repeatedly.
func (l *fileLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unlock(l.file); err != nil {
		logger.Debug("Unlock failed", logger.Fields{"error": err})
	}
	if err := l.file.Close(); err != nil {
		logger.Debug("Lock file close failed", logger.Fields{"error": err})
	}
	l.file = nil
}
