package lease

import (
	"context"
	"fmt"
	"log"

	"github.com/gofrs/flock"
)

// File is a lease backed by an advisory lock on a local file.
type File struct {
	lock *flock.Flock
	lost chan struct{}
}

// NewFile creates a lease on path. The file is created on Acquire.
func NewFile(path string) *File {
	return &File{lock: flock.New(path), lost: make(chan struct{})}
}

func (l *File) Acquire(ctx context.Context) error {
	if l.lock.Locked() {
		return nil
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.lock.Path(), err)
	}
	if !ok {
		return ErrHeld
	}
	log.Printf("[lease] Acquired file lock %s", l.lock.Path())
	return nil
}

func (l *File) Release(ctx context.Context) error {
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.lock.Path(), err)
	}
	log.Printf("[lease] Released file lock %s", l.lock.Path())
	return nil
}

// Lost never fires; a file lock lives as long as the process.
func (l *File) Lost() <-chan struct{} {
	return l.lost
}

// Close releases the lock and closes the lock file handle.
func (l *File) Close() error {
	if err := l.Release(context.Background()); err != nil {
		return err
	}
	if err := l.lock.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", l.lock.Path(), err)
	}
	return nil
}
