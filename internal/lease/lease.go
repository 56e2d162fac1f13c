// Package lease keeps a single worker instance running against a job table.
package lease

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Acquire when another instance holds the lease.
var ErrHeld = errors.New("lease is held by another instance")

// DefaultTTL is how long a redis lease lives without refresh.
const DefaultTTL = 30 * time.Second

// Lease is an exclusive, process-wide lock.
type Lease interface {
	// Acquire takes the lease or fails with ErrHeld.
	Acquire(ctx context.Context) error
	// Release gives the lease up. Releasing an unheld lease is a no-op.
	Release(ctx context.Context) error
	// Lost is closed when a held lease can no longer be kept.
	Lost() <-chan struct{}
	// Close releases the lease and frees the resources behind it.
	Close() error
}

// DefaultFile is the lock file used when no path is configured.
func DefaultFile() string {
	return filepath.Join(os.TempDir(), "registry-worker.lock")
}

// New returns a redis lease when redisURL is set and a file lease otherwise.
func New(redisURL, file string, ttl time.Duration) (Lease, error) {
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		l := NewRedis(redis.NewClient(opts), DefaultKey, ttl)
		l.ownsClient = true
		return l, nil
	}
	if file == "" {
		file = DefaultFile()
	}
	return NewFile(file), nil
}
