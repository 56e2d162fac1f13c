package lease

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the redis key holding the lease token.
const DefaultKey = "registry-worker:lease"

// Redis is a lease stored as a token under a key with a TTL. The holder
// refreshes the TTL every third of its length.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string

	// ownsClient is set when the lease created client and must close it.
	ownsClient bool

	mu     sync.Mutex
	held   bool
	stop   chan struct{}
	done   chan struct{}
	lost   chan struct{}
	lostMu sync.Once
}

// NewRedis creates a lease on key.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
		lost:   make(chan struct{}),
	}
}

func (l *Redis) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil
	}

	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return ErrHeld
	}

	l.held = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.refreshLoop(l.stop, l.done)
	log.Printf("[lease] Acquired %s (ttl %s)", l.key, l.ttl)
	return nil
}

func (l *Redis) refreshLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			kept, err := l.refresh(ctx)
			cancel()
			if err != nil {
				log.Printf("[lease] Refresh of %s failed: %v", l.key, err)
				continue
			}
			if !kept {
				log.Printf("[lease] Lease %s was lost", l.key)
				l.lostMu.Do(func() { close(l.lost) })
				return
			}
		}
	}
}

// refresh extends the TTL while the key still holds our token.
func (l *Redis) refresh(ctx context.Context) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Redis) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}

	close(l.stop)
	<-l.done
	l.held = false

	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	log.Printf("[lease] Released %s", l.key)
	return nil
}

func (l *Redis) Lost() <-chan struct{} {
	return l.lost
}

// Close releases the lease and closes the client if New created it.
func (l *Redis) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()
	err := l.Release(ctx)
	if l.ownsClient {
		if cerr := l.client.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close redis client: %w", cerr)
		}
	}
	return err
}

var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
