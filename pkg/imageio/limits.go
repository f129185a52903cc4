package imageio

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// FileLockManager serializes access per key, typically a filename, so at
// most one read of a given file is in flight. Different keys never block
// each other. The zero value is not usable; call NewFileLockManager.
type FileLockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewFileLockManager() *FileLockManager {
	return &FileLockManager{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and then holds it.
func (m *FileLockManager) Lock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()
	l.mu.Lock()
}

// Unlock releases key. Unlocking a key that is not held panics.
func (m *FileLockManager) Unlock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic(fmt.Sprintf("imageio: unlock of unlocked key %q", key))
	}
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
	l.mu.Unlock()
}

// With runs fn while holding key.
func (m *FileLockManager) With(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

// Pending returns the number of keys currently held or waited on.
func (m *FileLockManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// DefaultMaxConnections is the outbound connection cap used when none is
// configured.
const DefaultMaxConnections = 10

// ConnectionLimiter caps the number of concurrent outbound connections.
type ConnectionLimiter struct {
	sem   *semaphore.Weighted
	limit int
}

// NewConnectionLimiter allows n concurrent connections; n < 1 means
// DefaultMaxConnections.
func NewConnectionLimiter(n int) *ConnectionLimiter {
	if n < 1 {
		n = DefaultMaxConnections
	}
	return &ConnectionLimiter{sem: semaphore.NewWeighted(int64(n)), limit: n}
}

// Acquire blocks until a connection slot is free or ctx is done.
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for connection slot: %w", err)
	}
	return nil
}

// TryAcquire takes a slot only if one is free.
func (l *ConnectionLimiter) TryAcquire() bool { return l.sem.TryAcquire(1) }

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ConnectionLimiter) Release() { l.sem.Release(1) }

// Limit returns the configured cap.
func (l *ConnectionLimiter) Limit() int { return l.limit }
