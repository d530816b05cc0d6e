package cache

import (
	"log/slog"
	"time"
)

// Cache is the read/write surface the HTTP layer consumes.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Purger is implemented by caches supporting whole-cache invalidation.
type Purger interface {
	Purge()
}

// Cleaner is implemented by caches that support expired-entry cleanup.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic cleanup over the registered caches and fans out
// purges after invalidating writes.
type Manager struct {
	caches      []Cleaner
	purgers     []Purger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup and purging.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
	if p, ok := cache.(Purger); ok {
		m.purgers = append(m.purgers, p)
	}
}

// PurgeAll invalidates every registered cache.
func (m *Manager) PurgeAll() {
	for _, p := range m.purgers {
		p.Purge()
	}
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := 0
			for _, cache := range m.caches {
				cleaned += cache.CleanExpired()
			}
			if cleaned > 0 {
				slog.Debug("Cleaned expired cache entries", "count", cleaned)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
}
