package state

import (
	"context"
	"sync"
)

// Manager manages the browsing context with thread-safe access.
// Each Begin starts a new generation; work tagged with an older generation
// is stale and must be discarded.
type Manager struct {
	mu sync.RWMutex

	current Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new state manager.
func New() *Manager {
	done := make(chan struct{})
	close(done)
	return &Manager{done: done}
}

// Begin replaces the browsing context. Background work for the previous
// context is cancelled. The returned context is cancelled when the
// browsing context is replaced or the manager is closed.
func (m *Manager) Begin(parent context.Context, kind Kind, id string) (uint64, context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finishLocked()
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.current = Context{
		Kind:       kind,
		ID:         id,
		Generation: m.current.Generation + 1,
		Loading:    true,
	}
	return m.current.Generation, ctx
}

// GetGeneration returns the current generation.
func (m *Manager) GetGeneration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Generation
}

// IsCurrent reports whether gen is still the current generation.
func (m *Manager) IsCurrent(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Generation == gen
}

// AddLoaded records a loaded page. It returns false when gen is stale.
func (m *Manager) AddLoaded(gen uint64, count int, nextPageToken string) bool {
	return m.CommitPage(gen, count, nextPageToken, nil)
}

// CommitPage records a loaded page and runs apply while gen is guaranteed to
// stay current: Begin cannot start a newer context until apply returns.
// Nothing runs and false is returned when gen is stale.
func (m *Manager) CommitPage(gen uint64, count int, nextPageToken string, apply func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Generation != gen {
		return false
	}
	m.current.LoadedCount += count
	m.current.NextPageToken = nextPageToken
	if apply != nil {
		apply()
	}
	return true
}

// Finish marks loading for gen as complete. A non-nil err is recorded as the
// context's error indicator. Stale generations are ignored.
func (m *Manager) Finish(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Generation != gen {
		return
	}
	if err != nil {
		m.current.Error = err.Error()
	}
	m.current.Loading = false
	m.closeDoneLocked()
}

// Wait blocks until loading of the current context completes.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a copy of the current context.
func (m *Manager) Get() Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Close cancels background work for the current context.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()
	m.current.Loading = false
}

// finishLocked must be called with lock held.
func (m *Manager) finishLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.closeDoneLocked()
}

func (m *Manager) closeDoneLocked() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
