// Package notification fans playback state changes out to remote subscribers.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/playback"
)

const (
	DefaultSendTimeout      = 500 * time.Millisecond
	DefaultProgressInterval = 250 * time.Millisecond
	DefaultMaxMisses        = 3
)

// Notification is a playback event delivered to subscribers.
type Notification struct {
	SequenceNo uint64
	Type       playback.EventType
	State      playback.Snapshot
	Time       time.Time
}

// Stream is the sending half of a subscriber connection.
type Stream interface {
	Send(*Notification) error
}

type subscriber struct {
	id     string
	stream Stream
	misses atomic.Int32 // consecutive timed-out sends
}

// Option configures a Manager.
type Option func(*Manager)

// WithSendTimeout bounds a single subscriber send.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) { m.sendTimeout = d }
}

// WithProgressInterval sets the minimum spacing of progress notifications.
// Zero forwards every progress event.
func WithProgressInterval(d time.Duration) Option {
	return func(m *Manager) { m.progressInterval = d }
}

// WithMaxMisses sets how many consecutive timed-out sends drop a subscriber.
func WithMaxMisses(n int) Option {
	return func(m *Manager) { m.maxMisses = int32(n) }
}

// Manager tracks subscribers and broadcasts numbered notifications to them.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber

	seq              atomic.Uint64
	sendTimeout      time.Duration
	progressInterval time.Duration
	maxMisses        int32

	progressMu   sync.Mutex
	lastProgress time.Time
}

// NewManager creates a notification manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		subscribers:      make(map[string]*subscriber),
		sendTimeout:      DefaultSendTimeout,
		progressInterval: DefaultProgressInterval,
		maxMisses:        DefaultMaxMisses,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.subscribers[id] = &subscriber{id: id, stream: stream}
	total := len(m.subscribers)
	m.mu.Unlock()

	zlog.Debug().Msgf("notification: subscribed: id=%s total=%d", id, total)
	return id
}

// NextSequenceNo reserves the next sequence number. Snapshots sent outside
// Broadcast use it so that a stream stays strictly increasing.
func (m *Manager) NextSequenceNo() uint64 {
	return m.seq.Add(1)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, subscriptionID)
}

// Publish turns a playback event into a notification. Progress events
// closer together than the progress interval are skipped.
func (m *Manager) Publish(e playback.Event) {
	now := time.Now()
	if e.Type == playback.EventProgress && !m.progressDue(now) {
		return
	}
	m.Broadcast(&Notification{Type: e.Type, State: e.State, Time: now})
}

func (m *Manager) progressDue(now time.Time) bool {
	if m.progressInterval <= 0 {
		return true
	}
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	if now.Sub(m.lastProgress) < m.progressInterval {
		return false
	}
	m.lastProgress = now
	return true
}

// Broadcast numbers n and sends it to every subscriber in parallel, waiting
// at most the send timeout. A failed send drops the subscriber at once; a
// subscriber that times out maxMisses times in a row is dropped as well.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	subs := make([]*subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.deliver(sub, n)
		}()
	}
	wg.Wait()
}

func (m *Manager) deliver(sub *subscriber, n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sub.stream.Send(n)
	}()

	select {
	case err := <-done:
		if err != nil {
			zlog.Debug().Err(err).Msgf("notification: dropping subscriber: id=%s", sub.id)
			m.Unsubscribe(sub.id)
			return
		}
		sub.misses.Store(0)
	case <-ctx.Done():
		misses := sub.misses.Add(1)
		zlog.Debug().Msgf("notification: send timed out: id=%s seq=%d misses=%d", sub.id, n.SequenceNo, misses)
		if m.maxMisses > 0 && misses >= m.maxMisses {
			zlog.Warn().Msgf("notification: dropping stalled subscriber: id=%s", sub.id)
			m.Unsubscribe(sub.id)
		}
	}
}

// Send delivers n to one subscriber without numbering it.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscribers[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return sub.stream.Send(n)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.subscribers)
}
