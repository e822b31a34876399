package audio

import (
	"sync"

	"github.com/osa030/tubebox/internal/app/player"
)

// notifier delivers state changes in order without blocking the caller.
// emit may be called from the consumer's own goroutine.
type notifier struct {
	out  chan player.StateChange
	wake chan struct{}
	done chan struct{}

	mu    sync.Mutex
	queue []player.StateChange

	closeOnce sync.Once
}

func newNotifier() *notifier {
	n := &notifier{
		out:  make(chan player.StateChange),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.pump()
	return n
}

func (n *notifier) emit(sc player.StateChange) {
	n.mu.Lock()
	n.queue = append(n.queue, sc)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) pump() {
	defer close(n.out)
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			select {
			case <-n.wake:
				continue
			case <-n.done:
				return
			}
		}
		sc := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		select {
		case n.out <- sc:
		case <-n.done:
			return
		}
	}
}

func (n *notifier) close() {
	n.closeOnce.Do(func() { close(n.done) })
}
