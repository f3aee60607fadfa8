package transport

import (
	"sync"

	"github.com/ef-ds/deque"
)

// Inbox runs queued callbacks one at a time on a single goroutine, in the
// order they were pushed. Push never blocks.
type Inbox struct {
	mu     sync.Mutex
	queue  deque.Deque
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewInbox() *Inbox {
	in := &Inbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go in.run()
	return in
}

// Push queues fn. It is dropped if the inbox is closed.
func (in *Inbox) Push(fn func()) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.queue.PushBack(fn)
	select {
	case in.wake <- struct{}{}:
	default:
	}
	in.mu.Unlock()
}

// Close stops the inbox after the callback in progress returns. Queued
// callbacks are discarded. It must not be called from a callback.
func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	close(in.wake)
	in.mu.Unlock()
	<-in.done
}

func (in *Inbox) run() {
	defer close(in.done)
	for range in.wake {
		for {
			in.mu.Lock()
			if in.closed || in.queue.Len() == 0 {
				in.mu.Unlock()
				break
			}
			v, _ := in.queue.PopFront()
			in.mu.Unlock()
			v.(func())()
		}
	}
}
