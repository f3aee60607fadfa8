package transport

import (
	"context"
	"sync"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

// Mux holds the handlers and subscriptions registered on one face.
// Handler lookup is by longest matching prefix.
type Mux struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]route
	subs     map[uint64]subscription
	inbox    *Inbox
}

type route struct {
	prefix  name.Name
	handler Handler
}

type subscription struct {
	group name.Name
	fn    AnnounceFunc
}

// NewMux returns a Mux whose announcements are delivered through inbox.
func NewMux(inbox *Inbox) *Mux {
	return &Mux{
		handlers: make(map[uint64]route),
		subs:     make(map[uint64]subscription),
		inbox:    inbox,
	}
}

func (m *Mux) Serve(prefix name.Name, h Handler) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers[id] = route{prefix: prefix, handler: h}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}
}

func (m *Mux) Subscribe(group name.Name, fn AnnounceFunc) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = subscription{group: group, fn: fn}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Lookup returns the handler with the longest prefix of n.
func (m *Mux) Lookup(n name.Name) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best    Handler
		bestLen = -1
	)
	for _, r := range m.handlers {
		if r.prefix.IsPrefix(n) && len(r.prefix) > bestLen {
			best, bestLen = r.handler, len(r.prefix)
		}
	}
	return best, bestLen >= 0
}

// Answer serves a fetch for n from the registered handlers.
func (m *Mux) Answer(ctx context.Context, n name.Name) (*packet.Packet, error) {
	h, ok := m.Lookup(n)
	if !ok {
		return nil, ErrNoRoute
	}
	return h(ctx, n)
}

// Subscribed reports whether anything listens on group.
func (m *Mux) Subscribed(group name.Name) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.group.Equal(group) {
			return true
		}
	}
	return false
}

// Deliver queues payload for every subscriber of group.
func (m *Mux) Deliver(group name.Name, payload []byte) {
	m.mu.RLock()
	var fns []AnnounceFunc
	for _, s := range m.subs {
		if s.group.Equal(group) {
			fns = append(fns, s.fn)
		}
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn := fn
		m.inbox.Push(func() { fn(payload) })
	}
}
