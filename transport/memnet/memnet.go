// Package memnet is an in-process transport connecting any number of faces.
// It is used to run several replicas inside one test binary.
package memnet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/transport"
)

// Network links faces. Packets cross it as wire bytes so every face owns its
// own copy.
type Network struct {
	mu    sync.RWMutex
	faces map[string]*Face

	dropFetch    func(from string, n name.Name) bool
	dropAnnounce func(from, to string) bool
}

func New() *Network {
	return &Network{faces: make(map[string]*Face)}
}

// DropFetches makes fetches for which pred returns true fail with ErrNoRoute.
// A nil pred clears the filter.
func (nw *Network) DropFetches(pred func(from string, n name.Name) bool) {
	nw.mu.Lock()
	nw.dropFetch = pred
	nw.mu.Unlock()
}

// DropAnnouncements silently discards announcements for which pred returns true.
func (nw *Network) DropAnnouncements(pred func(from, to string) bool) {
	nw.mu.Lock()
	nw.dropAnnounce = pred
	nw.mu.Unlock()
}

// NewFace attaches a face with the given id. Ids must be unique.
func (nw *Network) NewFace(id string) (*Face, error) {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	if _, ok := nw.faces[id]; ok {
		return nil, fmt.Errorf("memnet: face %q already attached", id)
	}
	inbox := transport.NewInbox()
	f := &Face{id: id, nw: nw, inbox: inbox, mux: transport.NewMux(inbox)}
	nw.faces[id] = f
	return f, nil
}

// peers returns the attached faces in id order.
func (nw *Network) peers() []*Face {
	nw.mu.RLock()
	defer nw.mu.RUnlock()
	out := make([]*Face, 0, len(nw.faces))
	for _, f := range nw.faces {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

type Face struct {
	id     string
	nw     *Network
	mux    *transport.Mux
	inbox  *transport.Inbox
	closed atomic.Bool
}

var _ transport.Transport = (*Face)(nil)

func (f *Face) ID() string { return f.id }

func (f *Face) Serve(prefix name.Name, h transport.Handler) (func(), error) {
	if f.closed.Load() {
		return nil, transport.ErrClosed
	}
	return f.mux.Serve(prefix, h), nil
}

func (f *Face) Subscribe(group name.Name, fn transport.AnnounceFunc) (func(), error) {
	if f.closed.Load() {
		return nil, transport.ErrClosed
	}
	return f.mux.Subscribe(group, fn), nil
}

func (f *Face) Fetch(ctx context.Context, n name.Name) (*packet.Packet, error) {
	if f.closed.Load() {
		return nil, transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.nw.mu.RLock()
	drop := f.nw.dropFetch
	f.nw.mu.RUnlock()
	if drop != nil && drop(f.id, n) {
		return nil, fmt.Errorf("memnet: fetch %s dropped: %w", n, transport.ErrNoRoute)
	}

	lastErr := transport.ErrNoRoute
	for _, peer := range f.nw.peers() {
		h, ok := peer.mux.Lookup(n)
		if !ok {
			continue
		}
		p, err := h(ctx, n)
		if err != nil {
			lastErr = err
			continue
		}
		if !p.Name.Equal(n) {
			lastErr = storage.ErrNameMismatch
			continue
		}
		return packet.Decode(p.Wire())
	}
	return nil, fmt.Errorf("memnet: fetch %s: %w", n, lastErr)
}

func (f *Face) Announce(ctx context.Context, group name.Name, payload []byte) error {
	if f.closed.Load() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.nw.mu.RLock()
	drop := f.nw.dropAnnounce
	f.nw.mu.RUnlock()
	for _, peer := range f.nw.peers() {
		if peer == f || (drop != nil && drop(f.id, peer.id)) {
			continue
		}
		peer.mux.Deliver(group, append([]byte(nil), payload...))
	}
	return nil
}

// Close detaches the face. Queued announcements are discarded.
func (f *Face) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.nw.mu.Lock()
	delete(f.nw.faces, f.id)
	f.nw.mu.Unlock()
	f.inbox.Close()
	return nil
}
