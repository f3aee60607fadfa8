package storage

import (
	"fmt"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

// NamedStore associates a Store with a stable backend name.
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. A write fails on the first backend error; backends
// written before the failure keep the packet, which is harmless because puts
// are idempotent by name.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = ReplicatingStore{}

func (r ReplicatingStore) Put(p *packet.Packet) error {
	if len(p.Name) == 0 {
		return ErrInvalidName
	}
	if len(r.Backends) == 0 {
		return fmt.Errorf("storage: ReplicatingStore has no backends")
	}
	for _, b := range r.Backends {
		if b.Store == nil {
			return fmt.Errorf("storage: nil Store for backend %q", b.Name)
		}
		if err := b.Store.Put(p); err != nil {
			return fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
	}
	return nil
}

func (r ReplicatingStore) Get(n name.Name) (*packet.Packet, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		p, err := b.Store.Get(n)
		if err == nil {
			return p, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingStore) Has(n name.Name) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(n) {
			return true
		}
	}
	return false
}
