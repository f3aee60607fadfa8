package storage

import (
	"errors"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

// MultiStore provides deterministic, ordered fallback across multiple stores.
//
// Lookup order is the slice order in Stores; callers MUST supply a fixed order.
//
// Put is defined to write only to the first store.
type MultiStore struct {
	Stores []Store
}

var _ Store = MultiStore{}

func (m MultiStore) Put(p *packet.Packet) error {
	if len(m.Stores) == 0 {
		return errors.New("storage: MultiStore has no stores")
	}
	return m.Stores[0].Put(p)
}

func (m MultiStore) Get(n name.Name) (*packet.Packet, error) {
	for _, s := range m.Stores {
		p, err := s.Get(n)
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

func (m MultiStore) Has(n name.Name) bool {
	for _, s := range m.Stores {
		if s.Has(n) {
			return true
		}
	}
	return false
}
