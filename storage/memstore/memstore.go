// Package memstore is the in-memory packet store used by every replica.
package memstore

import (
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
)

// Store maps names to packets and indexes them by wire digest.
//
// Concurrent readers never block each other; a Put for an existing name
// replaces the entry (last writer wins).
type Store struct {
	mu       sync.RWMutex
	byName   map[string]*packet.Packet
	byDigest map[cid.Cid]string
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		byName:   make(map[string]*packet.Packet),
		byDigest: make(map[cid.Cid]string),
	}
}

func (s *Store) Put(p *packet.Packet) error {
	if p == nil || len(p.Name) == 0 {
		return storage.ErrInvalidName
	}
	digest, err := p.Digest()
	if err != nil {
		return err
	}
	key := p.Name.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byName[key]; ok {
		if d, err := old.Digest(); err == nil {
			delete(s.byDigest, d)
		}
	}
	s.byName[key] = p
	s.byDigest[digest] = key
	return nil
}

func (s *Store) Get(n name.Name) (*packet.Packet, error) {
	if len(n) == 0 {
		return nil, storage.ErrInvalidName
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[n.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) Has(n name.Name) bool {
	if len(n) == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[n.String()]
	return ok
}

// GetByDigest looks a packet up by the CID of its wire encoding.
func (s *Store) GetByDigest(id cid.Cid) (*packet.Packet, error) {
	if !id.Defined() {
		return nil, storage.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byDigest[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.byName[key], nil
}

// Len returns the number of stored packets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

// Names returns the stored names in canonical order.
func (s *Store) Names() []name.Name {
	s.mu.RLock()
	out := make([]name.Name, 0, len(s.byName))
	for _, p := range s.byName {
		out = append(out, p.Name)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
