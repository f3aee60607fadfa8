package storage

import (
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

// Store is a named packet store.
//
// Contract:
// - Put inserts or overwrites by name; re-inserting the same name replaces the entry.
// - Stored packets MUST NOT be mutated by the store or its callers.
// - Get MUST return ErrNotFound when the name is absent.
// - Implementations MUST be safe for concurrent use.
//
// Freshness is not enforced here; it is advisory metadata for transports.
type Store interface {
	Put(p *packet.Packet) error
	Get(n name.Name) (*packet.Packet, error)
	Has(n name.Name) bool
}
