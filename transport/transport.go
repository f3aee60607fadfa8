// Package transport defines how replicas reach each other: fetching packets by
// name from whoever serves the prefix, and broadcasting opaque announcements
// to a group.
//
// Transports are best-effort. A Fetch may fail for any reason and callers are
// expected to move on; announcements may be lost or reordered across peers but
// are delivered to a single subscriber in arrival order.
package transport

import (
	"context"
	"errors"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

var (
	ErrNoRoute = errors.New("transport: no route to name")
	ErrClosed  = errors.New("transport: closed")
)

// Handler answers a fetch for a name under a served prefix. It returns
// storage.ErrNotFound (or any error) when it cannot satisfy the request.
type Handler func(ctx context.Context, n name.Name) (*packet.Packet, error)

// AnnounceFunc receives one announcement payload.
type AnnounceFunc func(payload []byte)

type Transport interface {
	// Serve registers h for every name under prefix. The handler is reachable
	// by remote fetchers once Serve returns.
	Serve(prefix name.Name, h Handler) (unregister func(), err error)
	// Fetch retrieves the packet with exactly name n. The returned packet is
	// owned by the caller.
	Fetch(ctx context.Context, n name.Name) (*packet.Packet, error)
	// Announce broadcasts payload to every other subscriber of group.
	Announce(ctx context.Context, group name.Name, payload []byte) error
	// Subscribe delivers announcements for group to fn, one at a time.
	Subscribe(group name.Name, fn AnnounceFunc) (cancel func(), err error)
	Close() error
}
