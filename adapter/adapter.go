// Package adapter exposes the sync engine as the peer network expected by the
// document replication layer: connect, send and a stream of lifecycle and
// message events.
//
// Outbound messages become signed packets at the next sequence number.
// Inbound packets must sit in the slot they were fetched for and verify
// against a certificate whose identity owns that name. Verified packets are
// cached for onward gossip and decoded. Anything that fails is logged and
// dropped; it never stops the sync loop and never surfaces as a message.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/svs"
	"xdao.co/aincraft/transport"
)

type EventKind int

const (
	EventReady EventKind = iota + 1
	EventPeerCandidate
	EventMessage
	// EventRejected reports a dropped inbound packet.
	EventRejected
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPeerCandidate:
		return "peer-candidate"
	case EventMessage:
		return "message"
	case EventRejected:
		return "rejected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

type Event struct {
	Kind EventKind
	// Origin is the base name of the node that produced the packet.
	Origin name.Name
	Seq    uint64
	// PeerID is set for EventPeerCandidate.
	PeerID  string
	Message *Message
	// Err is set for EventRejected.
	Err error
}

// Engine is the subset of *svs.Engine the adapter drives.
type Engine interface {
	Self() name.Name
	Start(ctx context.Context) error
	Stop()
	Produce(ctx context.Context, content []byte) (uint64, error)
	ProduceReserved(content []byte) error
	Reannounce(ctx context.Context) error
	Seq(node name.Name) uint64
	DataName(node name.Name, seq uint64) name.Name
}

type Verifier interface {
	Verify(p *packet.Packet) error
}

type Config struct {
	Engine   Engine
	Verifier Verifier
	// Cache receives every verified inbound packet.
	Cache  storage.Store
	Logger zerolog.Logger
}

var (
	ErrDisconnected = errors.New("adapter: disconnected")
	// ErrNotConnected is returned by Send before Connect has published the
	// identity packet.
	ErrNotConnected = errors.New("adapter: not connected")
	// ErrMisplacedPacket marks a packet delivered for a name it does not carry.
	ErrMisplacedPacket = errors.New("adapter: packet does not match its sequence slot")
)

type Adapter struct {
	engine   Engine
	verifier Verifier
	cache    storage.Store
	log      zerolog.Logger

	events chan Event
	inbox  *transport.Inbox
	done   chan struct{}

	mu           sync.Mutex
	peerID       string
	disconnected bool
}

func New(cfg Config) (*Adapter, error) {
	if cfg.Engine == nil || cfg.Verifier == nil || cfg.Cache == nil {
		return nil, errors.New("adapter: engine, verifier and cache are required")
	}
	return &Adapter{
		engine:   cfg.Engine,
		verifier: cfg.Verifier,
		cache:    cfg.Cache,
		log:      cfg.Logger.With().Str("component", "adapter").Logger(),
		events:   make(chan Event),
		inbox:    transport.NewInbox(),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the event stream. It is closed by Disconnect.
func (a *Adapter) Events() <-chan Event { return a.events }

// Start registers the packet responder, stores the announce-only packet and
// then emits EventReady.
func (a *Adapter) Start(ctx context.Context) error {
	if a.isDisconnected() {
		return ErrDisconnected
	}
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	if err := a.engine.ProduceReserved(nil); err != nil {
		return err
	}
	a.emit(Event{Kind: EventReady, Origin: a.engine.Self()})
	return nil
}

// Connect records this replica's peer id and announces it. The first call
// publishes the id as the identity packet; later calls re-announce.
func (a *Adapter) Connect(ctx context.Context, peerID string) error {
	if a.isDisconnected() {
		return ErrDisconnected
	}
	if peerID == "" {
		return errors.New("adapter: empty peer id")
	}
	a.mu.Lock()
	a.peerID = peerID
	a.mu.Unlock()

	if a.engine.Seq(a.engine.Self()) >= svs.IdentitySeq {
		return a.engine.Reannounce(ctx)
	}
	seq, err := a.engine.Produce(ctx, []byte(peerID))
	if err != nil {
		return err
	}
	a.log.Debug().Str("peer_id", peerID).Uint64("seq", seq).Msg("connected")
	return nil
}

// PeerID returns the id given to Connect.
func (a *Adapter) PeerID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peerID
}

// Send publishes m as the next sequence number. The identity slot must
// already be taken, so Send fails with ErrNotConnected before Connect.
func (a *Adapter) Send(ctx context.Context, m *Message) error {
	if a.isDisconnected() {
		return ErrDisconnected
	}
	b, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	if a.engine.Seq(a.engine.Self()) < svs.IdentitySeq {
		return ErrNotConnected
	}
	seq, err := a.engine.Produce(ctx, b)
	if err != nil {
		return err
	}
	a.log.Debug().
		Str("type", m.Type).
		Str("target", m.TargetID).
		Uint64("seq", seq).
		Msg("sent")
	return nil
}

// Disconnect stops syncing and closes the event stream. Events not yet
// consumed are discarded.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.disconnected {
		a.mu.Unlock()
		return
	}
	a.disconnected = true
	a.mu.Unlock()

	a.engine.Stop()
	close(a.done)
	a.inbox.Close()
	close(a.events)
	a.log.Debug().Msg("disconnected")
}

// HandleDelivery processes one packet fetched by the sync engine. It returns
// an error only when the packet is not authentic for its slot; a verified
// packet with an undecodable payload is still accepted.
func (a *Adapter) HandleDelivery(d svs.Delivery) error {
	p := d.Packet
	if want := a.engine.DataName(d.Peer, d.Seq); !p.Name.Equal(want) {
		err := fmt.Errorf("%w: got %s, want %s", ErrMisplacedPacket, p.Name, want)
		a.log.Warn().Err(err).Msg("dropping misplaced packet")
		a.emit(Event{Kind: EventRejected, Origin: d.Peer, Seq: d.Seq, Err: err})
		return err
	}
	if err := a.verifier.Verify(p); err != nil {
		a.log.Warn().Err(err).Str("name", p.Name.String()).Msg("dropping unverified packet")
		a.emit(Event{Kind: EventRejected, Origin: d.Peer, Seq: d.Seq, Err: err})
		return err
	}
	if err := a.cache.Put(p); err != nil {
		a.log.Warn().Err(err).Str("name", p.Name.String()).Msg("cannot cache packet")
	}

	if d.Reserved {
		peerID := string(p.Content)
		if peerID == "" || !utf8.ValidString(peerID) {
			err := fmt.Errorf("%w: identity packet does not hold a peer id", ErrMalformedMessage)
			a.log.Warn().Err(err).Str("name", p.Name.String()).Msg("dropping identity packet")
			a.emit(Event{Kind: EventRejected, Origin: d.Peer, Seq: d.Seq, Err: err})
			return nil
		}
		a.log.Debug().Str("peer_id", peerID).Str("origin", d.Peer.String()).Msg("peer candidate")
		a.emit(Event{Kind: EventPeerCandidate, Origin: d.Peer, Seq: d.Seq, PeerID: peerID})
		return nil
	}
	if len(p.Content) == 0 {
		return nil
	}

	m, err := DecodeMessage(p.Content)
	if err != nil {
		a.log.Warn().Err(err).Str("name", p.Name.String()).Msg("dropping invalid message")
		a.emit(Event{Kind: EventRejected, Origin: d.Peer, Seq: d.Seq, Err: err})
		return nil
	}
	a.log.Debug().Str("name", p.Name.String()).Str("type", m.Type).Msg("message received")
	a.emit(Event{Kind: EventMessage, Origin: d.Peer, Seq: d.Seq, Message: m})
	return nil
}

// emit queues ev for the single dispatch goroutine; it never blocks the caller.
func (a *Adapter) emit(ev Event) {
	a.inbox.Push(func() {
		select {
		case a.events <- ev:
		case <-a.done:
		}
	})
}

func (a *Adapter) isDisconnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disconnected
}
