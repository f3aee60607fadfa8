// Package svs implements state-vector sync: each node numbers the packets it
// produces, periodically broadcasts the highest number it knows for every
// node, and pulls whatever range it is missing by name.
//
// Two sequence numbers are reserved. Seq 0 holds an announce-only packet that
// is stored and served but never fetched by peers. Seq 1 carries the node's
// peer identity and is delivered to the consumer flagged as Reserved.
//
// Announcements are not signed, so a peer's vector entry only moves when one
// of its packets has been fetched and accepted by the consumer.
package svs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/transport"
)

const (
	ReservedSeq uint64 = 0
	IdentitySeq uint64 = 1

	DefaultFreshness = 60 * time.Second

	DefaultMaxUpdateSpan uint64 = 256
)

// DefaultSyncPrefix is both the announcement group and the name segment
// between a node's base name and its sequence numbers.
var DefaultSyncPrefix = name.MustParse("/aincraft/sync")

var (
	ErrFetchFailed = errors.New("svs: fetch failed")
	ErrStopped     = errors.New("svs: engine stopped")
)

// Update is a range of sequence numbers a peer has announced but this node
// has not fetched yet.
type Update struct {
	Peer  name.Name
	LoSeq uint64
	HiSeq uint64

	// target is the announced high-water mark when HiSeq was capped below it.
	target uint64
}

// Delivery is one fetched packet handed to the consumer.
type Delivery struct {
	Peer     name.Name
	Seq      uint64
	Packet   *packet.Packet
	Reserved bool
}

type Config struct {
	// Self is this node's base name.
	Self       name.Name
	SyncPrefix name.Name
	// Freshness is stamped on every produced packet.
	Freshness time.Duration
	Signer    packet.Signer
	Store     storage.Store
	Transport transport.Transport
	Logger    zerolog.Logger
	// AnnounceInterval re-broadcasts the vector periodically. Zero disables it.
	AnnounceInterval time.Duration
	// MaxUpdateSpan bounds how many sequence numbers one update schedules.
	// The remainder is scheduled once the range has been accepted.
	MaxUpdateSpan uint64
	// OnData is called for each fetched packet. Calls for one peer are
	// serialized and in sequence order; different peers run concurrently.
	// A nil return accepts the packet and advances the peer's entry.
	OnData func(Delivery) error
}

type Engine struct {
	cfg Config
	log zerolog.Logger

	produceMu sync.Mutex

	mu      sync.Mutex
	vector  *StateVector
	workers map[string]*worker
	unregs  []func()
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	kick    chan struct{}
	wg      sync.WaitGroup

	// requested is the highest seq scheduled per peer, guarded by mu.
	requested map[string]uint64
}

func New(cfg Config) (*Engine, error) {
	if len(cfg.Self) == 0 {
		return nil, errors.New("svs: missing node name")
	}
	if cfg.Signer == nil {
		return nil, errors.New("svs: missing signer")
	}
	if cfg.Store == nil {
		return nil, errors.New("svs: missing packet store")
	}
	if cfg.Transport == nil {
		return nil, errors.New("svs: missing transport")
	}
	if len(cfg.SyncPrefix) == 0 {
		cfg.SyncPrefix = DefaultSyncPrefix
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.MaxUpdateSpan == 0 {
		cfg.MaxUpdateSpan = DefaultMaxUpdateSpan
	}
	if cfg.OnData == nil {
		cfg.OnData = func(Delivery) error { return nil }
	}
	e := &Engine{
		cfg: cfg,
		log: cfg.Logger.With().
			Str("component", "svs").
			Str("node", cfg.Self.String()).
			Logger(),
		vector:    NewStateVector(),
		requested: make(map[string]uint64),
		workers:   make(map[string]*worker),
		kick:      make(chan struct{}, 1),
	}
	e.vector.Advance(cfg.Self, 0)
	return e, nil
}

// Self returns this node's base name.
func (e *Engine) Self() name.Name { return e.cfg.Self }

// DataPrefix returns the prefix under which node publishes its packets.
func (e *Engine) DataPrefix(node name.Name) name.Name {
	return node.Append(e.cfg.SyncPrefix...)
}

// DataName returns the name of node's packet number seq.
func (e *Engine) DataName(node name.Name, seq uint64) name.Name {
	return e.DataPrefix(node).Append(name.SequenceNum(seq))
}

// Seq returns the highest sequence number known for node: its own
// production for this node, the highest accepted packet for a peer.
func (e *Engine) Seq(node name.Name) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vector.Get(node)
}

// Vector returns a snapshot of the state vector.
func (e *Engine) Vector() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vector.Entries()
}

// Names lists the data name of every sequence number in the vector: from
// ReservedSeq for this node and from IdentitySeq for peers. Announced packets
// that were never fetched are included.
func (e *Engine) Names() []name.Name {
	var out []name.Name
	for _, en := range e.Vector() {
		lo := IdentitySeq
		if en.Node.Equal(e.cfg.Self) {
			lo = ReservedSeq
		}
		for seq := lo; seq <= en.Seq; seq++ {
			out = append(out, e.DataName(en.Node, seq))
		}
	}
	return out
}

// Start makes this node's packets fetchable, then begins listening for
// announcements. Nothing is fetched or re-announced before Start.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return nil
	}

	unserve, err := e.cfg.Transport.Serve(e.DataPrefix(e.cfg.Self), e.serveLocal)
	if err != nil {
		return fmt.Errorf("svs: serve %s: %w", e.DataPrefix(e.cfg.Self), err)
	}
	unsub, err := e.cfg.Transport.Subscribe(e.cfg.SyncPrefix, e.handleAnnouncement)
	if err != nil {
		unserve()
		return fmt.Errorf("svs: subscribe %s: %w", e.cfg.SyncPrefix, err)
	}
	e.unregs = append(e.unregs, unserve, unsub)
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true

	e.wg.Add(1)
	go e.announceLoop()
	e.log.Info().Str("prefix", e.DataPrefix(e.cfg.Self).String()).Msg("sync started")
	return nil
}

// Stop cancels all fetch loops and waits for them to exit. Fetches in flight
// fail and their results are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	unregs := e.unregs
	e.unregs = nil
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	for _, u := range unregs {
		u()
	}
	e.wg.Wait()
	e.log.Info().Msg("sync stopped")
}

// Produce publishes content as this node's next sequence number and
// announces it. A failed broadcast is logged; the packet stays fetchable and
// is covered by the next announcement.
func (e *Engine) Produce(ctx context.Context, content []byte) (uint64, error) {
	e.produceMu.Lock()
	defer e.produceMu.Unlock()

	seq := e.Seq(e.cfg.Self) + 1
	if err := e.publish(seq, content); err != nil {
		return 0, err
	}
	if err := e.Announce(ctx, seq); err != nil {
		e.log.Warn().Err(err).Uint64("seq", seq).Msg("announcement failed")
	}
	return seq, nil
}

// ProduceReserved stores content at ReservedSeq without advancing the vector.
func (e *Engine) ProduceReserved(content []byte) error {
	e.produceMu.Lock()
	defer e.produceMu.Unlock()
	return e.publish(ReservedSeq, content)
}

func (e *Engine) publish(seq uint64, content []byte) error {
	p := packet.New(e.DataName(e.cfg.Self, seq), content, e.cfg.Freshness)
	if err := p.Sign(e.cfg.Signer); err != nil {
		return err
	}
	if err := e.cfg.Store.Put(p); err != nil {
		return fmt.Errorf("svs: store %s: %w", p.Name, err)
	}
	e.log.Debug().Uint64("seq", seq).Int("bytes", len(content)).Msg("produced")
	return nil
}

// Announce raises this node's entry to newSeq and broadcasts the vector.
// A lower newSeq never moves the entry back.
func (e *Engine) Announce(ctx context.Context, newSeq uint64) error {
	e.mu.Lock()
	e.vector.Advance(e.cfg.Self, newSeq)
	payload := e.vector.Encode()
	e.mu.Unlock()
	return e.cfg.Transport.Announce(ctx, e.cfg.SyncPrefix, payload)
}

// Reannounce broadcasts the current vector unchanged.
func (e *Engine) Reannounce(ctx context.Context) error {
	e.mu.Lock()
	payload := e.vector.Encode()
	e.mu.Unlock()
	return e.cfg.Transport.Announce(ctx, e.cfg.SyncPrefix, payload)
}

// OnRemoteVectorUpdate notes that peer claims to be at hi and returns the
// range still to fetch. Seq 0 always counts as seen, so ranges start at 1 or
// later. Ranges are capped at MaxUpdateSpan numbers. The peer's entry is left
// alone until its packets are accepted.
func (e *Engine) OnRemoteVectorUpdate(peer name.Name, hi uint64) (Update, bool) {
	if peer.Equal(e.cfg.Self) {
		return Update{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := peer.String()
	from := e.vector.Get(peer)
	if r := e.requested[key]; r > from {
		from = r
	}
	if hi <= from {
		return Update{}, false
	}
	u := Update{Peer: peer, LoSeq: from + 1, HiSeq: hi}
	if hi-from > e.cfg.MaxUpdateSpan {
		u.HiSeq = from + e.cfg.MaxUpdateSpan
		u.target = hi
	}
	e.requested[key] = u.HiSeq
	return u, true
}

// accept advances peer's entry to seq.
func (e *Engine) accept(peer name.Name, seq uint64) {
	e.mu.Lock()
	e.vector.Advance(peer, seq)
	e.mu.Unlock()
}

// settle runs after u has been worked through. If nothing newer was scheduled
// and the tail of u was not accepted, the tail is released so that a later
// announcement can schedule it again. A capped update whose range was fully
// accepted yields the next range toward its target.
func (e *Engine) settle(u Update) (Update, bool) {
	e.mu.Lock()
	key := u.Peer.String()
	got := e.vector.Get(u.Peer)
	if e.requested[key] == u.HiSeq && got < u.HiSeq {
		e.requested[key] = got
	}
	e.mu.Unlock()
	if u.target > u.HiSeq && got >= u.HiSeq {
		return e.OnRemoteVectorUpdate(u.Peer, u.target)
	}
	return Update{}, false
}

func (e *Engine) handleAnnouncement(payload []byte) {
	remote, err := DecodeStateVector(payload)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropping announcement")
		return
	}
	for _, entry := range remote.Entries() {
		if u, ok := e.OnRemoteVectorUpdate(entry.Node, entry.Seq); ok {
			e.log.Debug().
				Str("peer", u.Peer.String()).
				Uint64("lo", u.LoSeq).
				Uint64("hi", u.HiSeq).
				Msg("sync update")
			e.enqueue(u)
		}
	}

	e.mu.Lock()
	outdated := e.vector.Newer(remote)
	e.mu.Unlock()
	if outdated {
		select {
		case e.kick <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) enqueue(u Update) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return
	}
	key := u.Peer.String()
	w, ok := e.workers[key]
	if !ok {
		w = newWorker(e, u.Peer)
		e.workers[key] = w
		// Serve cached copies of this peer's packets to others.
		if unserve, err := e.cfg.Transport.Serve(e.DataPrefix(u.Peer), e.serveLocal); err == nil {
			e.unregs = append(e.unregs, unserve)
		}
		e.wg.Add(1)
		go w.run(e.ctx)
	}
	w.push(u)
}

// fetch returns seq from the local store or, failing that, the network. The
// packet must carry exactly the requested name.
func (e *Engine) fetch(ctx context.Context, peer name.Name, seq uint64) (*packet.Packet, error) {
	n := e.DataName(peer, seq)
	p, err := e.cfg.Store.Get(n)
	if err != nil {
		p, err = e.cfg.Transport.Fetch(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, n, err)
		}
	}
	if !p.Name.Equal(n) {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, n, storage.ErrNameMismatch)
	}
	return p, nil
}

func (e *Engine) serveLocal(_ context.Context, n name.Name) (*packet.Packet, error) {
	return e.cfg.Store.Get(n)
}

func (e *Engine) announceLoop() {
	defer e.wg.Done()
	var tick <-chan time.Time
	if e.cfg.AnnounceInterval > 0 {
		t := time.NewTicker(e.cfg.AnnounceInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-tick:
		case <-e.kick:
		}
		if err := e.Reannounce(e.ctx); err != nil && e.ctx.Err() == nil {
			e.log.Debug().Err(err).Msg("re-announcement failed")
		}
	}
}
