package svs

import (
	"context"
	"sync"

	"github.com/ef-ds/deque"

	"xdao.co/aincraft/name"
)

// worker fetches one peer's pending ranges in order.
type worker struct {
	e    *Engine
	peer name.Name

	mu      sync.Mutex
	pending deque.Deque
	wake    chan struct{}
}

func newWorker(e *Engine, peer name.Name) *worker {
	return &worker{e: e, peer: peer, wake: make(chan struct{}, 1)}
}

func (w *worker) push(u Update) {
	w.mu.Lock()
	w.pending.PushBack(u)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) pop() (Update, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.pending.PopFront()
	if !ok {
		return Update{}, false
	}
	return v.(Update), true
}

func (w *worker) run(ctx context.Context) {
	defer w.e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			u, ok := w.pop()
			if !ok {
				break
			}
			w.fetchRange(ctx, u)
			if ctx.Err() != nil {
				return
			}
			if next, ok := w.e.settle(u); ok {
				w.push(next)
			}
		}
	}
}

// fetchRange fetches u.LoSeq through u.HiSeq in order.
func (w *worker) fetchRange(ctx context.Context, u Update) {
	for seq := u.LoSeq; ; seq++ {
		if ctx.Err() != nil {
			return
		}
		w.fetchOne(ctx, seq)
		if seq >= u.HiSeq {
			return
		}
	}
}

// fetchOne never blocks the range on failure: a missed packet is skipped.
func (w *worker) fetchOne(ctx context.Context, seq uint64) {
	p, err := w.e.fetch(ctx, w.peer, seq)
	if err != nil {
		if ctx.Err() == nil {
			w.e.log.Warn().Err(err).Str("peer", w.peer.String()).Uint64("seq", seq).Msg("skipping sequence number")
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	err = w.e.cfg.OnData(Delivery{
		Peer:     w.peer,
		Seq:      seq,
		Packet:   p,
		Reserved: seq == IdentitySeq,
	})
	if err != nil {
		w.e.log.Debug().Err(err).Str("peer", w.peer.String()).Uint64("seq", seq).Msg("packet not accepted")
		return
	}
	w.e.accept(w.peer, seq)
}
