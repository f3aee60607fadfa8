// Package grpcface carries the transport contract over gRPC. A Face serves its
// local handlers to remote peers through Server and reaches a fixed set of
// dialed peers for fetches and announcements.
package grpcface

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/transport"
)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

type peerConn struct {
	target string
	cc     *grpc.ClientConn
	client FaceClient
}

type Face struct {
	log   zerolog.Logger
	inbox *transport.Inbox
	mux   *transport.Mux

	mu    sync.RWMutex
	peers []*peerConn

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration

	closed atomic.Bool
}

var _ transport.Transport = (*Face)(nil)

func New(logger zerolog.Logger) *Face {
	inbox := transport.NewInbox()
	return &Face{
		log:   logger.With().Str("component", "grpcface").Logger(),
		inbox: inbox,
		mux:   transport.NewMux(inbox),
	}
}

// Server returns the gRPC service answering for this face.
func (f *Face) Server() *Server {
	return &Server{Mux: f.mux}
}

// Dial connects to a remote face and adds it to the peer set.
func (f *Face) Dial(target string, opts DialOptions) error {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return fmt.Errorf("grpcface: dial %s: %w", target, err)
	}
	f.AddConn(target, cc)
	return nil
}

// AddConn adds an established connection to the peer set. The face closes it
// on Close.
func (f *Face) AddConn(target string, cc *grpc.ClientConn) {
	f.mu.Lock()
	f.peers = append(f.peers, &peerConn{target: target, cc: cc, client: NewFaceClient(cc)})
	f.mu.Unlock()
	f.log.Info().Str("peer", target).Msg("peer added")
}

func (f *Face) Peers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.peers))
	for _, p := range f.peers {
		out = append(out, p.target)
	}
	return out
}

func (f *Face) snapshot() []*peerConn {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*peerConn(nil), f.peers...)
}

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

// Fetch asks each peer in turn and returns the first packet carrying exactly n.
func (f *Face) Fetch(ctx context.Context, n name.Name) (*packet.Packet, error) {
	if f.closed.Load() {
		return nil, transport.ErrClosed
	}
	var lastErr error = transport.ErrNoRoute
	for _, peer := range f.snapshot() {
		p, err := f.fetchFrom(ctx, peer, n)
		if err == nil {
			return p, nil
		}
		f.log.Debug().Err(err).Str("peer", peer.target).Str("name", n.String()).Msg("fetch miss")
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("grpcface: fetch %s: %w", n, lastErr)
}

func (f *Face) fetchFrom(ctx context.Context, peer *peerConn, n name.Name) (*packet.Packet, error) {
	ctx, cancel := f.rpcCtx(ctx)
	defer cancel()

	reply, err := peer.client.Fetch(ctx, wrapperspb.Bytes(n.Bytes()))
	if err != nil {
		return nil, mapRPC(err)
	}
	p, err := packet.Decode(reply.GetValue())
	if err != nil {
		return nil, err
	}
	if !p.Name.Equal(n) {
		return nil, storage.ErrNameMismatch
	}
	return p, nil
}

// Announce sends payload to every peer. Errors from individual peers are
// combined; peers that succeeded still received the announcement.
func (f *Face) Announce(ctx context.Context, group name.Name, payload []byte) error {
	if f.closed.Load() {
		return transport.ErrClosed
	}
	env := wrapperspb.Bytes(encodeEnvelope(group, payload))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, peer := range f.snapshot() {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx, cancel := f.rpcCtx(ctx)
			defer cancel()
			if _, err := peer.client.Announce(rctx, env); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("announce to %s: %w", peer.target, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return result.ErrorOrNil()
}

func (f *Face) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.inbox.Close()

	f.mu.Lock()
	peers := f.peers
	f.peers = nil
	f.mu.Unlock()

	var result *multierror.Error
	for _, p := range peers {
		if err := p.cc.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", p.target, err))
		}
	}
	return result.ErrorOrNil()
}

func (f *Face) rpcCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.Timeout)
}
