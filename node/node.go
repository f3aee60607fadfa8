// Package node assembles one sync replica: its identity and trust store, its
// packet store, the sync engine, the network adapter and a local scene.
// Nodes share no package-level state, so several can run in one process.
package node

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"xdao.co/aincraft/adapter"
	"xdao.co/aincraft/config"
	"xdao.co/aincraft/keys"
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/patch"
	"xdao.co/aincraft/scene"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/storage/bundle"
	"xdao.co/aincraft/storage/storeregistry"
	"xdao.co/aincraft/svs"
	"xdao.co/aincraft/transport"
	"xdao.co/aincraft/trust"

	_ "xdao.co/aincraft/storage/localfs"
	_ "xdao.co/aincraft/storage/memstore"
)

type Node struct {
	PeerID string
	// Name is the node's base name, /<PeerID>.
	Name name.Name

	Trust   *trust.Store
	Store   storage.Store
	Engine  *svs.Engine
	Adapter *adapter.Adapter

	Scene   *scene.Tree
	Patches *patch.Translator

	log        zerolog.Logger
	closeStore func() error
}

// New builds a node with a fresh random seed.
func New(cfg config.Config, t transport.Transport, logger zerolog.Logger) (*Node, error) {
	seed, err := keys.NewSeed(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewWithSeed(cfg, seed, t, logger)
}

// NewWithSeed builds a node whose peer id and keys derive from seed.
func NewWithSeed(cfg config.Config, seed []byte, t transport.Transport, logger zerolog.Logger) (*Node, error) {
	if t == nil {
		return nil, errors.New("node: missing transport")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alg, _ := cfg.SigType()
	prefix, _ := cfg.Prefix()

	peerID, err := keys.DerivePeerID(seed)
	if err != nil {
		return nil, err
	}
	self := name.Name{name.Generic(peerID)}
	log := logger.With().Str("peer_id", peerID).Logger()

	ident, err := trust.NewSelfIdentity(self, seed, trust.IdentityOptions{
		Algorithm: alg,
		KeyID:     cfg.KeyID,
		Validity:  cfg.CertValidity.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("node: identity: %w", err)
	}
	ts := trust.NewStore(ident, log)
	for i, c := range cfg.TrustedCerts {
		if _, err := ts.ImportPeerCertificateBase64(c); err != nil {
			return nil, fmt.Errorf("node: trusted certificate %d: %w", i, err)
		}
	}

	store, closeStore, err := cfg.Storage.Open(storeregistry.UsageNode)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}
	if closeStore == nil {
		closeStore = func() error { return nil }
	}

	n := &Node{
		PeerID:     peerID,
		Name:       self,
		Trust:      ts,
		Store:      store,
		Scene:      scene.NewTree(),
		log:        log.With().Str("component", "node").Logger(),
		closeStore: closeStore,
	}
	n.Patches = patch.NewTranslator(n.Scene, log)
	if err := scene.Render(scene.DefaultDocument(), n.Scene); err != nil {
		_ = closeStore()
		return nil, err
	}

	signer, _ := ts.SelfIdentity()
	n.Engine, err = svs.New(svs.Config{
		Self:             self,
		SyncPrefix:       prefix,
		Freshness:        cfg.Freshness.Std(),
		Signer:           signer,
		Store:            store,
		Transport:        t,
		Logger:           log,
		AnnounceInterval: cfg.AnnounceInterval.Std(),
		OnData:           n.deliver,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	n.Adapter, err = adapter.New(adapter.Config{
		Engine:   n.Engine,
		Verifier: ts,
		Cache:    store,
		Logger:   log,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return n, nil
}

func (n *Node) deliver(d svs.Delivery) error {
	return n.Adapter.HandleDelivery(d)
}

// Start starts syncing and connects the adapter under the node's own peer id.
func (n *Node) Start(ctx context.Context) error {
	if err := n.Adapter.Start(ctx); err != nil {
		return err
	}
	if err := n.Adapter.Connect(ctx, n.PeerID); err != nil {
		return err
	}
	_, cert := n.Trust.SelfIdentity()
	n.log.Info().
		Str("name", n.Name.String()).
		Str("key", cert.KeyName().String()).
		Msg("node started")
	return nil
}

// Close disconnects the adapter and closes the packet store.
func (n *Node) Close() error {
	n.Adapter.Disconnect()
	return n.closeStore()
}

// ExportBundle writes every packet this node holds for its state vector.
func (n *Node) ExportBundle(w io.Writer) error {
	return bundle.Export(w, n.Store, n.Engine.Names(), bundle.ExportOptions{
		IncludeIndex: true,
		SkipMissing:  true,
	})
}

// ImportBundle stores the verified packets of a bundle. They are delivered
// from the store once their sequence numbers are announced.
func (n *Node) ImportBundle(r io.Reader) (bundle.Result, error) {
	res, err := bundle.ImportWithOptions(r, n.Store, bundle.ImportOptions{Verify: n.Trust.Verify})
	if err != nil {
		return res, err
	}
	n.log.Info().Int("imported", res.Imported).Int("rejected", res.Rejected).Msg("bundle imported")
	return res, nil
}
