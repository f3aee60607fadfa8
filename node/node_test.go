package node

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"xdao.co/aincraft/adapter"
	"xdao.co/aincraft/config"
	"xdao.co/aincraft/patch"
	"xdao.co/aincraft/storage/storeconfig"
	"xdao.co/aincraft/transport/memnet"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.AnnounceInterval = 0
	return cfg
}

func newTestNode(t *testing.T, nw *memnet.Network, faceID string, seedByte byte, cfg config.Config) *Node {
	t.Helper()
	face, err := nw.NewFace(faceID)
	require.NoError(t, err)
	n, err := NewWithSeed(cfg, bytes.Repeat([]byte{seedByte}, 32), face, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, n.Close())
		_ = face.Close()
	})
	return n
}

// waitFor drains events until one of kind arrives.
func waitFor(t *testing.T, n *Node, kind adapter.EventKind) adapter.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-n.Adapter.Events():
			require.True(t, ok, "event stream closed")
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestNode_IdentityIsDerivedFromSeed(t *testing.T) {
	nw := memnet.New()
	a := newTestNode(t, nw, "a", 1, testConfig())
	require.Regexp(t, `^node-[0-9a-f]{8}$`, a.PeerID)
	require.Equal(t, "/"+a.PeerID, a.Name.String())
	require.Equal(t, a.Name, a.Engine.Self())

	_, cert := a.Trust.SelfIdentity()
	require.Equal(t, a.Name, cert.Identity())

	// The default scene is rendered at construction.
	_, ok := a.Scene.Node("cursor")
	require.True(t, ok)
}

func TestNode_SyncOverMemnet(t *testing.T) {
	nw := memnet.New()
	a := newTestNode(t, nw, "a", 1, testConfig())
	b := newTestNode(t, nw, "b", 2, testConfig())
	_, err := a.Trust.ImportPeerCertificateBase64(b.Trust.ExportSelfCertificateBase64())
	require.NoError(t, err)
	_, err = b.Trust.ImportPeerCertificateBase64(a.Trust.ExportSelfCertificateBase64())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	ev := waitFor(t, b, adapter.EventPeerCandidate)
	require.Equal(t, a.PeerID, ev.PeerID)
	ev = waitFor(t, a, adapter.EventPeerCandidate)
	require.Equal(t, b.PeerID, ev.PeerID)

	msg := &adapter.Message{
		Type:       adapter.TypeSync,
		SenderID:   a.PeerID,
		TargetID:   b.PeerID,
		DocumentID: "scene",
		Data:       []byte{0x85, 0x6f, 0x4a, 0x83},
	}
	require.NoError(t, a.Adapter.Send(ctx, msg))
	ev = waitFor(t, b, adapter.EventMessage)
	require.Equal(t, msg, ev.Message)
	require.Equal(t, a.Name, ev.Origin)
}

func TestNode_AppliesPatchesToScene(t *testing.T) {
	nw := memnet.New()
	a := newTestNode(t, nw, "a", 1, testConfig())

	ps, err := patch.DecodePatches([]byte(`[
		{"action":"put","path":["@children","box-1","position","x"],"value":1},
		{"action":"put","path":["@children","box-1"],"value":{}},
		{"action":"splice","path":["@children","box-1","mixin",0],"value":"voxel"}
	]`))
	require.NoError(t, err)
	require.NoError(t, a.Patches.Apply(ps))

	v, ok := a.Scene.Attribute("box-1", "mixin")
	require.True(t, ok)
	require.Equal(t, "voxel", v)
	v, _ = a.Scene.Attribute("box-1", "position")
	require.Equal(t, map[string]any{"x": 1.0}, v)
}

func TestNode_TrustedCertsFromConfig(t *testing.T) {
	nw := memnet.New()
	a := newTestNode(t, nw, "a", 1, testConfig())

	cfg := testConfig()
	cfg.TrustedCerts = []string{a.Trust.ExportSelfCertificateBase64()}
	b := newTestNode(t, nw, "b", 2, cfg)
	_, aCert := a.Trust.SelfIdentity()
	_, ok := b.Trust.Certificate(aCert.KeyName())
	require.True(t, ok)

	face, err := nw.NewFace("c")
	require.NoError(t, err)
	defer face.Close()
	cfg.TrustedCerts = []string{"bm90IGEgY2VydA=="}
	_, err = NewWithSeed(cfg, bytes.Repeat([]byte{3}, 32), face, zerolog.Nop())
	require.Error(t, err)
}

func TestNode_LocalFSStore(t *testing.T) {
	cfg := testConfig()
	cfg.Storage = storeconfig.Config{Backends: []storeconfig.BackendConfig{
		{Name: "localfs", Config: map[string]string{"localfs-dir": t.TempDir()}},
	}}
	nw := memnet.New()
	a := newTestNode(t, nw, "a", 1, cfg)
	require.NoError(t, a.Start(context.Background()))
	require.True(t, a.Store.Has(a.Engine.DataName(a.Name, 1)))
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New(testConfig(), nil, zerolog.Nop())
	require.Error(t, err)

	face, err := memnet.New().NewFace("x")
	require.NoError(t, err)
	defer face.Close()
	cfg := testConfig()
	cfg.Algorithm = "rsa"
	_, err = New(cfg, face, zerolog.Nop())
	require.Error(t, err)
}

func TestNode_BundleExportImport(t *testing.T) {
	nw := memnet.New()
	a := newTestNode(t, nw, "a", 1, testConfig())
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Adapter.Send(ctx, &adapter.Message{
		Type: adapter.TypeSync, SenderID: a.PeerID, TargetID: "x", DocumentID: "scene", Data: []byte{1},
	}))

	var buf bytes.Buffer
	require.NoError(t, a.ExportBundle(&buf))

	cfg := testConfig()
	cfg.TrustedCerts = []string{a.Trust.ExportSelfCertificateBase64()}
	b := newTestNode(t, nw, "b", 2, cfg)
	res, err := b.ImportBundle(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 3, res.Imported)
	require.True(t, b.Store.Has(a.Engine.DataName(a.Name, 2)))

	c := newTestNode(t, nw, "c", 3, testConfig())
	res, err = c.ImportBundle(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 0, res.Imported)
	require.Equal(t, 3, res.Rejected)
}
