package storeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/aincraft/storage"
	_ "xdao.co/aincraft/storage/localfs"
	_ "xdao.co/aincraft/storage/memstore"
	"xdao.co/aincraft/storage/storeregistry"
	"xdao.co/aincraft/storage/testkit"
)

func TestConfig_Validate(t *testing.T) {
	require.Error(t, Config{}.Validate())
	require.Error(t, Config{Backends: []BackendConfig{{}}}.Validate())
	require.Error(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}}.Validate())
	require.Error(t, Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}}.Validate())
	require.NoError(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory", ID: "mirror"}}}.Validate())
	require.NoError(t, Memory().Validate())
}

func TestOpen_SingleBackend(t *testing.T) {
	s, closeFn, err := Memory().Open(storeregistry.UsageNode)
	require.NoError(t, err)
	defer closeFn()

	p := testkit.Packet("/node-1/sync/seq=1", "x")
	require.NoError(t, s.Put(p))
	require.True(t, s.Has(p.Name))
}

func TestOpen_Replicating(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		WritePolicy: "all",
		Backends: []BackendConfig{
			{Name: "memory"},
			{Name: "localfs", Config: map[string]string{"localfs-dir": dir}},
		},
	}
	s, closeFn, err := cfg.Open(storeregistry.UsageNode)
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, storage.ReplicatingStore{}, s)

	p := testkit.Packet("/node-1/sync/seq=2", "y")
	require.NoError(t, s.Put(p))

	// Both backends hold the packet.
	rs := s.(storage.ReplicatingStore)
	for _, b := range rs.Backends {
		require.True(t, b.Store.Has(p.Name), b.Name)
	}
}

func TestOpen_FirstPolicyFallsBack(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "memory", ID: "hot"}, {Name: "memory", ID: "cold"}}}
	s, _, err := cfg.Open(storeregistry.UsageNode)
	require.NoError(t, err)
	ms, ok := s.(storage.MultiStore)
	require.True(t, ok)

	p := testkit.Packet("/node-1/sync/seq=3", "z")
	require.NoError(t, ms.Stores[1].Put(p))
	got, err := s.Get(p.Name)
	require.NoError(t, err)
	require.Equal(t, "z", string(got.Content))
}

func TestLoadFile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backends":[{"name":"memory"}]}`), 0o600))
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Backends[0].Name)

	_, err = LoadFile("")
	require.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, _, err := Config{Backends: []BackendConfig{{Name: "nope"}}}.Open(storeregistry.UsageNode)
	require.Error(t, err)
}

func TestOpen_UnknownSetting(t *testing.T) {
	cfg := Single("memory", map[string]string{"localfs-dir": "/tmp"})
	_, _, err := cfg.Open(storeregistry.UsageNode)
	require.Error(t, err)

	_, _, err = Single("localfs", nil).Open(storeregistry.UsageNode)
	require.Error(t, err, "localfs needs a directory")
}

func TestRegistry_ListBackends(t *testing.T) {
	var names []string
	for _, b := range storeregistry.List(storeregistry.UsageTest) {
		names = append(names, b.Name)
	}
	require.Equal(t, []string{"localfs", "memory"}, names)
}
