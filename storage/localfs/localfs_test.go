package localfs

import (
	"os"
	"path/filepath"
	"testing"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestLocalFS_DetectsCorruption(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := testkit.Packet("/node-1/sync/seq=1", "original")
	if err := s.Put(orig); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Replace the stored object out-of-band with a packet of another name.
	path, err := s.pathFor(orig.Name)
	if err != nil {
		t.Fatalf("pathFor failed: %v", err)
	}
	other := testkit.Packet("/node-2/sync/seq=1", "other")
	if err := os.WriteFile(path, other.Wire(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := s.Get(orig.Name); err != storage.ErrNameMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrNameMismatch)
	}

	// Garbage must not decode.
	if err := os.WriteFile(path, []byte{0xff, 0xff}, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := s.Get(orig.Name); err == nil {
		t.Fatalf("expected decode error for corrupted file")
	}
}

func TestLocalFS_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	n := name.MustParse("/node-1/sync/seq=9")
	for i := 0; i < 3; i++ {
		if err := s.Put(testkit.Packet(n.String(), "v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	path, _ := s.pathFor(n)
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
}
