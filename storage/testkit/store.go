package testkit

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
)

// NewStore constructs a fresh, empty Store instance for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// Packet returns an unsigned packet for conformance runs.
func Packet(uri string, content string) *packet.Packet {
	return packet.New(name.MustParse(uri), []byte(content), 4*time.Second)
}

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := Packet("/node-1/sync/seq=1", "hello, packet store")

		if err := s.Put(want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(want.Name)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !got.Name.Equal(want.Name) {
			t.Fatalf("Get name mismatch: got %s want %s", got.Name, want.Name)
		}
		if !bytes.Equal(got.Wire(), want.Wire()) {
			t.Fatalf("Get wire mismatch")
		}
	})

	t.Run("RefetchIsByteIdentical", func(t *testing.T) {
		s := newStore(t)
		p := Packet("/node-1/sync/seq=2", "same bytes")
		if err := s.Put(p); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		a, err := s.Get(p.Name)
		if err != nil {
			t.Fatalf("Get(1) failed: %v", err)
		}
		b, err := s.Get(p.Name)
		if err != nil {
			t.Fatalf("Get(2) failed: %v", err)
		}
		if !bytes.Equal(a.Wire(), b.Wire()) {
			t.Fatalf("re-fetch not byte-identical")
		}
	})

	t.Run("PutOverwritesByName", func(t *testing.T) {
		s := newStore(t)
		first := Packet("/node-1/sync/seq=3", "first")
		second := Packet("/node-1/sync/seq=3", "second")
		if err := s.Put(first); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := s.Put(second); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		got, err := s.Get(first.Name)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Content) != "second" {
			t.Fatalf("expected overwrite, got %q", got.Content)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		p := Packet("/node-1/sync/seq=4", "missing")

		if s.Has(p.Name) {
			t.Fatalf("Has returned true for missing name")
		}
		if _, err := s.Get(p.Name); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if err := s.Put(p); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(p.Name) {
			t.Fatalf("Has returned false after Put")
		}
		if s.Has(p.Name.Prefix(-1)) {
			t.Fatalf("Has must match exact names, not prefixes")
		}
	})

	t.Run("RejectEmptyName", func(t *testing.T) {
		s := newStore(t)
		if s.Has(nil) {
			t.Fatalf("Has should be false for empty name")
		}
		if _, err := s.Get(nil); err == nil {
			t.Fatalf("Get should fail for empty name")
		}
		if err := s.Put(packet.New(nil, []byte("x"), 0)); err == nil {
			t.Fatalf("Put should fail for empty name")
		}
	})

	t.Run("ConcurrentPutGet", func(t *testing.T) {
		s := newStore(t)
		p := Packet("/node-1/sync/seq=5", "contended")
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = s.Put(p)
			}()
			go func() {
				defer wg.Done()
				_, _ = s.Get(p.Name)
			}()
		}
		wg.Wait()
		if !s.Has(p.Name) {
			t.Fatalf("expected packet after concurrent puts")
		}
	})
}
