package keys

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestDeriveSeed_Deterministic(t *testing.T) {
	root := testSeed(0)

	a, err := DeriveSeed(root, LabelEd25519)
	if err != nil {
		t.Fatalf("DeriveSeed: %v", err)
	}
	b, err := DeriveSeed(root, LabelEd25519)
	if err != nil {
		t.Fatalf("DeriveSeed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveSeed(root, LabelDilithium3)
	if err != nil {
		t.Fatalf("DeriveSeed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatalf("expected different labels to derive different seeds")
	}
}

func TestDeriveSeed_RejectsBadInput(t *testing.T) {
	if _, err := DeriveSeed([]byte("short"), LabelPeerID); err == nil {
		t.Fatalf("expected error for short root seed")
	}
	if _, err := DeriveSeed(testSeed(0), "bad label"); err == nil {
		t.Fatalf("expected error for invalid label")
	}
}

func TestDerivePeerID_Format(t *testing.T) {
	seed, err := NewSeed(rand.Reader)
	if err != nil {
		t.Fatalf("NewSeed: %v", err)
	}
	id, err := DerivePeerID(seed)
	if err != nil {
		t.Fatalf("DerivePeerID: %v", err)
	}
	if !strings.HasPrefix(id, "node-") || len(id) != len("node-")+8 {
		t.Fatalf("unexpected peer id %q", id)
	}
	again, _ := DerivePeerID(seed)
	if again != id {
		t.Fatalf("peer id not stable: %q vs %q", id, again)
	}
}

func TestParseSeedHex_Valid(t *testing.T) {
	seed, err := ParseSeedHex("0x" + strings.Repeat("ab", SeedSize))
	if err != nil {
		t.Fatalf("ParseSeedHex: %v", err)
	}
	if len(seed) != SeedSize || seed[0] != 0xab {
		t.Fatalf("unexpected seed %x", seed)
	}
	if _, err := ParseSeedHex("abcd"); err == nil {
		t.Fatalf("expected length error")
	}
}
