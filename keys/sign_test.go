package keys

import (
	"testing"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

func testSeed(b byte) []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = b + byte(i)
	}
	return seed
}

func TestEd25519Signer_Verifies(t *testing.T) {
	s, err := NewEd25519Signer(name.MustParse("/node-1/KEY/1"), testSeed(0))
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	if s.SigType() != packet.SigEd25519 {
		t.Fatalf("unexpected sig type %s", s.SigType())
	}

	msg := []byte("hello")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !VerifyEd25519SHA256(s.PublicKey(), msg, sig) {
		t.Fatalf("signature did not verify")
	}
	if VerifyEd25519SHA256(s.PublicKey(), []byte("hellO"), sig) {
		t.Fatalf("signature verified over altered message")
	}
}

func TestEd25519Signer_RejectsBadSeed(t *testing.T) {
	if _, err := NewEd25519Signer(name.MustParse("/k"), []byte("short")); err == nil {
		t.Fatalf("expected error for short seed")
	}
	if _, err := NewEd25519Signer(nil, testSeed(0)); err == nil {
		t.Fatalf("expected error for empty key name")
	}
}

func TestDilithium3Signer_Verifies(t *testing.T) {
	s, err := NewDilithium3Signer(name.MustParse("/node-1/KEY/pq"), testSeed(7))
	if err != nil {
		t.Fatalf("NewDilithium3Signer: %v", err)
	}
	msg := []byte("hello")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := VerifyDilithium3(s.PublicKey(), msg, sig)
	if err != nil {
		t.Fatalf("VerifyDilithium3: %v", err)
	}
	if !ok {
		t.Fatalf("signature did not verify")
	}
	ok, err = VerifyDilithium3(s.PublicKey(), []byte("other"), sig)
	if err != nil || ok {
		t.Fatalf("expected verification failure, got ok=%v err=%v", ok, err)
	}
}

func TestDilithium3Signer_Deterministic(t *testing.T) {
	a, err := NewDilithium3Signer(name.MustParse("/k"), testSeed(1))
	if err != nil {
		t.Fatalf("NewDilithium3Signer: %v", err)
	}
	b, err := NewDilithium3Signer(name.MustParse("/k"), testSeed(1))
	if err != nil {
		t.Fatalf("NewDilithium3Signer: %v", err)
	}
	if string(a.PublicKey()) != string(b.PublicKey()) {
		t.Fatalf("expected same public key from same seed")
	}
}
