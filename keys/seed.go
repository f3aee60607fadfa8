package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// SeedSize is the size of root and derived seeds.
const SeedSize = ed25519.SeedSize

const kdfSalt = "xdao-aincraft-kdf-v1"

// Labels for the derived secrets of a replica.
const (
	LabelPeerID     = "peer-id"
	LabelEd25519    = "sign:ed25519"
	LabelDilithium3 = "sign:dilithium3"
)

// NewSeed reads a fresh root seed from r.
func NewSeed(r io.Reader) ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("keys: read seed: %w", err)
	}
	return seed, nil
}

// DeriveSeed deterministically derives a label-specific seed from a root seed.
func DeriveSeed(rootSeed []byte, label string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckLabel(label); err != nil {
		return nil, err
	}
	kdf := hkdf.New(sha256.New, rootSeed, []byte(kdfSalt), []byte(label))
	out := make([]byte, SeedSize)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("keys: kdf: %w", err)
	}
	return out, nil
}

// DerivePeerID returns the replica's peer id, "node-" followed by 8 hex digits.
func DerivePeerID(rootSeed []byte) (string, error) {
	b, err := DeriveSeed(rootSeed, LabelPeerID)
	if err != nil {
		return "", err
	}
	return "node-" + hex.EncodeToString(b[:4]), nil
}

// CheckLabel validates a derivation label.
func CheckLabel(label string) error {
	if label == "" {
		return errors.New("label cannot be empty")
	}
	for _, char := range label {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' || char == ':' {
			continue
		}
		return fmt.Errorf("invalid character %q in label", char)
	}
	return nil
}

// ParseSeedHex decodes a hex seed, optionally prefixed by "0x".
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}
