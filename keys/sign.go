package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// SignEd25519SHA256 returns a signature over sha256(message).
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) []byte {
	digest := sha256.Sum256(message)
	return ed25519.Sign(privateKey, digest[:])
}

// VerifyEd25519SHA256 checks a signature produced by SignEd25519SHA256.
func VerifyEd25519SHA256(publicKey, message, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	digest := sha256.Sum256(message)
	return ed25519.Verify(ed25519.PublicKey(publicKey), digest[:], sig)
}

// SignDilithium3 returns a dilithium3 signature over sha3-256(message).
func SignDilithium3(message []byte, privateKey *mode3.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("missing private key")
	}
	digest, err := digestFor("sha3-256", message)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return sig, nil
}

// VerifyDilithium3 checks a signature produced by SignDilithium3.
func VerifyDilithium3(publicKey, message, sig []byte) (bool, error) {
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false, fmt.Errorf("invalid dilithium3 public key: %w", err)
	}
	if len(sig) != mode3.SignatureSize {
		return false, nil
	}
	digest, err := digestFor("sha3-256", message)
	if err != nil {
		return false, err
	}
	return mode3.Verify(&pk, digest, sig), nil
}

// Ed25519Signer signs packets under keyName.
type Ed25519Signer struct {
	keyName name.Name
	priv    ed25519.PrivateKey
}

var _ packet.Signer = (*Ed25519Signer)(nil)

// NewEd25519Signer builds a signer from an Ed25519 seed.
func NewEd25519Signer(keyName name.Name, seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if len(keyName) == 0 {
		return nil, fmt.Errorf("empty key name")
	}
	return &Ed25519Signer{keyName: keyName, priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) KeyName() name.Name      { return s.keyName }
func (s *Ed25519Signer) SigType() packet.SigType { return packet.SigEd25519 }

func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	return SignEd25519SHA256(message, s.priv), nil
}

// PublicKey returns the raw 32-byte public key.
func (s *Ed25519Signer) PublicKey() []byte {
	return []byte(s.priv.Public().(ed25519.PublicKey))
}

// Dilithium3Signer signs packets under keyName with a post-quantum key.
type Dilithium3Signer struct {
	keyName name.Name
	pub     *mode3.PublicKey
	priv    *mode3.PrivateKey
}

var _ packet.Signer = (*Dilithium3Signer)(nil)

// NewDilithium3Signer derives a Dilithium3 key pair deterministically from seed.
func NewDilithium3Signer(keyName name.Name, seed []byte) (*Dilithium3Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("dilithium3 seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if len(keyName) == 0 {
		return nil, fmt.Errorf("empty key name")
	}
	pub, priv, err := mode3.GenerateKey(bytes.NewReader(seed))
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{keyName: keyName, pub: pub, priv: priv}, nil
}

func (s *Dilithium3Signer) KeyName() name.Name      { return s.keyName }
func (s *Dilithium3Signer) SigType() packet.SigType { return packet.SigDilithium3 }

func (s *Dilithium3Signer) Sign(message []byte) ([]byte, error) {
	return SignDilithium3(message, s.priv)
}

// PublicKey returns the packed public key.
func (s *Dilithium3Signer) PublicKey() []byte {
	b, _ := s.pub.MarshalBinary()
	return b
}
