// Package keys provides the key material used by a replica.
//
// A replica starts from a random 32-byte root seed. Every other secret is
// derived from it with HKDF-SHA256 under a fixed label: the peer id, the
// Ed25519 signing seed and, optionally, a Dilithium3 key pair. Nothing here
// touches the filesystem; the seed lives for the process lifetime only.
//
// Signers implement packet.Signer:
//   - Ed25519 signs sha256(message).
//   - Dilithium3 (post-quantum) signs sha3-256(message).
package keys
