// Package packet defines the signed, immutable unit of replication.
//
// A Packet is created once, signed once and never mutated afterwards. It is
// identified by its Name. The binary encoding is deterministic so that a
// packet fetched twice by name is byte-identical, and so that the signed
// portion can be recomputed from the decoded fields.
package packet

import (
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/aincraft/cidutil"
	"xdao.co/aincraft/name"
)

// SigType identifies the signature algorithm.
type SigType uint8

const (
	SigNone       SigType = 0
	SigEd25519    SigType = 5
	SigDilithium3 SigType = 200
)

func (t SigType) String() string {
	switch t {
	case SigNone:
		return "none"
	case SigEd25519:
		return "ed25519"
	case SigDilithium3:
		return "dilithium3"
	default:
		return fmt.Sprintf("sigtype(%d)", uint8(t))
	}
}

var (
	ErrMalformed = errors.New("packet: malformed")
	ErrNoSigner  = errors.New("packet: missing signer")
)

// ValidityPeriod bounds the time during which a signing key is considered valid.
type ValidityPeriod struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// Contains reports whether t falls in [NotBefore, NotAfter].
func (v ValidityPeriod) Contains(t time.Time) bool {
	return !t.Before(v.NotBefore) && !t.After(v.NotAfter)
}

// SigInfo describes how a packet was signed.
type SigInfo struct {
	Type       SigType
	KeyLocator name.Name
	Validity   *ValidityPeriod
}

// Signer produces signatures for packets under a named key.
type Signer interface {
	KeyName() name.Name
	SigType() SigType
	Sign(message []byte) ([]byte, error)
}

// Packet is a named, signed payload.
type Packet struct {
	Name name.Name
	// Freshness is advisory; transports may use it as a fetch deadline.
	Freshness time.Duration
	Content   []byte
	SigInfo   *SigInfo
	SigValue  []byte

	wire []byte
}

// New returns an unsigned packet.
func New(n name.Name, content []byte, freshness time.Duration) *Packet {
	return &Packet{Name: n, Freshness: freshness, Content: content}
}

// Sign fills SigInfo from s and signs the packet. A validity period already
// present on SigInfo is kept. After Sign returns the packet must not be modified.
func (p *Packet) Sign(s Signer) error {
	if s == nil {
		return ErrNoSigner
	}
	info := &SigInfo{Type: s.SigType(), KeyLocator: s.KeyName()}
	if p.SigInfo != nil {
		info.Validity = p.SigInfo.Validity
	}
	p.SigInfo = info
	sig, err := s.Sign(p.SignedPortion())
	if err != nil {
		return fmt.Errorf("packet: sign %s: %w", p.Name, err)
	}
	p.SigValue = sig
	p.wire = p.encode()
	return nil
}

// SignedPortion returns the bytes covered by the signature: the encoding of
// every field except the signature value.
func (p *Packet) SignedPortion() []byte {
	return p.appendSigned(nil)
}

// Wire returns the binary encoding of p. Signed and decoded packets return
// their cached encoding; unsigned packets are encoded on every call.
func (p *Packet) Wire() []byte {
	if p.wire != nil {
		return p.wire
	}
	return p.encode()
}

// Digest returns the content identifier of the full wire encoding.
func (p *Packet) Digest() (cid.Cid, error) {
	return cidutil.CIDv1RawSHA256CID(p.Wire())
}

// SequenceNum returns the sequence number carried in the last name component.
func (p *Packet) SequenceNum() (uint64, bool) {
	return name.SeqOf(p.Name)
}

// KeyLocator returns the signing key name, or nil for unsigned packets.
func (p *Packet) KeyLocator() name.Name {
	if p.SigInfo == nil {
		return nil
	}
	return p.SigInfo.KeyLocator
}

func (p *Packet) String() string {
	return p.Name.String()
}
