package trust

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"xdao.co/aincraft/keys"
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

const (
	// KeyComponent marks the key part of a certificate name.
	KeyComponent = "KEY"
	// SelfIssuer is the issuer component of self-signed certificates.
	SelfIssuer = "self"
	// DefaultValidity is the lifetime given to a freshly generated self certificate.
	DefaultValidity = 100 * time.Hour
)

// Certificate binds a key name to a public key for a validity window.
//
// It is carried as a packet named <identity>/KEY/<keyId>/<issuer>/v=<millis>
// whose content is the raw public key. The signature info holds the validity
// period and a key locator naming the issuing key.
type Certificate struct {
	pkt       *packet.Packet
	keyName   name.Name
	publicKey []byte
	validity  packet.ValidityPeriod
}

// BuildSelfSigned issues a certificate for signer's own key.
func BuildSelfSigned(signer packet.Signer, publicKey []byte, validity packet.ValidityPeriod) (*Certificate, error) {
	keyName := signer.KeyName()
	if err := checkKeyName(keyName); err != nil {
		return nil, err
	}
	certName := keyName.Append(name.Generic(SelfIssuer), name.Version(uint64(validity.NotBefore.UnixMilli())))
	p := packet.New(certName, append([]byte(nil), publicKey...), 0)
	p.SigInfo = &packet.SigInfo{Validity: &validity}
	if err := p.Sign(signer); err != nil {
		return nil, err
	}
	return FromPacket(p)
}

// DecodeCertificate parses certificate wire bytes.
func DecodeCertificate(wire []byte) (*Certificate, error) {
	p, err := packet.Decode(wire)
	if err != nil {
		return nil, wrapError(KindMalformedCertificate, "", "cannot decode certificate", err)
	}
	return FromPacket(p)
}

// FromPacket validates that p is a well-formed, correctly self-signed certificate.
// The issuer is not chain-validated.
func FromPacket(p *packet.Packet) (*Certificate, error) {
	n := p.Name
	if len(n) < 4 || !n[len(n)-4].Equal(name.Generic(KeyComponent)) || !name.IsVersion(n[len(n)-1]) {
		return nil, newError(KindMalformedCertificate, n.String(), "certificate name must end in KEY/<keyId>/<issuer>/v=<n>")
	}
	keyName := n.Prefix(-2)
	if p.SigInfo == nil || p.SigInfo.Validity == nil {
		return nil, newError(KindMalformedCertificate, n.String(), "certificate has no validity period")
	}
	if len(p.SigValue) == 0 {
		return nil, newError(KindMalformedCertificate, n.String(), "certificate is not signed")
	}
	if !p.SigInfo.Validity.NotAfter.After(p.SigInfo.Validity.NotBefore) {
		return nil, newError(KindMalformedCertificate, n.String(), "empty validity period")
	}
	switch p.SigInfo.Type {
	case packet.SigEd25519:
		if len(p.Content) != ed25519.PublicKeySize {
			return nil, newError(KindMalformedCertificate, n.String(), "invalid ed25519 public key length")
		}
	case packet.SigDilithium3:
		if len(p.Content) == 0 {
			return nil, newError(KindMalformedCertificate, n.String(), "missing dilithium3 public key")
		}
	default:
		return nil, newError(KindMalformedCertificate, n.String(), fmt.Sprintf("unsupported signature type %s", p.SigInfo.Type))
	}

	// Only self-signed certificates carry their own verification key.
	if p.KeyLocator().Equal(keyName) {
		ok, err := verifySignature(p.SigInfo.Type, p.Content, p.SignedPortion(), p.SigValue)
		if err != nil {
			return nil, wrapError(KindMalformedCertificate, n.String(), "invalid public key", err)
		}
		if !ok {
			return nil, newError(KindMalformedCertificate, n.String(), "self-signature invalid")
		}
	}

	return &Certificate{
		pkt:       p,
		keyName:   keyName,
		publicKey: p.Content,
		validity:  *p.SigInfo.Validity,
	}, nil
}

// Name returns the full certificate name.
func (c *Certificate) Name() name.Name { return c.pkt.Name }

// KeyName returns the subject key name (<identity>/KEY/<keyId>).
func (c *Certificate) KeyName() name.Name { return c.keyName }

// Identity returns the subject identity, the key name without KEY/<keyId>.
func (c *Certificate) Identity() name.Name {
	id, _ := name.Identity(c.keyName)
	return id
}

func (c *Certificate) PublicKey() []byte               { return c.publicKey }
func (c *Certificate) SigType() packet.SigType         { return c.pkt.SigInfo.Type }
func (c *Certificate) Validity() packet.ValidityPeriod { return c.validity }
func (c *Certificate) Packet() *packet.Packet          { return c.pkt }

// Wire returns the certificate exchange bytes.
func (c *Certificate) Wire() []byte { return c.pkt.Wire() }

// ValidAt reports whether t falls in the validity period.
func (c *Certificate) ValidAt(t time.Time) bool { return c.validity.Contains(t) }

func checkKeyName(keyName name.Name) error {
	if len(keyName) < 3 || !keyName[len(keyName)-2].Equal(name.Generic(KeyComponent)) {
		return fmt.Errorf("trust: key name %s must end in %s/<keyId>", keyName, KeyComponent)
	}
	return nil
}

func verifySignature(typ packet.SigType, publicKey, message, sig []byte) (bool, error) {
	switch typ {
	case packet.SigEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return false, fmt.Errorf("ed25519 public key must be %d bytes", ed25519.PublicKeySize)
		}
		return keys.VerifyEd25519SHA256(publicKey, message, sig), nil
	case packet.SigDilithium3:
		return keys.VerifyDilithium3(publicKey, message, sig)
	default:
		return false, fmt.Errorf("unsupported signature type %s", typ)
	}
}
