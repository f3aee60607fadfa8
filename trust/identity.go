package trust

import (
	"fmt"
	"time"

	"xdao.co/aincraft/keys"
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

// Identity is a node's signing key and its self certificate.
type Identity struct {
	Signer      packet.Signer
	Certificate *Certificate
}

// IdentityOptions tunes NewSelfIdentity. The zero value selects Ed25519, key id
// "1", DefaultValidity and the wall clock.
type IdentityOptions struct {
	Algorithm packet.SigType
	KeyID     string
	Validity  time.Duration
	Now       func() time.Time
}

// NewSelfIdentity derives the signing key for identity from rootSeed and
// issues a self certificate valid from now for the configured duration.
func NewSelfIdentity(identity name.Name, rootSeed []byte, opts IdentityOptions) (*Identity, error) {
	if len(identity) == 0 {
		return nil, fmt.Errorf("trust: empty identity name")
	}
	if opts.KeyID == "" {
		opts.KeyID = "1"
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultValidity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Algorithm == packet.SigNone {
		opts.Algorithm = packet.SigEd25519
	}
	keyName := identity.Append(name.Generic(KeyComponent), name.Generic(opts.KeyID))

	var (
		signer packet.Signer
		pub    []byte
	)
	switch opts.Algorithm {
	case packet.SigEd25519:
		seed, err := keys.DeriveSeed(rootSeed, keys.LabelEd25519)
		if err != nil {
			return nil, err
		}
		s, err := keys.NewEd25519Signer(keyName, seed)
		if err != nil {
			return nil, err
		}
		signer, pub = s, s.PublicKey()
	case packet.SigDilithium3:
		seed, err := keys.DeriveSeed(rootSeed, keys.LabelDilithium3)
		if err != nil {
			return nil, err
		}
		s, err := keys.NewDilithium3Signer(keyName, seed)
		if err != nil {
			return nil, err
		}
		signer, pub = s, s.PublicKey()
	default:
		return nil, fmt.Errorf("trust: unsupported algorithm %s", opts.Algorithm)
	}

	now := opts.Now().Truncate(time.Millisecond)
	cert, err := BuildSelfSigned(signer, pub, packet.ValidityPeriod{NotBefore: now, NotAfter: now.Add(opts.Validity)})
	if err != nil {
		return nil, err
	}
	return &Identity{Signer: signer, Certificate: cert}, nil
}
