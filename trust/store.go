// Package trust holds a node's signing identity and the certificates of the
// peers it has chosen to trust, and verifies packet signatures against them.
//
// Peer certificates arrive out of band and are trusted without chain
// validation. They are never revoked or re-validated after import.
package trust

import (
	"encoding/base64"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
)

const verifiedCacheSize = 4096

// Store is safe for concurrent use.
type Store struct {
	log  zerolog.Logger
	self *Identity
	now  func() time.Time

	mu    sync.RWMutex
	certs map[string]*Certificate

	// verified remembers packet digests that already passed verification.
	// It is purged whenever the certificate set changes.
	verified *lru.Cache[string, struct{}]
}

// NewStore returns a Store holding self. The self certificate is part of the
// lookup set so a node can verify its own packets.
func NewStore(self *Identity, logger zerolog.Logger) *Store {
	cache, err := lru.New[string, struct{}](verifiedCacheSize)
	if err != nil {
		panic(err)
	}
	s := &Store{
		log:      logger.With().Str("component", "trust").Logger(),
		self:     self,
		now:      time.Now,
		certs:    make(map[string]*Certificate),
		verified: cache,
	}
	s.certs[self.Certificate.KeyName().String()] = self.Certificate
	return s
}

// SelfIdentity returns this node's signer and self certificate.
func (s *Store) SelfIdentity() (packet.Signer, *Certificate) {
	return s.self.Signer, s.self.Certificate
}

// ExportSelfCertificate returns the self certificate in exchange format.
func (s *Store) ExportSelfCertificate() []byte {
	return s.self.Certificate.Wire()
}

func (s *Store) ExportSelfCertificateBase64() string {
	return base64.StdEncoding.EncodeToString(s.ExportSelfCertificate())
}

// ImportPeerCertificate decodes and stores a peer certificate, replacing any
// previous certificate for the same key. It returns the peer's identity name.
// On error the certificate set is left unchanged.
func (s *Store) ImportPeerCertificate(b []byte) (name.Name, error) {
	cert, err := DecodeCertificate(b)
	if err != nil {
		s.log.Warn().Err(err).Msg("rejected peer certificate")
		return nil, err
	}
	if !cert.ValidAt(s.now()) {
		s.log.Warn().
			Str("key", cert.KeyName().String()).
			Time("not_after", cert.Validity().NotAfter).
			Msg("imported certificate is outside its validity period")
	}

	s.mu.Lock()
	s.certs[cert.KeyName().String()] = cert
	s.mu.Unlock()
	s.verified.Purge()

	s.log.Info().Str("key", cert.KeyName().String()).Msg("imported peer certificate")
	return cert.Identity(), nil
}

func (s *Store) ImportPeerCertificateBase64(text string) (name.Name, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, wrapError(KindMalformedCertificate, "", "invalid base64", err)
	}
	return s.ImportPeerCertificate(b)
}

// Certificate returns the certificate on file for keyName.
func (s *Store) Certificate(keyName name.Name) (*Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[keyName.String()]
	return c, ok
}

// Peers lists the key names of imported peer certificates in name order.
func (s *Store) Peers() []name.Name {
	selfKey := s.self.Certificate.KeyName()
	s.mu.RLock()
	out := make([]name.Name, 0, len(s.certs))
	for _, c := range s.certs {
		if c.KeyName().Equal(selfKey) {
			continue
		}
		out = append(out, c.KeyName())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Verify checks p's signature against the certificate named by its key
// locator. The signer's identity must be a prefix of p's name. The returned
// error, if any, is a *Error of kind Unsigned, UnknownSigner, WrongProducer
// or BadSignature.
func (s *Store) Verify(p *packet.Packet) error {
	locator := p.KeyLocator()
	if len(locator) == 0 || len(p.SigValue) == 0 {
		return newError(KindUnsigned, p.Name.String(), "packet carries no signature")
	}
	cert, ok := s.Certificate(locator)
	if !ok {
		return newError(KindUnknownSigner, p.Name.String(), "no certificate for "+locator.String())
	}
	if !cert.Identity().IsPrefix(p.Name) {
		return newError(KindWrongProducer, p.Name.String(), cert.Identity().String()+" cannot sign outside its own namespace")
	}
	if p.SigInfo.Type != cert.SigType() {
		return newError(KindBadSignature, p.Name.String(), "signature type "+p.SigInfo.Type.String()+" does not match certificate")
	}

	digest, err := p.Digest()
	if err != nil {
		return wrapError(KindBadSignature, p.Name.String(), "cannot digest packet", err)
	}
	cacheKey := digest.KeyString()
	if _, ok := s.verified.Get(cacheKey); ok {
		return nil
	}

	valid, err := verifySignature(p.SigInfo.Type, cert.PublicKey(), p.SignedPortion(), p.SigValue)
	if err != nil {
		return wrapError(KindBadSignature, p.Name.String(), "signature check failed", err)
	}
	if !valid {
		return newError(KindBadSignature, p.Name.String(), "signature does not verify")
	}
	s.verified.Add(cacheKey, struct{}{})
	return nil
}
