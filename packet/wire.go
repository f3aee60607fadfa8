package packet

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/aincraft/name"
)

// Wire layout:
//
//	Packet  { Name name = 1; uint64 freshness_ms = 2; bytes content = 3; SigInfo sig_info = 4; bytes sig_value = 5; }
//	SigInfo { uint32 sig_type = 1; Name key_locator = 2; uint64 not_before_ms = 3; uint64 not_after_ms = 4; }
//
// Fields are always written in ascending order; the signed portion is fields 1 to 4.
const (
	fieldName      protowire.Number = 1
	fieldFreshness protowire.Number = 2
	fieldContent   protowire.Number = 3
	fieldSigInfo   protowire.Number = 4
	fieldSigValue  protowire.Number = 5

	fieldSigType    protowire.Number = 1
	fieldKeyLocator protowire.Number = 2
	fieldNotBefore  protowire.Number = 3
	fieldNotAfter   protowire.Number = 4
)

func (p *Packet) appendSigned(b []byte) []byte {
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Name.Bytes())
	if p.Freshness > 0 {
		b = protowire.AppendTag(b, fieldFreshness, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Freshness/time.Millisecond))
	}
	if len(p.Content) > 0 {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Content)
	}
	if p.SigInfo != nil {
		b = protowire.AppendTag(b, fieldSigInfo, protowire.BytesType)
		b = protowire.AppendBytes(b, p.SigInfo.encode())
	}
	return b
}

func (p *Packet) encode() []byte {
	b := p.appendSigned(nil)
	if len(p.SigValue) > 0 {
		b = protowire.AppendTag(b, fieldSigValue, protowire.BytesType)
		b = protowire.AppendBytes(b, p.SigValue)
	}
	return b
}

func (s *SigInfo) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSigType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Type))
	if len(s.KeyLocator) > 0 {
		b = protowire.AppendTag(b, fieldKeyLocator, protowire.BytesType)
		b = protowire.AppendBytes(b, s.KeyLocator.Bytes())
	}
	if s.Validity != nil {
		b = protowire.AppendTag(b, fieldNotBefore, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Validity.NotBefore.UnixMilli()))
		b = protowire.AppendTag(b, fieldNotAfter, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Validity.NotAfter.UnixMilli()))
	}
	return b
}

// Decode parses a packet from its wire encoding. The returned packet keeps a
// private copy of b as its wire form.
func Decode(b []byte) (*Packet, error) {
	p := &Packet{}
	var haveName bool
	rest := b
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		rest = rest[n:]
		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			nm, err := name.DecodeWire(v)
			if err != nil {
				return nil, malformed(err)
			}
			p.Name = nm
			haveName = true
			rest = rest[n:]
		case num == fieldFreshness && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			p.Freshness = time.Duration(v) * time.Millisecond
			rest = rest[n:]
		case num == fieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			p.Content = append([]byte(nil), v...)
			rest = rest[n:]
		case num == fieldSigInfo && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			info, err := decodeSigInfo(v)
			if err != nil {
				return nil, err
			}
			p.SigInfo = info
			rest = rest[n:]
		case num == fieldSigValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			p.SigValue = append([]byte(nil), v...)
			rest = rest[n:]
		default:
			return nil, malformed(fmt.Errorf("unexpected field %d", num))
		}
	}
	if !haveName || len(p.Name) == 0 {
		return nil, malformed(fmt.Errorf("missing name"))
	}
	p.wire = append([]byte(nil), b...)
	return p, nil
}

func decodeSigInfo(b []byte) (*SigInfo, error) {
	info := &SigInfo{}
	var notBefore, notAfter uint64
	var haveBefore, haveAfter bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldSigType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 || v > 0xff {
				return nil, malformed(fmt.Errorf("bad sig type"))
			}
			info.Type = SigType(v)
			b = b[n:]
		case num == fieldKeyLocator && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			nm, err := name.DecodeWire(v)
			if err != nil {
				return nil, malformed(err)
			}
			info.KeyLocator = nm
			b = b[n:]
		case (num == fieldNotBefore || num == fieldNotAfter) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			if num == fieldNotBefore {
				notBefore, haveBefore = v, true
			} else {
				notAfter, haveAfter = v, true
			}
			b = b[n:]
		default:
			return nil, malformed(fmt.Errorf("unexpected sig info field %d", num))
		}
	}
	if haveBefore != haveAfter {
		return nil, malformed(fmt.Errorf("incomplete validity period"))
	}
	if haveBefore {
		info.Validity = &ValidityPeriod{
			NotBefore: time.UnixMilli(int64(notBefore)),
			NotAfter:  time.UnixMilli(int64(notAfter)),
		}
	}
	return info, nil
}

func malformed(cause error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, cause)
}
