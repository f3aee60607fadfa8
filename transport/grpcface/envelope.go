package grpcface

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/aincraft/name"
)

// Announcement envelope: { bytes group = 1; bytes payload = 2; }
const (
	fieldGroup   protowire.Number = 1
	fieldPayload protowire.Number = 2
)

var errBadEnvelope = errors.New("grpcface: malformed announcement envelope")

func encodeEnvelope(group name.Name, payload []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldGroup, protowire.BytesType)
	b = protowire.AppendBytes(b, group.Bytes())
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b
}

func decodeEnvelope(b []byte) (name.Name, []byte, error) {
	var (
		group   name.Name
		payload []byte
		seen    bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || typ != protowire.BytesType {
			return nil, nil, errBadEnvelope
		}
		b = b[n:]
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, errBadEnvelope
		}
		b = b[n:]
		switch num {
		case fieldGroup:
			g, err := name.DecodeWire(v)
			if err != nil {
				return nil, nil, errBadEnvelope
			}
			group, seen = g, true
		case fieldPayload:
			payload = append([]byte(nil), v...)
		default:
			return nil, nil, errBadEnvelope
		}
	}
	if !seen || len(group) == 0 {
		return nil, nil, errBadEnvelope
	}
	return group, payload, nil
}
