package adapter

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var ErrMalformedMessage = errors.New("adapter: malformed message")

// Message types exchanged by the document replication layer.
const (
	TypeSync                     = "sync"
	TypeRequest                  = "request"
	TypeEphemeral                = "ephemeral"
	TypeDocUnavailable           = "doc-unavailable"
	TypeRemoteSubscriptionChange = "remote-subscription-change"
	TypeRemoteHeadsChanged       = "remote-heads-changed"
)

// Message is one replication-layer message. Fields not used by a given Type
// are left empty.
type Message struct {
	Type       string `cbor:"type"`
	SenderID   string `cbor:"senderId"`
	TargetID   string `cbor:"targetId"`
	DocumentID string `cbor:"documentId,omitempty"`
	Data       []byte `cbor:"data"`
	SessionID  string `cbor:"sessionId,omitempty"`
	Count      uint64 `cbor:"count,omitempty"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxNestedLevels: 32,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Validate checks that m has the fields its Type requires.
func (m *Message) Validate() error {
	if m.SenderID == "" {
		return fmt.Errorf("%w: missing senderId", ErrMalformedMessage)
	}
	if m.TargetID == "" {
		return fmt.Errorf("%w: missing targetId", ErrMalformedMessage)
	}
	switch m.Type {
	case TypeSync, TypeRequest:
		if m.DocumentID == "" || m.Data == nil {
			return fmt.Errorf("%w: %s needs documentId and data", ErrMalformedMessage, m.Type)
		}
	case TypeEphemeral:
		if m.DocumentID == "" || m.Data == nil || m.SessionID == "" {
			return fmt.Errorf("%w: ephemeral needs documentId, sessionId and data", ErrMalformedMessage)
		}
	case TypeDocUnavailable, TypeRemoteHeadsChanged:
		if m.DocumentID == "" {
			return fmt.Errorf("%w: %s needs documentId", ErrMalformedMessage, m.Type)
		}
	case TypeRemoteSubscriptionChange:
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	return nil
}

// EncodeMessage validates m and returns its CBOR encoding.
func EncodeMessage(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(m)
}

// DecodeMessage parses and validates a CBOR-encoded message.
func DecodeMessage(b []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
