// Package name adapts NDN names for packet naming.
//
// Names are used both as routing keys (a node's base name is a prefix of
// every packet it produces) and as storage keys. Types, URI form and wire
// encoding are those of ndnd's std/encoding:
//
//	/node-1a2b3c4d/aincraft/sync/seq=7
//
// Sequence numbers and versions have their own component types so they sort
// numerically and survive a round trip through the URI form.
package name

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	enc "github.com/named-data/ndnd/std/encoding"
)

type (
	Name      = enc.Name
	Component = enc.Component
)

var (
	ErrInvalidURI       = errors.New("name: invalid uri")
	ErrInvalidComponent = errors.New("name: invalid component")
)

// Generic returns an opaque component holding s.
func Generic(s string) Component {
	return enc.NewGenericComponent(s)
}

// SequenceNum returns a sequence number component ("seq=N").
func SequenceNum(n uint64) Component {
	return enc.NewSequenceNumComponent(n)
}

// Version returns a version component ("v=N").
func Version(n uint64) Component {
	return enc.NewVersionComponent(n)
}

func IsSequenceNum(c Component) bool { return c.Typ == enc.TypeSequenceNumNameComponent }

func IsVersion(c Component) bool { return c.Typ == enc.TypeVersionNameComponent }

// Number decodes the value of a sequence number or version component.
func Number(c Component) (uint64, bool) {
	if !IsSequenceNum(c) && !IsVersion(c) {
		return 0, false
	}
	switch len(c.Val) {
	case 1, 2, 4, 8:
		return c.NumberVal(), true
	default:
		return 0, false
	}
}

// SeqOf returns the number in the last component of n if it is a sequence number.
func SeqOf(n Name) (uint64, bool) {
	if len(n) == 0 || !IsSequenceNum(n[len(n)-1]) {
		return 0, false
	}
	return Number(n[len(n)-1])
}

// Parse parses a URI such as "/node-1/aincraft/seq=3".
func Parse(uri string) (Name, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	for _, seg := range strings.Split(uri, "/") {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || (k != "seq" && k != "v") {
			continue
		}
		if _, err := strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidComponent, seg)
		}
	}
	n, err := enc.NameFromStr(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidComponent, err)
	}
	return n, nil
}

// MustParse is like Parse but panics on error.
func MustParse(uri string) Name {
	n, err := Parse(uri)
	if err != nil {
		panic(err)
	}
	return n
}

// DecodeWire parses the TLV form produced by Name.Bytes.
func DecodeWire(b []byte) (Name, error) {
	n, err := enc.NameFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidComponent, err)
	}
	return n, nil
}

// Identity returns the node name a key name belongs to: the key name without
// its trailing KEY and key id components.
func Identity(keyName Name) (Name, bool) {
	if len(keyName) < 3 {
		return nil, false
	}
	return keyName.Prefix(-2), true
}
