package svs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/aincraft/name"
)

// Wire layout:
//
//	StateVector { repeated Entry entry = 1; }
//	Entry       { Name node = 1; uint64 seq = 2; }
const (
	fieldEntry     protowire.Number = 1
	fieldEntryNode protowire.Number = 1
	fieldEntrySeq  protowire.Number = 2
)

var ErrMalformedVector = errors.New("svs: malformed state vector")

// Entry is one node's high-water sequence number.
type Entry struct {
	Node name.Name
	Seq  uint64
}

// StateVector maps node names to the highest sequence number known for each.
// Absent nodes read as zero. A StateVector is not safe for concurrent use.
type StateVector struct {
	entries map[string]Entry
}

func NewStateVector() *StateVector {
	return &StateVector{entries: make(map[string]Entry)}
}

func (v *StateVector) Get(node name.Name) uint64 {
	return v.entries[node.String()].Seq
}

// Has reports whether node has an entry.
func (v *StateVector) Has(node name.Name) bool {
	_, ok := v.entries[node.String()]
	return ok
}

// Advance raises node's entry to seq. It reports false, leaving the entry
// untouched, when seq is not above the current value.
func (v *StateVector) Advance(node name.Name, seq uint64) bool {
	key := node.String()
	if e, ok := v.entries[key]; ok && e.Seq >= seq {
		return false
	}
	v.entries[key] = Entry{Node: node, Seq: seq}
	return true
}

func (v *StateVector) Len() int { return len(v.entries) }

// Entries returns the entries in name order.
func (v *StateVector) Entries() []Entry {
	out := make([]Entry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node.Compare(out[j].Node) < 0 })
	return out
}

// Newer reports whether v holds an entry above the one in o.
func (v *StateVector) Newer(o *StateVector) bool {
	for k, e := range v.entries {
		if e.Seq > o.entries[k].Seq {
			return true
		}
	}
	return false
}

func (v *StateVector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range v.Entries() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s:%d", e.Node, e.Seq)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Encode returns the deterministic binary form of v.
func (v *StateVector) Encode() []byte {
	var b []byte
	for _, e := range v.Entries() {
		var eb []byte
		eb = protowire.AppendTag(eb, fieldEntryNode, protowire.BytesType)
		eb = protowire.AppendBytes(eb, e.Node.Bytes())
		eb = protowire.AppendTag(eb, fieldEntrySeq, protowire.VarintType)
		eb = protowire.AppendVarint(eb, e.Seq)
		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	return b
}

func DecodeStateVector(b []byte) (*StateVector, error) {
	v := NewStateVector()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || num != fieldEntry || typ != protowire.BytesType {
			return nil, ErrMalformedVector
		}
		b = b[n:]
		eb, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, ErrMalformedVector
		}
		b = b[n:]
		e, err := decodeEntry(eb)
		if err != nil {
			return nil, err
		}
		v.Advance(e.Node, e.Seq)
	}
	return v, nil
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, ErrMalformedVector
		}
		b = b[n:]
		switch {
		case num == fieldEntryNode && typ == protowire.BytesType:
			nb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, ErrMalformedVector
			}
			b = b[n:]
			node, err := name.DecodeWire(nb)
			if err != nil {
				return e, fmt.Errorf("%w: %v", ErrMalformedVector, err)
			}
			e.Node = node
		case num == fieldEntrySeq && typ == protowire.VarintType:
			seq, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, ErrMalformedVector
			}
			b = b[n:]
			e.Seq = seq
		default:
			return e, ErrMalformedVector
		}
	}
	if len(e.Node) == 0 {
		return e, ErrMalformedVector
	}
	return e, nil
}
