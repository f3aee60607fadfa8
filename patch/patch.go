// Package patch turns document change patches into scene-graph operations.
//
// Patches follow the automerge patch shape: an action, a path from the
// document root and a value. Only paths under the root's @children map are
// meaningful to the scene; the rest is ignored.
package patch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"xdao.co/aincraft/scene"
)

type Action string

const (
	ActionPut    Action = "put"
	ActionDel    Action = "del"
	ActionSplice Action = "splice"
	ActionInsert Action = "insert"
	ActionInc    Action = "inc"
	ActionMark   Action = "mark"
	ActionUnmark Action = "unmark"
)

type Patch struct {
	Action Action `json:"action"`
	// Path elements are map keys (string) or list indices (number).
	Path  []any `json:"path"`
	Value any   `json:"value,omitempty"`
}

func (p Patch) String() string {
	parts := make([]string, len(p.Path))
	for i, e := range p.Path {
		parts[i] = fmt.Sprint(e)
	}
	return string(p.Action) + " /" + strings.Join(parts, "/")
}

// DecodePatches parses a JSON array of patches.
func DecodePatches(b []byte) ([]Patch, error) {
	var ps []Patch
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("patch: decode: %w", err)
	}
	return ps, nil
}

// Op is one classified patch. It is one of CreateNode, SetAttribute,
// SetSubfield, Ignored or Unsupported.
type Op interface {
	isOp()
}

type CreateNode struct {
	ID   string
	Type string
}

// SetAttribute replaces an attribute, or splices text into it when Splice is set.
type SetAttribute struct {
	ID     string
	Key    string
	Value  any
	Splice *int
}

type SetSubfield struct {
	ID     string
	Key    string
	Field  string
	Value  any
	Splice *int
}

type Ignored struct {
	Reason string
}

type Unsupported struct {
	Action Action
}

func (CreateNode) isOp()   {}
func (SetAttribute) isOp() {}
func (SetSubfield) isOp()  {}
func (Ignored) isOp()      {}
func (Unsupported) isOp()  {}

// Classify maps p to the scene operation it describes.
func Classify(p Patch) Op {
	switch p.Action {
	case ActionDel, ActionInsert:
		return Unsupported{Action: p.Action}
	case ActionPut, ActionSplice:
	default:
		return Ignored{Reason: "unhandled action " + string(p.Action)}
	}

	if len(p.Path) < 2 {
		return Ignored{Reason: "outside the children map"}
	}
	if k, ok := p.Path[0].(string); !ok || k != scene.KeyChildren {
		return Ignored{Reason: "outside the children map"}
	}
	id, ok := p.Path[1].(string)
	if !ok || id == "" {
		return Ignored{Reason: "malformed node id"}
	}

	var keys []string
	for _, e := range p.Path[2:] {
		s, ok := e.(string)
		if !ok {
			break
		}
		keys = append(keys, s)
	}
	if len(keys) > 0 && scene.IsMeta(keys[0]) {
		return Ignored{Reason: "metadata key " + keys[0]}
	}

	if p.Action == ActionPut {
		switch len(p.Path) {
		case 2:
			return CreateNode{ID: id, Type: scene.DefaultEntityType}
		case 3:
			if len(keys) == 1 {
				return SetAttribute{ID: id, Key: keys[0], Value: p.Value}
			}
		case 4:
			if len(keys) == 2 {
				return SetSubfield{ID: id, Key: keys[0], Field: keys[1], Value: p.Value}
			}
		}
		return Ignored{Reason: "unhandled put path"}
	}

	idx, ok := index(p.Path[len(p.Path)-1])
	switch {
	case !ok:
		return Ignored{Reason: "splice without index"}
	case len(p.Path) == 4 && len(keys) == 1:
		return SetAttribute{ID: id, Key: keys[0], Value: p.Value, Splice: &idx}
	case len(p.Path) == 5 && len(keys) == 2:
		return SetSubfield{ID: id, Key: keys[0], Field: keys[1], Value: p.Value, Splice: &idx}
	}
	return Ignored{Reason: "unhandled splice path"}
}

// index accepts the numeric forms a path element takes after JSON or CBOR decoding.
func index(e any) (int, bool) {
	switch v := e.(type) {
	case int:
		return v, v >= 0
	case int64:
		return int(v), v >= 0
	case uint64:
		return int(v), v <= math.MaxInt32
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := strconv.Atoi(string(v))
		return n, err == nil && n >= 0
	default:
		return 0, false
	}
}
