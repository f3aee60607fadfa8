// Package scene models the shared document as a tree of typed nodes and
// defines the scene-graph contract that renderers implement.
//
// In the document form a node is a map whose metadata keys start with '@'
// (@type, @id, @children); every other key is an attribute.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	KeyType     = "@type"
	KeyID       = "@id"
	KeyChildren = "@children"

	// MetaSigil prefixes every metadata key.
	MetaSigil = '@'

	RootID            = "root"
	RootType          = "a-scene"
	DefaultEntityType = "a-entity"
)

var (
	ErrInvalidNode  = errors.New("scene: invalid node")
	ErrNodeNotFound = errors.New("scene: node not found")
	ErrDuplicateID  = errors.New("scene: duplicate node id")
)

// IsMeta reports whether key is a metadata key.
func IsMeta(key string) bool {
	return strings.HasPrefix(key, string(MetaSigil))
}

type Node struct {
	Type       string
	ID         string
	Attributes map[string]any
	Children   []*Node
}

// NewEntity returns an empty node of the default entity type.
func NewEntity(id string) *Node {
	return &Node{Type: DefaultEntityType, ID: id, Attributes: map[string]any{}}
}

// NewNodeID returns a fresh, time-ordered node id such as "box-01hx...".
func NewNodeID(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}

func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil", ErrInvalidNode)
	}
	if n.Type == "" {
		return fmt.Errorf("%w: %q has no type", ErrInvalidNode, n.ID)
	}
	if n.ID == "" {
		return fmt.Errorf("%w: node of type %s has no id", ErrInvalidNode, n.Type)
	}
	for k := range n.Attributes {
		if k == "" || IsMeta(k) {
			return fmt.Errorf("%w: %s has attribute key %q", ErrInvalidNode, n.ID, k)
		}
	}
	for _, c := range n.Children {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of n. Map-valued attributes are copied one level deep.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Type: n.Type, ID: n.ID, Attributes: make(map[string]any, len(n.Attributes))}
	for k, v := range n.Attributes {
		out.Attributes[k] = cloneValue(v)
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

func cloneValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, fv := range m {
		out[k] = fv
	}
	return out
}

// FromDocument decodes a document map into a Node tree. Children are ordered
// by key. Unknown metadata keys are ignored.
func FromDocument(doc map[string]any) (*Node, error) {
	typ, _ := doc[KeyType].(string)
	id, _ := doc[KeyID].(string)
	n := &Node{Type: typ, ID: id, Attributes: map[string]any{}}
	if typ == "" || id == "" {
		return nil, fmt.Errorf("%w: missing %s or %s", ErrInvalidNode, KeyType, KeyID)
	}
	for k, v := range doc {
		if IsMeta(k) {
			continue
		}
		n.Attributes[k] = cloneValue(v)
	}

	raw, ok := doc[KeyChildren]
	if !ok || raw == nil {
		return n, nil
	}
	children, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s of %s is %T", ErrInvalidNode, KeyChildren, id, raw)
	}
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cm, ok := children[k].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: child %s of %s is %T", ErrInvalidNode, k, id, children[k])
		}
		c, err := FromDocument(cm)
		if err != nil {
			return nil, err
		}
		if c.ID != k {
			return nil, fmt.Errorf("%w: child key %s holds node %s", ErrInvalidNode, k, c.ID)
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// Document is the inverse of FromDocument.
func (n *Node) Document() map[string]any {
	doc := map[string]any{
		KeyType: n.Type,
		KeyID:   n.ID,
	}
	children := make(map[string]any, len(n.Children))
	for _, c := range n.Children {
		children[c.ID] = c.Document()
	}
	doc[KeyChildren] = children
	for k, v := range n.Attributes {
		doc[k] = cloneValue(v)
	}
	return doc
}

// DefaultDocument returns the document a new scene starts from.
func DefaultDocument() map[string]any {
	leaf := func(typ, id string, attrs map[string]any) map[string]any {
		m := map[string]any{KeyType: typ, KeyID: id, KeyChildren: map[string]any{}}
		for k, v := range attrs {
			m[k] = v
		}
		return m
	}
	return map[string]any{
		KeyType: RootType,
		KeyID:   RootID,
		KeyChildren: map[string]any{
			"assets": map[string]any{
				KeyType: "a-assets",
				KeyID:   "assets",
				KeyChildren: map[string]any{
					"groundTexture": leaf("img", "groundTexture", map[string]any{"src": "/static/floor.jpg", "alt": ""}),
					"skyTexture":    leaf("img", "skyTexture", map[string]any{"src": "/static/sky.jpg", "alt": ""}),
					"voxel": leaf("a-mixin", "voxel", map[string]any{
						"geometry": "primitive: box; height: 0.5; width: 0.5; depth: 0.5",
						"material": "shader: standard",
					}),
				},
			},
			"ground": leaf("a-cylinder", "ground", map[string]any{
				"src":    "#groundTexture",
				"radius": 32.0,
				"height": 0.1,
			}),
			"background": leaf("a-background", "background", map[string]any{
				"src":          "#skyTexture",
				"radius":       30.0,
				"theta-length": 90.0,
			}),
			"camera": map[string]any{
				KeyType: "a-camera",
				KeyID:   "camera",
				KeyChildren: map[string]any{
					"cursor": leaf("a-cursor", "cursor", map[string]any{
						"intersection-spawn": "event: click; offset: 0.25 0.25 0.25; snap: 0.5 0.5 0.5; mixin: voxel",
					}),
				},
			},
		},
	}
}
