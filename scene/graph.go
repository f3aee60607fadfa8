package scene

import (
	"fmt"
	"sync"
)

// Graph is the scene-graph contract. Ids are unique across the whole graph.
type Graph interface {
	// CreateNode attaches n and its subtree under the root.
	CreateNode(n *Node) error
	SetAttribute(id, key string, value any) error
	// SetSubfield sets one property of a map-valued attribute, creating the
	// map if the attribute holds anything else.
	SetSubfield(id, key, field string, value any) error
}

// AttributeReader is implemented by graphs that can report current values.
type AttributeReader interface {
	Attribute(id, key string) (any, bool)
}

// Render creates every child of the document root in g.
func Render(doc map[string]any, g Graph) error {
	root, err := FromDocument(doc)
	if err != nil {
		return err
	}
	for _, c := range root.Children {
		if err := g.CreateNode(c); err != nil {
			return err
		}
	}
	return nil
}

// Tree is an in-memory Graph. It is safe for concurrent use.
type Tree struct {
	mu    sync.RWMutex
	root  *Node
	index map[string]*Node
}

var (
	_ Graph           = (*Tree)(nil)
	_ AttributeReader = (*Tree)(nil)
)

func NewTree() *Tree {
	root := &Node{Type: RootType, ID: RootID, Attributes: map[string]any{}}
	return &Tree{root: root, index: map[string]*Node{RootID: root}}
}

func (t *Tree) CreateNode(n *Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	c := n.Clone()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkIDs(c, t.index, map[string]bool{}); err != nil {
		return err
	}
	t.root.Children = append(t.root.Children, c)
	indexTree(c, t.index)
	return nil
}

func checkIDs(n *Node, existing map[string]*Node, seen map[string]bool) error {
	if _, ok := existing[n.ID]; ok || seen[n.ID] {
		return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
	}
	seen[n.ID] = true
	for _, c := range n.Children {
		if err := checkIDs(c, existing, seen); err != nil {
			return err
		}
	}
	return nil
}

func indexTree(n *Node, index map[string]*Node) {
	index[n.ID] = n
	for _, c := range n.Children {
		indexTree(c, index)
	}
}

func (t *Tree) SetAttribute(id, key string, value any) error {
	if key == "" || IsMeta(key) {
		return fmt.Errorf("%w: attribute key %q", ErrInvalidNode, key)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Attributes[key] = value
	return nil
}

func (t *Tree) SetSubfield(id, key, field string, value any) error {
	if key == "" || IsMeta(key) || field == "" {
		return fmt.Errorf("%w: attribute %q field %q", ErrInvalidNode, key, field)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	m, ok := n.Attributes[key].(map[string]any)
	if !ok {
		m = map[string]any{}
		n.Attributes[key] = m
	}
	m[field] = value
	return nil
}

func (t *Tree) Attribute(id, key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.index[id]
	if !ok {
		return nil, false
	}
	v, ok := n.Attributes[key]
	return cloneValue(v), ok
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Root returns a copy of the whole tree.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.Clone()
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}
