package scene

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDefaultDocument_Renders(t *testing.T) {
	tree := NewTree()
	require.NoError(t, Render(DefaultDocument(), tree))

	root := tree.Root()
	var ids []string
	for _, c := range root.Children {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{"assets", "background", "camera", "ground"}, ids)
	// root + 4 top-level + 3 assets + cursor
	require.Equal(t, 9, tree.Len())

	cursor, ok := tree.Node("cursor")
	require.True(t, ok)
	require.Equal(t, "a-cursor", cursor.Type)
	require.Contains(t, cursor.Attributes["intersection-spawn"], "mixin: voxel")

	src, ok := tree.Attribute("ground", "src")
	require.True(t, ok)
	require.Equal(t, "#groundTexture", src)
}

func TestDocument_RoundTrip(t *testing.T) {
	doc := DefaultDocument()
	n, err := FromDocument(doc)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, n.Document()); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestFromDocument_Rejects(t *testing.T) {
	for label, doc := range map[string]map[string]any{
		"no type": {KeyID: "x"},
		"no id":   {KeyType: "a-entity"},
		"children not a map": {
			KeyType: "a-entity", KeyID: "x", KeyChildren: []any{},
		},
		"child not a map": {
			KeyType: "a-entity", KeyID: "x", KeyChildren: map[string]any{"y": "nope"},
		},
		"child key mismatch": {
			KeyType: "a-entity", KeyID: "x",
			KeyChildren: map[string]any{"y": map[string]any{KeyType: "a-box", KeyID: "z"}},
		},
	} {
		_, err := FromDocument(doc)
		require.ErrorIs(t, err, ErrInvalidNode, label)
	}
}

func TestTree_CreateNode(t *testing.T) {
	tree := NewTree()
	box := NewEntity("box-1")
	box.Attributes["position"] = map[string]any{"x": 1.0}
	require.NoError(t, tree.CreateNode(box))

	// The tree keeps its own copy.
	box.Attributes["position"].(map[string]any)["x"] = 9.0
	got, ok := tree.Node("box-1")
	require.True(t, ok)
	want := &Node{
		Type:       DefaultEntityType,
		ID:         "box-1",
		Attributes: map[string]any{"position": map[string]any{"x": 1.0}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("node mismatch (-want +got):\n%s", diff)
	}

	require.ErrorIs(t, tree.CreateNode(NewEntity("box-1")), ErrDuplicateID)
	require.ErrorIs(t, tree.CreateNode(NewEntity(RootID)), ErrDuplicateID)
	require.ErrorIs(t, tree.CreateNode(&Node{ID: "typeless"}), ErrInvalidNode)

	dup := NewEntity("parent")
	dup.Children = []*Node{NewEntity("twin"), NewEntity("twin")}
	require.ErrorIs(t, tree.CreateNode(dup), ErrDuplicateID)
	_, ok = tree.Node("parent")
	require.False(t, ok, "failed create must leave no trace")
}

func TestTree_Attributes(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.CreateNode(NewEntity("e")))

	require.NoError(t, tree.SetAttribute("e", "color", "red"))
	v, ok := tree.Attribute("e", "color")
	require.True(t, ok)
	require.Equal(t, "red", v)

	require.NoError(t, tree.SetSubfield("e", "position", "x", 1.5))
	require.NoError(t, tree.SetSubfield("e", "position", "y", 2.0))
	v, _ = tree.Attribute("e", "position")
	require.Equal(t, map[string]any{"x": 1.5, "y": 2.0}, v)

	// A scalar attribute is replaced by a map on the first subfield write.
	require.NoError(t, tree.SetSubfield("e", "color", "r", 255))
	v, _ = tree.Attribute("e", "color")
	require.Equal(t, map[string]any{"r": 255}, v)

	require.ErrorIs(t, tree.SetAttribute("missing", "color", "red"), ErrNodeNotFound)
	require.ErrorIs(t, tree.SetSubfield("missing", "position", "x", 0), ErrNodeNotFound)
	require.ErrorIs(t, tree.SetAttribute("e", KeyType, "a-box"), ErrInvalidNode)
	require.ErrorIs(t, tree.SetSubfield("e", "position", "", 0), ErrInvalidNode)

	_, ok = tree.Attribute("e", "nothing")
	require.False(t, ok)
}

func TestNewNodeID_Unique(t *testing.T) {
	a, b := NewNodeID("box"), NewNodeID("box")
	require.True(t, strings.HasPrefix(a, "box-"))
	require.Len(t, a, len("box-")+26)
	require.NotEqual(t, a, b)
	require.Equal(t, strings.ToLower(a), a)
}
