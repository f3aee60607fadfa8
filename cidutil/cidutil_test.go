package cidutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/aincraft/name"
)

func TestCIDv1RawSHA256_Deterministic(t *testing.T) {
	a := CIDv1RawSHA256([]byte("hello"))
	b := CIDv1RawSHA256([]byte("hello"))
	require.NotEmpty(t, a)
	require.Equal(t, a, b)
	require.NotEqual(t, a, CIDv1RawSHA256([]byte("hello!")))
}

func TestNameCID_ComponentWise(t *testing.T) {
	a, err := NameCID(name.MustParse("/node-1/sync/seq=3"))
	require.NoError(t, err)
	b, err := NameCID(name.MustParse("/node-1/sync").Append(name.SequenceNum(3)))
	require.NoError(t, err)
	require.True(t, a.Equals(b))

	// A generic "seq=3" component differs from a typed one.
	c, err := NameCID(name.Name{name.Generic("node-1"), name.Generic("sync"), name.Generic("seq=3")})
	require.NoError(t, err)
	require.False(t, a.Equals(c))
}

func TestMatches_DetectsMismatch(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("payload"))
	require.NoError(t, err)
	require.True(t, Matches(id, []byte("payload")))
	require.False(t, Matches(id, []byte("tampered")))
}
