package packet

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/aincraft/name"
)

// digestSigner "signs" with a plain sha256 so the tests stay independent of keys.
type digestSigner struct{ key name.Name }

func (s digestSigner) KeyName() name.Name { return s.key }
func (s digestSigner) SigType() SigType   { return SigEd25519 }
func (s digestSigner) Sign(msg []byte) ([]byte, error) {
	sum := sha256.Sum256(msg)
	return sum[:], nil
}

func signed(t *testing.T) *Packet {
	t.Helper()
	p := New(name.MustParse("/node-1/aincraft/sync/seq=2"), []byte("hello"), time.Minute)
	require.NoError(t, p.Sign(digestSigner{key: name.MustParse("/node-1/KEY/1")}))
	return p
}

func TestPacket_SignAndDecodeRoundTrip(t *testing.T) {
	p := signed(t)

	got, err := Decode(p.Wire())
	require.NoError(t, err)
	require.True(t, got.Name.Equal(p.Name))
	require.Equal(t, time.Minute, got.Freshness)
	require.Equal(t, []byte("hello"), got.Content)
	require.Equal(t, SigEd25519, got.SigInfo.Type)
	require.Equal(t, "/node-1/KEY/1", got.KeyLocator().String())
	require.Equal(t, p.SigValue, got.SigValue)
	require.Equal(t, p.SignedPortion(), got.SignedPortion())
	require.Equal(t, p.Wire(), got.Wire())

	seq, ok := got.SequenceNum()
	require.True(t, ok)
	require.Equal(t, uint64(2), seq)
}

func TestPacket_ValidityPeriodSurvivesEncoding(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	p := New(name.MustParse("/node-1/KEY/1/self/v=1"), []byte{1, 2, 3}, 0)
	p.SigInfo = &SigInfo{Validity: &ValidityPeriod{NotBefore: start, NotAfter: start.Add(time.Hour)}}
	require.NoError(t, p.Sign(digestSigner{key: name.MustParse("/node-1/KEY/1")}))

	got, err := Decode(p.Wire())
	require.NoError(t, err)
	require.NotNil(t, got.SigInfo.Validity)
	require.True(t, got.SigInfo.Validity.NotBefore.Equal(start))
	require.True(t, got.SigInfo.Validity.NotAfter.Equal(start.Add(time.Hour)))
	require.True(t, got.SigInfo.Validity.Contains(start.Add(time.Minute)))
	require.False(t, got.SigInfo.Validity.Contains(start.Add(2*time.Hour)))
}

func TestPacket_TamperedContentChangesSignedPortion(t *testing.T) {
	p := signed(t)
	wire := append([]byte(nil), p.Wire()...)
	idx := indexOf(wire, []byte("hello"))
	require.GreaterOrEqual(t, idx, 0)
	wire[idx] = 'j'

	got, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, []byte("jello"), got.Content)
	require.NotEqual(t, p.SignedPortion(), got.SignedPortion())
	require.Equal(t, p.SigValue, got.SigValue)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{0xff, 0xff, 0xff},
		{0x1a, 0x01, 0x00},       // content only, no name
		{0x0a, 0x10, 0x0a, 0x02}, // truncated name
	} {
		_, err := Decode(b)
		require.ErrorIs(t, err, ErrMalformed)
	}
}

func TestPacket_DigestIsStable(t *testing.T) {
	p := signed(t)
	a, err := p.Digest()
	require.NoError(t, err)
	got, err := Decode(p.Wire())
	require.NoError(t, err)
	b, err := got.Digest()
	require.NoError(t, err)
	require.True(t, a.Equals(b))
}

func TestPacket_SignRequiresSigner(t *testing.T) {
	p := New(name.MustParse("/x"), nil, 0)
	require.ErrorIs(t, p.Sign(nil), ErrNoSigner)
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}
