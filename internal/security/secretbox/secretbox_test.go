package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(seed byte) []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(base64.StdEncoding.EncodeToString(testKey(1)))
	require.NoError(t, err)

	msg := "service-role ✓ secreto"
	ct, err := box.Seal(msg)
	require.NoError(t, err)
	require.True(t, LooksSealed(ct))

	pt, err := box.Open(ct)
	require.NoError(t, err)
	require.Equal(t, msg, pt)
}

func TestOpen_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, err := New(hex.EncodeToString(testKey(7)))
	require.NoError(t, err)

	ct, err := box.Seal("top secret")
	require.NoError(t, err)
	parts := strings.Split(ct, "|")
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	bs[0] ^= 0xFF
	tampered := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	_, err = box.Open(tampered)
	require.Error(t, err)
}

func TestOpen_WrongKey(t *testing.T) {
	t.Parallel()
	a, err := New(string(testKey(40)))
	require.NoError(t, err)
	b, err := New(base64.RawStdEncoding.EncodeToString(testKey(90)))
	require.NoError(t, err)

	ct, err := a.Seal("x")
	require.NoError(t, err)
	_, err = b.Open(ct)
	require.Error(t, err)
}

func TestNew_RejectsShortKey(t *testing.T) {
	t.Parallel()
	_, err := New("too-short")
	require.Error(t, err)
	_, err = New("")
	require.Error(t, err)
}

func TestOpen_BadFormat(t *testing.T) {
	t.Parallel()
	box, err := New(base64.StdEncoding.EncodeToString(testKey(3)))
	require.NoError(t, err)
	_, err = box.Open("plain-value")
	require.ErrorIs(t, err, ErrFormat)
	require.False(t, LooksSealed("plain-value"))
	require.False(t, LooksSealed("eyJhbGciOi|xxx"))
}
