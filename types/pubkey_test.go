package types

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func testKeyBytes(seed byte) []byte {
	b := make([]byte, PublicKeySize)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func TestDecodePublicKey(t *testing.T) {
	raw := base58.Encode(testKeyBytes(7))

	pk, err := DecodePublicKey(raw)
	require.NoError(t, err)
	require.Equal(t, testKeyBytes(7), pk[:])
	require.Equal(t, raw, pk.String())
	require.Equal(t, pk, MustDecodePublicKey(pk.String()))
}

func TestDecodePublicKey_LeadingZeros(t *testing.T) {
	b := testKeyBytes(1)
	b[0], b[1] = 0, 0
	raw := base58.Encode(b)
	require.True(t, strings.HasPrefix(raw, "11"))

	pk, err := DecodePublicKey(raw)
	require.NoError(t, err)
	require.Equal(t, b, pk[:])
}

func TestDecodePublicKey_Rejects(t *testing.T) {
	valid := base58.Encode(testKeyBytes(3))

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrEmptyPublicKey},
		{"truncated", valid[:len(valid)-10], ErrPublicKeyLength},
		{"short", base58.Encode([]byte{1, 2, 3}), ErrPublicKeyLength},
		{"overlong", base58.Encode(append(testKeyBytes(3), 0xff)), ErrPublicKeyLength},
		{"huge", strings.Repeat("z", 4096), ErrPublicKeyLength},
		{"zero in alphabet", "0" + valid[1:], ErrPublicKeyCharset},
		{"capital O", "O" + valid[1:], ErrPublicKeyCharset},
		{"whitespace", " " + valid, ErrPublicKeyCharset},
		{"non-ascii", valid[:10] + "é" + valid[12:], ErrPublicKeyCharset},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePublicKey(tc.raw)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, ErrInvalidPublicKey)
		})
	}
}

func TestMustDecodePublicKey_Panics(t *testing.T) {
	require.Panics(t, func() { MustDecodePublicKey("") })
}

func TestPublicKeyShort(t *testing.T) {
	pk := MustDecodePublicKey(base58.Encode(testKeyBytes(9)))
	s := pk.Short()
	full := pk.String()
	require.True(t, strings.HasPrefix(s, full[:8]))
	require.True(t, strings.HasSuffix(s, full[len(full)-8:]))
}
