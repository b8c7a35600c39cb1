package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountNocks(t *testing.T) {
	cases := []struct {
		nicks Amount
		want  string
	}{
		{0, "0"},
		{1, "0.0000152587890625"},
		{NicksPerNock, "1"},
		{NicksPerNock + NicksPerNock/2, "1.5"},
		{500, "0.00762939453125"},
		{65536 * 1_000_000, "1000000"},
		{Amount(1) << 48, "4294967296"},
		{Amount(^uint64(0)), "281474976710655.9999847412109375"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.nicks.Nocks(), "nicks=%d", uint64(tc.nicks))
	}
}

func TestAmountString(t *testing.T) {
	require.Equal(t, "18446744073709551615", Amount(^uint64(0)).String())
}
