package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNetwork(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ETHEREUM", NetworkEthereum, true},
		{"ethereum", NetworkEthereum, true},
		{" Ethereum ", NetworkEthereum, true},
		{"BITCOIN", NetworkBitcoin, true},
		{"bitcoin", NetworkBitcoin, true},
		{"DOGECOIN", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := NormalizeNetwork(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestStringArrayRoundTrip(t *testing.T) {
	arr := StringArray{"0xabc", "0xdef"}

	value, err := arr.Value()
	require.NoError(t, err)

	var decoded StringArray
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, arr, decoded)

	assert.True(t, decoded.Contains("0xabc"))
	assert.False(t, decoded.Contains("0x123"))
}

func TestStringArrayScanNull(t *testing.T) {
	var arr StringArray
	require.NoError(t, arr.Scan(nil))
	assert.Empty(t, arr)
	assert.False(t, arr.Contains("anything"))
}
