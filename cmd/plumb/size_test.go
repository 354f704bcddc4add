package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSizeSuffixes(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"1234", 1234},
		{"1k", 1000},
		{"8Ki", 8192},
		{"4Mi", 4 * 1024 * 1024},
		{"2G", 2 * 1000 * 1000 * 1000},
	} {
		var b ByteSize
		require.NoError(t, b.Set(tc.in), tc.in)
		assert.Equal(t, tc.want, int(b), tc.in)
	}
}

func TestByteSizeRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "k", "Mi", "1x", "1kk"} {
		var b ByteSize
		assert.Error(t, b.Set(in), in)
	}
}
