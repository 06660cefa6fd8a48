package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateNonce(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantLen int
	}{
		{"128-bit nonce", NonceSize128, 22},
		{"256-bit nonce", NonceSize256, 43},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := GenerateNonce(tt.size)
			require.NoError(t, err)
			require.Len(t, n, tt.wantLen)

			n2, err := GenerateNonce(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, n, n2, "nonces should be unique")
		})
	}
}

func TestGenerateNonce_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		n, err := GenerateNonce(size)
		require.Error(t, err)
		require.Empty(t, n)
	}
}

func TestEqualNonce(t *testing.T) {
	require.True(t, EqualNonce("abc", "abc"))
	require.False(t, EqualNonce("abc", "abd"))
	require.False(t, EqualNonce("abc", ""))
}
