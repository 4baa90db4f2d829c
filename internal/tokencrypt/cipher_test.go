package tokencrypt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	for _, plain := range []string{"ya29.a0AfH6SMB", "", "ünïcode token ✓"} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		require.Contains(t, enc, ":")

		got, err := c.Decrypt(enc)
		require.NoError(t, err)
		require.Equal(t, plain, got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	a, err := c.Encrypt("refresh-token")
	require.NoError(t, err)
	b, err := c.Encrypt("refresh-token")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	ivA, _, _ := strings.Cut(a, ":")
	ivB, _, _ := strings.Cut(b, ":")
	require.NotEqual(t, ivA, ivB)

	for _, v := range []string{a, b} {
		got, err := c.Decrypt(v)
		require.NoError(t, err)
		require.Equal(t, "refresh-token", got)
	}
}

func TestDecryptIsSelfContained(t *testing.T) {
	first, err := New(testSecret)
	require.NoError(t, err)
	enc, err := first.Encrypt("access")
	require.NoError(t, err)

	second, err := New(testSecret)
	require.NoError(t, err)
	got, err := second.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "access", got)
}

func TestDecryptRejectsBadInput(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	for _, v := range []string{"", "nocolon", ":abcd", "zz:abcd", "00ff:zz"} {
		_, err := c.Decrypt(v)
		require.ErrorIs(t, err, ErrMalformed, v)
	}

	other, err := New(strings.Repeat("x", 32))
	require.NoError(t, err)
	enc, err := other.Encrypt("secret")
	require.NoError(t, err)
	_, err = c.Decrypt(enc)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMalformed)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
