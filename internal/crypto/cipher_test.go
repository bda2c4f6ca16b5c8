package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher("0123456789abcdef0123456789abcdef", "")
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{
		"hunter2",
		"",
		"pässwörd with unicode ☃",
		strings.Repeat("x", 4096),
	} {
		envelope, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := c.Decrypt(envelope)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptProducesUniqueNonces(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("same-input")
	require.NoError(t, err)
	second, err := c.Encrypt("same-input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh nonce per encryption")
}

func TestEncryptIsIdempotentOnEnvelopes(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	again, err := c.Encrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, envelope, again, "already-encrypted value must not be re-encrypted")
}

func TestIsEnvelope(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	assert.True(t, IsEnvelope(envelope))
	assert.False(t, IsEnvelope("plain-password"))
	assert.False(t, IsEnvelope(""))
	assert.False(t, IsEnvelope("enc:v1:notbase64:::"))
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	require.Len(t, parts, 5)

	// Flip one byte of the ciphertext.
	raw, err := base64.StdEncoding.DecodeString(parts[4])
	require.NoError(t, err)
	raw[0] ^= 0xff
	parts[4] = base64.StdEncoding.EncodeToString(raw)

	_, err = c.Decrypt(strings.Join(parts, ":"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptTamperedTag(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	raw, err := base64.StdEncoding.DecodeString(parts[3])
	require.NoError(t, err)
	raw[3] ^= 0x01
	parts[3] = base64.StdEncoding.EncodeToString(raw)

	_, err = c.Decrypt(strings.Join(parts, ":"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	c := newTestCipher(t)

	for _, input := range []string{
		"",
		"plain",
		"enc:v2:a:b:c",
		"enc:v1:a:b",
		"enc:v1:!!!:!!!:!!!",
	} {
		_, err := c.Decrypt(input)
		assert.ErrorIs(t, err, ErrMalformedEnvelope, "input %q", input)
	}
}

func TestDerivedKeyFallback(t *testing.T) {
	c, err := NewCipher("too-short", "fallback-secret")
	require.NoError(t, err)
	assert.True(t, c.UsesDerivedKey())

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	// A second cipher derived from the same secret can open it.
	c2, err := NewCipher("", "fallback-secret")
	require.NoError(t, err)
	got, err := c2.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	// A cipher with different key material cannot.
	other := newTestCipher(t)
	_, err = other.Decrypt(envelope)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestNewCipherRequiresKeyMaterial(t *testing.T) {
	_, err := NewCipher("", "")
	assert.ErrorIs(t, err, ErrNoKeyMaterial)
}
