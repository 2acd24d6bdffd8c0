package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewTokenEncryptor(testKey)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("ghp_exampletoken123")
	require.NoError(t, err)
	assert.NotEqual(t, "ghp_exampletoken123", ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "ghp_exampletoken123", plaintext)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	enc, err := NewTokenEncryptor(testKey)
	require.NoError(t, err)

	first, err := enc.Encrypt("same-token")
	require.NoError(t, err)
	second, err := enc.Encrypt("same-token")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	enc, err := NewTokenEncryptor(testKey)
	require.NoError(t, err)
	ciphertext, err := enc.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewTokenEncryptor(strings.Repeat("ab", 32))
	require.NoError(t, err)
	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestNewTokenEncryptorRejectsBadKeys(t *testing.T) {
	_, err := NewTokenEncryptor("")
	assert.Error(t, err)

	_, err = NewTokenEncryptor("abcd")
	assert.Error(t, err)

	_, err = NewTokenEncryptor("not-hex-" + strings.Repeat("z", 56))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, err := NewTokenEncryptor(testKey)
	require.NoError(t, err)

	_, err = enc.Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("AAAA")
	assert.Error(t, err)
}
