package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairProducesValidCurve25519Keys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, isZeroKey(kp.Public))
	assert.False(t, isZeroKey(kp.Private))
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	require.NoError(t, err)

	message := []byte("canonical envelope bytes")
	sig, err := Sign(message, kp.Private)
	require.NoError(t, err)

	assert.True(t, Verify(message, sig, kp.Public))
	assert.False(t, Verify([]byte("tampered"), sig, kp.Public))
}

func TestSealOpenRoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("outer layer message data")
	ciphertext, err := Seal(plaintext, recipient.Public)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	opened, err := Open(ciphertext, recipient)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenFailsForWrongRecipient(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := Seal([]byte("secret"), recipient.Public)
	require.NoError(t, err)

	_, err = Open(ciphertext, other)
	assert.Error(t, err)
}

func TestSymmetricEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	keyA, err := DeriveSharedSecret(bob.Public, alice.Private)
	require.NoError(t, err)
	keyB, err := DeriveSharedSecret(alice.Public, bob.Private)
	require.NoError(t, err)
	require.Equal(t, keyA, keyB)

	nonce, err := GenerateNonce()
	require.NoError(t, err)

	ciphertext, err := EncryptSymmetric([]byte("hello"), nonce, keyA)
	require.NoError(t, err)

	plaintext, err := DecryptSymmetric(ciphertext, nonce, keyB)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plaintext))
}

func TestWSPayloadEncryptDecryptRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	ciphertext, err := EncryptWSPayload([]byte(`{"message":"hi"}`), key)
	require.NoError(t, err)

	plaintext, err := DecryptWSPayload(ciphertext, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, string(plaintext))
}

func TestSHA256Deterministic(t *testing.T) {
	h1 := SHA256([]byte("envelope bytes"))
	h2 := SHA256([]byte("envelope bytes"))
	assert.Equal(t, h1, h2)
}
