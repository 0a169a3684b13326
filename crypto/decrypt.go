package crypto

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailure is returned when an AEAD open fails authentication.
var ErrDecryptionFailure = errors.New("decryption failed: message authentication failed")

// DecryptSymmetric decrypts and authenticates ciphertext under key using
// ChaCha20-Poly1305, the inverse of EncryptSymmetric.
func DecryptSymmetric(ciphertext []byte, nonce Nonce, key [32]byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("empty ciphertext")
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}

	out, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailure
	}
	return out, nil
}
