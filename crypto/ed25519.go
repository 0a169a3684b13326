package crypto

import (
	"crypto/ed25519"
	"errors"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
type Signature [SignatureSize]byte

// Sign creates an Ed25519 signature over message using the given private
// key (the full 64-byte ed25519 private key, as stored on SignKeyPair).
func Sign(message []byte, privateKey [ed25519.PrivateKeySize]byte) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	signatureBytes := ed25519.Sign(ed25519.PrivateKey(privateKey[:]), message)

	var signature Signature
	copy(signature[:], signatureBytes)
	return signature, nil
}

// Verify checks whether signature is valid for message under publicKey.
func Verify(message []byte, signature Signature, publicKey [ed25519.PublicKeySize]byte) bool {
	if len(message) == 0 {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), message, signature[:])
}
