package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// cipherSuite is the fixed Noise cipher suite used for outer-layer sealing:
// X25519 for DH, ChaCha20-Poly1305 for the AEAD, SHA-256 for the hash.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Seal performs a one-shot, anonymous-sender encryption of plaintext
// against recipientPub, using a single-message Noise_N handshake: an
// ephemeral sender key is generated internally, Diffie-Hellman'd against
// the recipient's known static key, and used to derive the ChaCha20-
// Poly1305 key that authenticates and encrypts plaintext. The returned
// ciphertext embeds the ephemeral public key and carries its own AEAD tag;
// there is no separate nonce to track.
func Seal(plaintext []byte, recipientPub [32]byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Seal",
		"package":  "crypto",
	})

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     noise.HandshakeN,
		Initiator:   true,
		Random:      rand.Reader,
		PeerStatic:  recipientPub[:],
	})
	if err != nil {
		return nil, fmt.Errorf("seal: init handshake: %w", err)
	}

	ciphertext, _, _, err := hs.WriteMessage(nil, plaintext)
	if err != nil {
		logger.WithFields(OperationFields("noise_seal", "error")).WithError(err).Error("outer-layer seal failed")
		return nil, fmt.Errorf("seal: write message: %w", err)
	}
	logger.WithFields(OperationFields("noise_seal", "ok", SecureFieldHash(ciphertext, "ciphertext"))).
		Debug("outer layer sealed")
	return ciphertext, nil
}

// Open reverses Seal: it completes the responder side of the one-message
// Noise_N handshake using the recipient's static key pair and returns the
// decrypted plaintext. It fails with ErrDecryptionFailure-equivalent error
// on any authentication tag mismatch.
func Open(ciphertext []byte, recipient *KeyPair) ([]byte, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     noise.HandshakeN,
		Initiator:   false,
		Random:      rand.Reader,
		StaticKeypair: noise.DHKey{
			Private: recipient.Private[:],
			Public:  recipient.Public[:],
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open: init handshake: %w", err)
	}

	plaintext, _, _, err := hs.ReadMessage(nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("open: %w", ErrDecryptionFailure)
	}
	return plaintext, nil
}
