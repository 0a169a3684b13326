package crypto

import (
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// Nonce is the 12-byte value ChaCha20-Poly1305 requires per message.
type Nonce [chacha20poly1305.NonceSize]byte

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateNonce",
		"package":  "crypto",
	})
	logger.Debug("Function entry: generating new nonce")

	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"operation": "rand.Read",
		}).Error("failed to generate cryptographically secure nonce")
		return Nonce{}, err
	}
	return nonce, nil
}

// MaxMessageSize bounds the plaintext EncryptSymmetric accepts. Seal and
// EncryptWSPayload do not check it.
const MaxMessageSize = 1024 * 1024

// EncryptSymmetric encrypts message with ChaCha20-Poly1305 under key,
// providing both confidentiality and integrity. key is typically derived
// via DeriveSharedSecret from an X25519 agreement.
func EncryptSymmetric(message []byte, nonce Nonce, key [32]byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":     "EncryptSymmetric",
		"package":      "crypto",
		"message_size": len(message),
	})
	logger.Debug("Function entry: symmetric authenticated encryption")

	if len(message) == 0 {
		return nil, errors.New("empty message")
	}
	if len(message) > MaxMessageSize {
		return nil, errors.New("message too large")
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}

	out := aead.Seal(nil, nonce[:], message, nil)
	logger.WithFields(OperationFields("chacha20poly1305_seal", "ok", SecureFieldHash(out, "ciphertext"))).
		Debug("message encrypted")
	return out, nil
}
