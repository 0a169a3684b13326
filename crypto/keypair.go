package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// KeyPair represents an X25519 key pair used for envelope encryption.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// SignKeyPair represents an Ed25519 key pair used for envelope signatures.
type SignKeyPair struct {
	Public  [ed25519.PublicKeySize]byte
	Private [ed25519.PrivateKeySize]byte
}

// GenerateKeyPair creates a new random X25519 key pair for message and
// outer-layer encryption.
func GenerateKeyPair() (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"package":  "crypto",
	})
	logger.Debug("generating new X25519 key pair")

	var privateKey [32]byte
	if _, err := rand.Read(privateKey[:]); err != nil {
		logger.WithError(err).Error("failed to read random entropy for key pair")
		return nil, err
	}
	clamp(&privateKey)

	var publicKey [32]byte
	curve25519.ScalarBaseMult(&publicKey, &privateKey)

	logger.WithFields(OperationFields("generate_x25519", "ok", SecureFieldHash(publicKey[:], "public_key"))).
		Debug("key pair generated")
	return &KeyPair{Public: publicKey, Private: privateKey}, nil
}

// FromSecretKey creates a key pair from an existing, unclamped private key.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	var privateKey [32]byte
	copy(privateKey[:], secretKey[:])
	clamp(&privateKey)

	var publicKey [32]byte
	curve25519.ScalarBaseMult(&publicKey, &privateKey)

	kp := &KeyPair{Public: publicKey, Private: secretKey}
	ZeroBytes(privateKey[:])
	return kp, nil
}

// clamp applies the RFC 7748 Curve25519 clamping rules to a private key in
// place.
func clamp(privateKey *[32]byte) {
	privateKey[0] &= 248
	privateKey[31] &= 127
	privateKey[31] |= 64
}

// GenerateSignKeyPair creates a new random Ed25519 signature key pair.
func GenerateSignKeyPair() (*SignKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	kp := &SignKeyPair{}
	copy(kp.Public[:], pub)
	copy(kp.Private[:], priv)
	return kp, nil
}

// SignKeyPairFromSeed derives an Ed25519 key pair from a 32-byte seed.
func SignKeyPairFromSeed(seed [32]byte) *SignKeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	kp := &SignKeyPair{}
	copy(kp.Public[:], priv.Public().(ed25519.PublicKey))
	copy(kp.Private[:], priv)
	return kp
}

// isZeroKey reports whether key consists entirely of zero bytes.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
