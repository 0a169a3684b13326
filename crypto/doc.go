// Package crypto implements the cryptographic primitives behind the
// envelope format: X25519 key agreement,
// Ed25519 signatures, ChaCha20-Poly1305 AEAD for message and outer-layer
// encryption, AES-256-GCM for WebSocket fanout, and the canonical SHA-256
// hash used to identify envelopes.
//
// # Key pairs
//
// Every identity (node, profile, or device) owns an X25519 encryption key
// pair and an Ed25519 signature key pair:
//
//	enc, err := crypto.GenerateKeyPair()
//	sig, err := crypto.GenerateSignKeyPair()
//
// # Outer-layer sealing
//
// The envelope's outer encryption ("body: Encrypted") is a one-shot,
// anonymous-sender seal against the recipient's known X25519 public key,
// built on a single-message Noise_N handshake (ephemeral sender key,
// pre-known responder static key, ChaCha20-Poly1305 transport cipher) —
// this is the X25519-ChaCha20-Poly1305 outer encryption method:
//
//	ciphertext, err := crypto.Seal(plaintext, recipientPub)
//	plaintext, err := crypto.Open(ciphertext, recipientKeyPair)
//
// # Symmetric content encryption
//
// Inner message_data "Encrypted" bodies use ChaCha20-Poly1305 directly with
// a key derived from an X25519 shared secret:
//
//	key, _ := crypto.DeriveSharedSecret(peerPub, myPriv)
//	ciphertext, err := crypto.EncryptSymmetric(plaintext, nonce, key)
//	plaintext, err := crypto.DecryptSymmetric(ciphertext, nonce, key)
//
// # WS fanout
//
// WebSocket fanout payloads are AES-256-GCM encrypted under a per-connection
// session key, with a fixed 12-zero-byte nonce (safe only because each
// session key is used for exactly one message before rotation on
// reconnect).
//
// # Secure memory handling
//
// Sensitive key material should be wiped after use:
//
//	defer crypto.ZeroBytes(keyPair.Private[:])
//
// [SecureWipe] uses a constant-time XOR that the compiler cannot optimize
// away, ensuring the memory is actually zeroed.
package crypto
