package crypto

import "crypto/sha256"

// HashSize is the size in bytes of a canonical envelope hash.
const HashSize = sha256.Size

// Hash represents a SHA-256 canonical hash, used to identify envelopes in
// inbox trees and for WebSocket deduplication.
type Hash [HashSize]byte

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}
