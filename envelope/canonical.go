package envelope

import (
	"encoding/json"

	"github.com/shinkai-net/shinkai-node/crypto"
)

// CanonicalBytes serializes e with external_meta.signature zeroed, giving
// the byte sequence the signature is computed over and the canonical hash
// is computed from.
func CanonicalBytes(e *Envelope) ([]byte, error) {
	clone := *e
	clone.ExternalMeta.Signature = [64]byte{}
	return json.Marshal(clone)
}

// CanonicalHash returns SHA-256 of e's canonical bytes. Used for inbox tree
// parent pointers and WebSocket deduplication.
func CanonicalHash(e *Envelope) (crypto.Hash, error) {
	raw, err := CanonicalBytes(e)
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.SHA256(raw), nil
}

// Sign computes the envelope's signature over its canonical bytes and
// writes it into external_meta.signature.
func Sign(e *Envelope, senderSignSK [64]byte) error {
	raw, err := CanonicalBytes(e)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(raw, senderSignSK)
	if err != nil {
		return err
	}
	e.ExternalMeta.Signature = [64]byte(sig)
	return nil
}

// Verify reports whether e's signature is valid for senderSignPK.
func Verify(e *Envelope, senderSignPK [32]byte) (bool, error) {
	raw, err := CanonicalBytes(e)
	if err != nil {
		return false, err
	}
	return crypto.Verify(raw, crypto.Signature(e.ExternalMeta.Signature), senderSignPK), nil
}
