package envelope

import (
	"encoding/json"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/crypto"
)

func marshalBodyInner(inner unencryptedBodyWire) ([]byte, error) {
	return json.Marshal(inner)
}

func unmarshalBodyInner(raw []byte) (unencryptedBodyWire, error) {
	var inner unencryptedBodyWire
	err := json.Unmarshal(raw, &inner)
	return inner, err
}

func plainMessageDataBytes(md *MessageData) ([]byte, error) {
	return json.Marshal(unencryptedMessageDataWire{RawContent: md.RawContent, SchemaTag: md.SchemaTag})
}

// DecryptOuterLayer opens an outer-encrypted body using the recipient
// node's keypair and verifies the envelope's signature against the
// sender's node signature public key. If the body is
// already Unencrypted, it is returned unchanged. Fails with
// DecryptionFailure on Noise tag mismatch, SignatureInvalid on a bad
// signature.
func DecryptOuterLayer(e *Envelope, myNodeKeyPair *crypto.KeyPair, senderNodeSignPK [32]byte) (*Envelope, error) {
	valid, err := Verify(e, senderNodeSignPK)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, apierr.New(apierr.KindSignatureInvalid, "envelope: signature verification failed")
	}

	if e.Body.Kind != BodyKindEncrypted {
		clone := *e
		return &clone, nil
	}

	plaintext, err := crypto.Open(e.Body.Ciphertext, myNodeKeyPair)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDecryptionFailure, "envelope: outer layer open failed", err)
	}

	inner, err := unmarshalBodyInner(plaintext)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDecodeError, "envelope: malformed inner body", err)
	}

	clone := *e
	clone.Body = Body{
		Kind:         BodyKindUnencrypted,
		InternalMeta: inner.InternalMeta,
		MessageData:  inner.MessageData,
	}
	return &clone, nil
}

// DecryptContent decrypts an Encrypted message_data payload. Content
// decryption is the recipient profile's responsibility, not
// the node's; the node only calls this when acting on behalf of a local
// profile that holds sharedKey.
func DecryptContent(md *MessageData, sharedKey [32]byte) (rawContent string, schemaTag SchemaTag, err error) {
	if md.Kind != MessageDataKindEncrypted {
		return md.RawContent, md.SchemaTag, nil
	}
	plaintext, err := crypto.DecryptSymmetric(md.Ciphertext, crypto.Nonce(md.Nonce), sharedKey)
	if err != nil {
		return "", "", err
	}
	var wire unencryptedMessageDataWire
	if err := json.Unmarshal(plaintext, &wire); err != nil {
		return "", "", err
	}
	return wire.RawContent, wire.SchemaTag, nil
}
