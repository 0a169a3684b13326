package envelope

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMissingField is returned by Builder.Build when a required field was
// never set.
var ErrMissingField = errors.New("envelope: missing required field")

// ErrEncryptionFailure is returned by Builder.Build when inner or outer
// encryption could not be completed.
var ErrEncryptionFailure = errors.New("envelope: encryption failure")

// EncryptionMethod names the cipher used for a layer of the envelope, or
// None if that layer carries plaintext.
type EncryptionMethod string

const (
	EncryptionMethodNone                   EncryptionMethod = "None"
	EncryptionMethodX25519ChaCha20Poly1305 EncryptionMethod = "X25519-ChaCha20-Poly1305"
)

// BodyKind discriminates Body's two variants.
type BodyKind uint8

const (
	BodyKindEncrypted BodyKind = iota
	BodyKindUnencrypted
)

// Body is the envelope's outer layer: opaque ciphertext only the
// recipient node's encryption key can open, or the plaintext
// internal_meta/message_data pair.
type Body struct {
	Kind BodyKind

	// Encrypted fields. Nonce is unused for the Noise-sealed outer layer
	// (the handshake ciphertext is self-describing) and is kept only so
	// the wire shape keeps the {ciphertext, nonce} pair.
	Ciphertext []byte
	Nonce      []byte

	// Unencrypted fields.
	InternalMeta *InternalMeta
	MessageData  *MessageData
}

// InternalMeta carries routing metadata that stays inside the outer
// encryption layer.
type InternalMeta struct {
	SenderSubidentity       string            `json:"sender_subidentity"`
	RecipientSubidentity    string            `json:"recipient_subidentity"`
	InboxName               string            `json:"inbox_name"`
	ContentEncryptionMethod EncryptionMethod  `json:"content_encryption_method"`
	NodeAPIData             map[string]string `json:"node_api_data,omitempty"`
}

// MessageDataKind discriminates MessageData's two variants.
type MessageDataKind uint8

const (
	MessageDataKindEncrypted MessageDataKind = iota
	MessageDataKindUnencrypted
)

// MessageData is the innermost payload: either ChaCha20-Poly1305
// ciphertext the recipient profile decrypts, or plaintext content tagged
// with a schema.
type MessageData struct {
	Kind MessageDataKind

	Ciphertext         []byte
	Nonce              [12]byte
	EphemeralPublicKey [32]byte

	RawContent string    `json:"raw_content"`
	SchemaTag  SchemaTag `json:"schema_tag"`
}

// ExternalMeta carries routing metadata that stays outside the outer
// encryption layer so nodes can route without decrypting the body.
type ExternalMeta struct {
	SenderNode    string            `json:"sender_node"`
	RecipientNode string            `json:"recipient_node"`
	Timestamp     time.Time         `json:"timestamp"`
	IntraSender   string            `json:"intra_sender"`
	Other         map[string]string `json:"other,omitempty"`
	Signature     [64]byte          `json:"signature"`
}

// Envelope is the signed/encrypted message carried between nodes.
type Envelope struct {
	Body                  Body             `json:"body"`
	ExternalMeta          ExternalMeta     `json:"external_meta"`
	EncryptionMethodOuter EncryptionMethod `json:"encryption_method_outer"`
}

// --- JSON wire encoding ---

type externalMetaWire struct {
	SenderNode    string            `json:"sender_node"`
	RecipientNode string            `json:"recipient_node"`
	Timestamp     time.Time         `json:"timestamp"`
	IntraSender   string            `json:"intra_sender"`
	Other         map[string]string `json:"other,omitempty"`
	Signature     string            `json:"signature"`
}

func (m ExternalMeta) MarshalJSON() ([]byte, error) {
	return json.Marshal(externalMetaWire{
		SenderNode:    m.SenderNode,
		RecipientNode: m.RecipientNode,
		Timestamp:     m.Timestamp,
		IntraSender:   m.IntraSender,
		Other:         m.Other,
		Signature:     hexEncode(m.Signature[:]),
	})
}

func (m *ExternalMeta) UnmarshalJSON(data []byte) error {
	var wire externalMetaWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	sig, err := hexDecode(wire.Signature)
	if err != nil {
		return err
	}
	if len(sig) != len(m.Signature) {
		return errors.New("envelope: signature must be 64 bytes")
	}
	m.SenderNode = wire.SenderNode
	m.RecipientNode = wire.RecipientNode
	m.Timestamp = wire.Timestamp
	m.IntraSender = wire.IntraSender
	m.Other = wire.Other
	copy(m.Signature[:], sig)
	return nil
}

type encryptedBodyWire struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

type unencryptedBodyWire struct {
	InternalMeta *InternalMeta `json:"internal_meta"`
	MessageData  *MessageData  `json:"message_data"`
}

func (b Body) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BodyKindEncrypted:
		return json.Marshal(map[string]encryptedBodyWire{
			"Encrypted": {Ciphertext: hexEncode(b.Ciphertext), Nonce: hexEncode(b.Nonce)},
		})
	case BodyKindUnencrypted:
		return json.Marshal(map[string]unencryptedBodyWire{
			"Unencrypted": {InternalMeta: b.InternalMeta, MessageData: b.MessageData},
		})
	default:
		return nil, ErrMissingField
	}
}

func (b *Body) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if inner, ok := raw["Encrypted"]; ok {
		var wire encryptedBodyWire
		if err := json.Unmarshal(inner, &wire); err != nil {
			return err
		}
		ciphertext, err := hexDecode(wire.Ciphertext)
		if err != nil {
			return err
		}
		nonce, err := hexDecode(wire.Nonce)
		if err != nil {
			return err
		}
		b.Kind = BodyKindEncrypted
		b.Ciphertext = ciphertext
		b.Nonce = nonce
		return nil
	}
	if inner, ok := raw["Unencrypted"]; ok {
		var wire unencryptedBodyWire
		if err := json.Unmarshal(inner, &wire); err != nil {
			return err
		}
		b.Kind = BodyKindUnencrypted
		b.InternalMeta = wire.InternalMeta
		b.MessageData = wire.MessageData
		return nil
	}
	return errors.New("envelope: body has neither Encrypted nor Unencrypted key")
}

type encryptedMessageDataWire struct {
	Ciphertext         string `json:"ciphertext"`
	Nonce              string `json:"nonce"`
	EphemeralPublicKey string `json:"ephemeral_public_key"`
}

type unencryptedMessageDataWire struct {
	RawContent string    `json:"raw_content"`
	SchemaTag  SchemaTag `json:"schema_tag"`
}

func (m MessageData) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case MessageDataKindEncrypted:
		return json.Marshal(map[string]encryptedMessageDataWire{
			"Encrypted": {
				Ciphertext:         hexEncode(m.Ciphertext),
				Nonce:              hexEncode(m.Nonce[:]),
				EphemeralPublicKey: hexEncode(m.EphemeralPublicKey[:]),
			},
		})
	case MessageDataKindUnencrypted:
		return json.Marshal(map[string]unencryptedMessageDataWire{
			"Unencrypted": {RawContent: m.RawContent, SchemaTag: m.SchemaTag},
		})
	default:
		return nil, ErrMissingField
	}
}

func (m *MessageData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if inner, ok := raw["Encrypted"]; ok {
		var wire encryptedMessageDataWire
		if err := json.Unmarshal(inner, &wire); err != nil {
			return err
		}
		ciphertext, err := hexDecode(wire.Ciphertext)
		if err != nil {
			return err
		}
		nonceBytes, err := hexDecode(wire.Nonce)
		if err != nil {
			return err
		}
		ephemeralBytes, err := hexDecode(wire.EphemeralPublicKey)
		if err != nil {
			return err
		}
		m.Kind = MessageDataKindEncrypted
		m.Ciphertext = ciphertext
		copy(m.Nonce[:], nonceBytes)
		copy(m.EphemeralPublicKey[:], ephemeralBytes)
		return nil
	}
	if inner, ok := raw["Unencrypted"]; ok {
		var wire unencryptedMessageDataWire
		if err := json.Unmarshal(inner, &wire); err != nil {
			return err
		}
		m.Kind = MessageDataKindUnencrypted
		m.RawContent = wire.RawContent
		m.SchemaTag = wire.SchemaTag
		return nil
	}
	return errors.New("envelope: message_data has neither Encrypted nor Unencrypted key")
}
