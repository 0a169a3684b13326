package envelope

import (
	"fmt"

	"github.com/shinkai-net/shinkai-node/clock"
	"github.com/shinkai-net/shinkai-node/crypto"
)

// Builder accumulates raw content, schema, internal metadata, and
// external metadata, then produces a signed, optionally encrypted
// Envelope.
type Builder struct {
	clock clock.Provider

	rawContent string
	schemaTag  SchemaTag

	senderSubidentity    string
	recipientSubidentity string
	inboxName            string

	senderNode    string
	recipientNode string
	intraSender   string
	other         map[string]string

	encryptContent        bool
	recipientProfileEncPK [32]byte
	encryptBody           bool
	recipientNodeEncPK    [32]byte
}

// NewBuilder starts a Builder using clk to fill an absent timestamp.
func NewBuilder(clk clock.Provider) *Builder {
	if clk == nil {
		clk = clock.Default
	}
	return &Builder{clock: clk}
}

// WithContent sets the plaintext payload and its schema tag.
func (b *Builder) WithContent(rawContent string, schemaTag SchemaTag) *Builder {
	b.rawContent = rawContent
	b.schemaTag = schemaTag
	return b
}

// WithRouting sets the internal routing fields carried inside the outer
// encryption layer.
func (b *Builder) WithRouting(senderSubidentity, recipientSubidentity, inboxName string) *Builder {
	b.senderSubidentity = senderSubidentity
	b.recipientSubidentity = recipientSubidentity
	b.inboxName = inboxName
	return b
}

// WithExternalMeta sets the fields carried outside the outer encryption
// layer.
func (b *Builder) WithExternalMeta(senderNode, recipientNode, intraSender string, other map[string]string) *Builder {
	b.senderNode = senderNode
	b.recipientNode = recipientNode
	b.intraSender = intraSender
	b.other = other
	return b
}

// EncryptContentFor requests that message_data be encrypted under an
// ephemeral key derived against the recipient profile's encryption public
// key.
func (b *Builder) EncryptContentFor(recipientProfileEncPK [32]byte) *Builder {
	b.encryptContent = true
	b.recipientProfileEncPK = recipientProfileEncPK
	return b
}

// EncryptBodyFor requests that the full body be sealed under the
// recipient node's encryption public key (outer layer).
func (b *Builder) EncryptBodyFor(recipientNodeEncPK [32]byte) *Builder {
	b.encryptBody = true
	b.recipientNodeEncPK = recipientNodeEncPK
	return b
}

// Build assembles, optionally encrypts, and signs the envelope with the
// sender's node signature secret key.
func (b *Builder) Build(senderSignSK [64]byte) (*Envelope, error) {
	if b.senderNode == "" || b.recipientNode == "" {
		return nil, fmt.Errorf("%w: sender_node/recipient_node", ErrMissingField)
	}
	if b.inboxName == "" {
		return nil, fmt.Errorf("%w: inbox_name", ErrMissingField)
	}

	messageData := MessageData{
		Kind:       MessageDataKindUnencrypted,
		RawContent: b.rawContent,
		SchemaTag:  b.schemaTag,
	}
	contentMethod := EncryptionMethodNone

	if b.encryptContent {
		encrypted, err := b.encryptMessageData(&messageData)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryptionFailure, err)
		}
		messageData = *encrypted
		contentMethod = EncryptionMethodX25519ChaCha20Poly1305
	}

	internalMeta := &InternalMeta{
		SenderSubidentity:       b.senderSubidentity,
		RecipientSubidentity:    b.recipientSubidentity,
		InboxName:               b.inboxName,
		ContentEncryptionMethod: contentMethod,
	}

	body := Body{
		Kind:         BodyKindUnencrypted,
		InternalMeta: internalMeta,
		MessageData:  &messageData,
	}

	env := &Envelope{
		Body: body,
		ExternalMeta: ExternalMeta{
			SenderNode:    b.senderNode,
			RecipientNode: b.recipientNode,
			Timestamp:     b.clock.Now().UTC(),
			IntraSender:   b.intraSender,
			Other:         b.other,
		},
		EncryptionMethodOuter: EncryptionMethodNone,
	}

	if b.encryptBody {
		if err := b.sealBody(env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryptionFailure, err)
		}
	}

	if err := Sign(env, senderSignSK); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailure, err)
	}
	return env, nil
}

func (b *Builder) encryptMessageData(plain *MessageData) (*MessageData, error) {
	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKeyPair(ephemeral)

	sharedKey, err := crypto.DeriveSharedSecret(b.recipientProfileEncPK, ephemeral.Private)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(sharedKey[:])

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}
	plaintext, err := plainMessageDataBytes(plain)
	if err != nil {
		return nil, err
	}
	ciphertext, err := crypto.EncryptSymmetric(plaintext, nonce, sharedKey)
	if err != nil {
		return nil, err
	}
	return &MessageData{
		Kind:               MessageDataKindEncrypted,
		Ciphertext:         ciphertext,
		Nonce:              [12]byte(nonce),
		EphemeralPublicKey: ephemeral.Public,
	}, nil
}

func (b *Builder) sealBody(env *Envelope) error {
	inner := unencryptedBodyWire{InternalMeta: env.Body.InternalMeta, MessageData: env.Body.MessageData}
	plaintext, err := marshalBodyInner(inner)
	if err != nil {
		return err
	}
	ciphertext, err := crypto.Seal(plaintext, b.recipientNodeEncPK)
	if err != nil {
		return err
	}
	env.Body = Body{Kind: BodyKindEncrypted, Ciphertext: ciphertext}
	env.EncryptionMethodOuter = EncryptionMethodX25519ChaCha20Poly1305
	return nil
}
