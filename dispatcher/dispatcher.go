package dispatcher

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/clock"
	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/inbox"
	"github.com/shinkai-net/shinkai-node/limits"
	"github.com/shinkai-net/shinkai-node/subscription"
)

// Handler processes one recognized, decrypted-as-far-as-possible envelope
// and optionally returns reply content and a schema tag to send back to
// the sender. A nil reply (empty tag) means no response is
// sent on this connection.
type Handler func(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (replyContent string, replyTag envelope.SchemaTag, err error)

// Dispatcher classifies inbound
// envelopes, verifies and decrypts them as far as the node is able, and
// routes recognized schema tags to handlers.
type Dispatcher struct {
	Registry *identity.Registry
	Inbox    *inbox.Store

	Publisher  *subscription.Publisher
	Subscriber *subscription.Subscriber

	NodeName        string
	NodeEncryptKeys *crypto.KeyPair
	NodeSignKeys    *crypto.SignKeyPair

	clk      clock.Provider
	handlers map[envelope.SchemaTag]Handler
	wsHook   inbox.WSHook
}

// New builds a Dispatcher. SetHandler registers protocol handlers after
// construction; SetWSHook wires the WebSocket fanout.
func New(registry *identity.Registry, inboxStore *inbox.Store, nodeName string, encKeys *crypto.KeyPair, signKeys *crypto.SignKeyPair, clk clock.Provider) *Dispatcher {
	if clk == nil {
		clk = clock.Default
	}
	return &Dispatcher{
		Registry:        registry,
		Inbox:           inboxStore,
		NodeName:        nodeName,
		NodeEncryptKeys: encKeys,
		NodeSignKeys:    signKeys,
		clk:             clk,
		handlers:        make(map[envelope.SchemaTag]Handler),
	}
}

// SetHandler registers the handler invoked for envelopes carrying tag.
func (d *Dispatcher) SetHandler(tag envelope.SchemaTag, h Handler) {
	d.handlers[tag] = h
}

// SetWSHook wires the callback fired after every successful inbox insert,
// so the WebSocket fanout can deliver newly persisted messages.
func (d *Dispatcher) SetWSHook(hook inbox.WSHook) {
	d.wsHook = hook
}

// SetSubscriptionManagers wires the publisher and subscriber state machines
// driving the subscription protocol handlers registered by
// RegisterSubscriptionHandlers.
func (d *Dispatcher) SetSubscriptionManagers(pub *subscription.Publisher, sub *subscription.Subscriber) {
	d.Publisher = pub
	d.Subscriber = sub
}

// HandleInbound runs one raw, length-prefixed-framed envelope through the
// classify-and-route pipeline, returning the raw bytes of
// a reply envelope to write back on the same connection, or nil if none is
// due. A non-nil error means the connection should be dropped without any
// reply (decode failure or invalid signature); all other failure modes
// produce a signed error envelope instead of an error return.
func (d *Dispatcher) HandleInbound(ctx context.Context, raw []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "HandleInbound", "package": "dispatcher"})

	if err := limits.ValidateEnvelopeWire(raw); err != nil {
		logger.WithError(err).Debug("envelope exceeds wire size limit, dropping")
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.WithError(err).Debug("envelope decode failed, dropping")
		return nil, apierr.Wrap(apierr.KindDecodeError, "dispatcher: malformed envelope", err)
	}

	senderName, err := identity.Parse(env.ExternalMeta.SenderNode)
	if err != nil {
		return d.signedError(env.ExternalMeta.SenderNode, apierr.KindInvalidName, "dispatcher: malformed sender_node")
	}

	senderIdentity, err := d.Registry.Resolve(senderName)
	if err != nil {
		// Unknown sender: reply with a signed error rather than
		// silently dropping.
		logger.WithField("sender", senderName.String()).Debug("unknown sender")
		return d.signedError(env.ExternalMeta.SenderNode, apierr.KindIdentityNotFound, "dispatcher: unknown sender "+senderName.String())
	}
	if senderIdentity.Kind != identity.KindStandard {
		return d.signedError(env.ExternalMeta.SenderNode, apierr.KindInvalidName, "dispatcher: sender_node must resolve to a node identity")
	}
	senderSignPK := senderIdentity.Standard.NodeSignPK

	decrypted, err := envelope.DecryptOuterLayer(&env, d.NodeEncryptKeys, senderSignPK)
	if err != nil {
		if apiErr, ok := err.(*apierr.Error); ok && apiErr.Kind == apierr.KindSignatureInvalid {
			logger.Debug("signature invalid, dropping")
			return nil, err
		}
		if apiErr, ok := err.(*apierr.Error); ok && apiErr.Kind == apierr.KindDecodeError {
			logger.WithError(err).Debug("inner body decode failed, dropping")
			return nil, err
		}
		logger.WithError(err).Debug("outer decryption failed, replying with signed error")
		return d.signedErrorFrom(env.ExternalMeta.SenderNode, err)
	}

	return d.classify(ctx, decrypted)
}

func (d *Dispatcher) classify(ctx context.Context, env *envelope.Envelope) ([]byte, error) {
	if env.Body.Kind != envelope.BodyKindUnencrypted || env.Body.InternalMeta == nil || env.Body.MessageData == nil {
		return d.signedError(env.ExternalMeta.SenderNode, apierr.KindDecodeError, "dispatcher: envelope body missing metadata")
	}

	if env.Body.MessageData.Kind == envelope.MessageDataKindEncrypted {
		// ContentEncrypted: persistence only, decryption is the
		// recipient profile's responsibility.
		if err := d.persist(env); err != nil && err != inbox.ErrDuplicate {
			return d.signedErrorFrom(env.ExternalMeta.SenderNode, err)
		}
		return nil, nil
	}

	content := env.Body.MessageData.RawContent
	switch content {
	case "Ping":
		return d.reply(env, "Pong", envelope.SchemaTagNone)
	case "ACK":
		return nil, nil
	}

	tag := env.Body.MessageData.SchemaTag
	if err := envelope.ValidateSchemaTag(tag); err != nil {
		return d.signedError(env.ExternalMeta.SenderNode, apierr.KindDecodeError, err.Error())
	}

	if handler, ok := d.handlers[tag]; ok {
		replyContent, replyTag, err := handler(ctx, d, env)
		if err != nil {
			return d.signedErrorFrom(env.ExternalMeta.SenderNode, err)
		}
		if replyContent == "" && replyTag == envelope.SchemaTagNone {
			return nil, nil
		}
		return d.reply(env, replyContent, replyTag)
	}

	// Default persistence path: write to the inbox and ACK.
	if err := d.persist(env); err != nil && err != inbox.ErrDuplicate {
		return d.signedErrorFrom(env.ExternalMeta.SenderNode, err)
	}
	return d.reply(env, "ACK", envelope.SchemaTagNone)
}

func (d *Dispatcher) persist(env *envelope.Envelope) error {
	var parentHash *crypto.Hash
	if hexHash, ok := env.Body.InternalMeta.NodeAPIData["parent_hash"]; ok && hexHash != "" {
		raw, err := hex.DecodeString(hexHash)
		if err == nil && len(raw) == crypto.HashSize {
			var h crypto.Hash
			copy(h[:], raw)
			parentHash = &h
		}
	}
	_, err := d.Inbox.Insert(env.Body.InternalMeta.InboxName, env, parentHash, d.wsHook)
	return err
}

func (d *Dispatcher) reply(to *envelope.Envelope, content string, tag envelope.SchemaTag) ([]byte, error) {
	b := envelope.NewBuilder(d.clk)
	b.WithContent(content, tag)
	b.WithRouting(to.Body.InternalMeta.RecipientSubidentity, to.Body.InternalMeta.SenderSubidentity, to.Body.InternalMeta.InboxName)
	b.WithExternalMeta(d.NodeName, to.ExternalMeta.SenderNode, "", nil)

	replyEnv, err := b.Build(d.NodeSignKeys.Private)
	if err != nil {
		return nil, err
	}
	return json.Marshal(replyEnv)
}

func (d *Dispatcher) signedError(recipientNode string, kind apierr.Kind, message string) ([]byte, error) {
	return d.signedErrorFrom(recipientNode, apierr.New(kind, message))
}

func (d *Dispatcher) signedErrorFrom(recipientNode string, cause error) ([]byte, error) {
	b := envelope.NewBuilder(d.clk)
	b.WithContent(cause.Error(), envelope.SchemaTagNone)
	b.WithRouting("", "", "inbox::error::error::false")
	b.WithExternalMeta(d.NodeName, recipientNode, "", nil)

	replyEnv, err := b.Build(d.NodeSignKeys.Private)
	if err != nil {
		return nil, err
	}
	return json.Marshal(replyEnv)
}
