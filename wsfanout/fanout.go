package wsfanout

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/inbox"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// FanoutEvent is the wire shape pushed to a matching connection: ciphertext
// is the AES-256-GCM sealing of the JSON-encoded payload under the
// connection's shared_key.
type FanoutEvent struct {
	Topic      Topic             `json:"topic"`
	Subtopic   string            `json:"subtopic,omitempty"`
	Ciphertext string            `json:"ciphertext"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IsBinary   bool              `json:"is_binary"`
}

// Fanout tracks connections, their
// subscriptions, and their per-session AES-256-GCM key, and pushes encrypted
// updates to every matching, authorized connection.
type Fanout struct {
	Registry *identity.Registry
	Inbox    *inbox.Store

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[string]*Connection
	counter uint64
}

// New builds a Fanout checking subscriber identity and inbox ACLs through
// registry and inboxStore.
func New(registry *identity.Registry, inboxStore *inbox.Store) *Fanout {
	return &Fanout{
		Registry: registry,
		Inbox:    inboxStore,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Connection),
	}
}

// HandleUpgrade upgrades r to a WebSocket connection and serves it until
// the client disconnects.
func (f *Fanout) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("wsfanout: upgrade: %w", err)
	}

	f.mu.Lock()
	f.counter++
	id := fmt.Sprintf("ws-%d", f.counter)
	c := newConnection(id, conn)
	f.conns[id] = c
	f.mu.Unlock()

	logrus.WithFields(logrus.Fields{"function": "HandleUpgrade", "package": "wsfanout", "connection": id}).
		Info("websocket connection established")

	go f.writePump(c)
	f.readLoop(c)
	return nil
}

func (f *Fanout) readLoop(c *Connection) {
	logger := logrus.WithFields(logrus.Fields{"function": "readLoop", "package": "wsfanout", "connection": c.id})
	defer f.drop(c)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			logger.WithError(err).Debug("connection closed")
			return
		}

		var env envelope.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.WithError(err).Debug("malformed WSMessage envelope, dropping message")
			continue
		}
		if env.Body.MessageData == nil || env.Body.MessageData.SchemaTag != envelope.SchemaTagWSMessage {
			logger.Debug("first/control message was not WSMessage, dropping")
			continue
		}

		senderName, err := identity.Parse(env.ExternalMeta.SenderNode)
		if err != nil {
			logger.WithError(err).Debug("malformed sender_node, dropping")
			continue
		}
		senderIdentity, err := f.Registry.Resolve(senderName)
		if err != nil {
			logger.WithField("sender", senderName.String()).Debug("unknown subscriber, dropping")
			continue
		}
		signPK := identitySignPK(senderIdentity)
		valid, err := envelope.Verify(&env, signPK)
		if err != nil || !valid {
			logger.Debug("signature invalid, dropping")
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal([]byte(env.Body.MessageData.RawContent), &msg); err != nil {
			logger.WithError(err).Debug("malformed WSMessage payload, dropping")
			continue
		}

		c.mu.Lock()
		c.subscriber = senderName
		c.mu.Unlock()

		if msg.SharedKey != "" {
			raw, err := hex.DecodeString(msg.SharedKey)
			if err == nil && len(raw) == 32 {
				var key [32]byte
				copy(key[:], raw)
				c.setSharedKey(key)
			}
		}

		for _, sub := range msg.Subscriptions {
			f.applySubscribe(c, senderName, sub)
		}
		for _, unsub := range msg.Unsubscriptions {
			c.removeSubscription(unsub.Topic, unsub.Subtopic)
		}
	}
}

func identitySignPK(id identity.Identity) [32]byte {
	switch id.Kind {
	case identity.KindStandard:
		if id.Standard.ProfileSignPK != nil {
			return *id.Standard.ProfileSignPK
		}
		return id.Standard.NodeSignPK
	case identity.KindDevice:
		return id.Device.DeviceSignPK
	default:
		return [32]byte{}
	}
}

// applySubscribe validates sub against ACLs before recording it: Inbox and
// SmartInboxes topics require at least ReadOnly on the named inbox.
// Rejected subscriptions are dropped silently rather than
// erroring the connection.
func (f *Fanout) applySubscribe(c *Connection, subscriber identity.Name, sub TopicSubtopic) {
	logger := logrus.WithFields(logrus.Fields{"function": "applySubscribe", "package": "wsfanout", "topic": sub.Topic})
	if !ValidTopic(sub.Topic) {
		logger.Debug("unknown topic, dropping subscription")
		return
	}
	if requiresInboxACL(sub.Topic) && sub.Subtopic != "" {
		if err := f.Inbox.Authorize(sub.Subtopic, subscriber, identity.InboxRoleReadOnly); err != nil {
			logger.WithField("inbox", sub.Subtopic).Debug("subscriber lacks ACL, dropping subscription")
			return
		}
	}
	c.addSubscription(sub.Topic, sub.Subtopic)
}

func (f *Fanout) writePump(c *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.writer:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Fanout) drop(c *Connection) {
	f.mu.Lock()
	delete(f.conns, c.id)
	f.mu.Unlock()
	close(c.writer)
	_ = c.conn.Close()
}

// HandleUpdate fans payload out to every connection subscribed to (topic,
// subtopic), authorized and encrypted per-connection.
// Connections without a shared key, or without ACL access to an
// Inbox/SmartInboxes subtopic, are silently skipped rather than erroring.
// Each delivery consumes the connection's shared key, so the connection
// receives no further events until its client sends a new shared_key.
func (f *Fanout) HandleUpdate(topic Topic, subtopic string, payload []byte, metadata map[string]string, isBinary bool) {
	f.mu.RLock()
	conns := make([]*Connection, 0, len(f.conns))
	for _, c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.RUnlock()

	logger := logrus.WithFields(logrus.Fields{"function": "HandleUpdate", "package": "wsfanout", "topic": topic, "subtopic": subtopic})

	for _, c := range conns {
		if !c.matches(topic, subtopic) {
			continue
		}
		if requiresInboxACL(topic) && subtopic != "" {
			c.mu.Lock()
			subscriber := c.subscriber
			c.mu.Unlock()
			if err := f.Inbox.Authorize(subtopic, subscriber, identity.InboxRoleReadOnly); err != nil {
				continue
			}
		}
		// Take the key and clear it in one step: each shared_key seals
		// exactly one event under the fixed zero nonce.
		c.mu.Lock()
		key, ok := c.sharedKey, c.hasKey
		c.hasKey = false
		c.mu.Unlock()
		if !ok {
			logger.WithField("connection", c.id).Debug("no shared_key established, skipping delivery")
			continue
		}

		message := string(payload)
		if isBinary {
			message = base64.StdEncoding.EncodeToString(payload)
		}
		plaintext, err := json.Marshal(WSMessagePayload{
			Subscription: TopicSubtopic{Topic: topic, Subtopic: subtopic},
			Message:      message,
			Metadata:     metadata,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to marshal WSMessagePayload")
			continue
		}

		ciphertext, err := crypto.EncryptWSPayload(plaintext, key)
		if err != nil {
			logger.WithError(err).Warn("failed to encrypt fanout payload")
			continue
		}
		event := FanoutEvent{
			Topic:      topic,
			Subtopic:   subtopic,
			Ciphertext: hex.EncodeToString(ciphertext),
			Metadata:   metadata,
			IsBinary:   isBinary,
		}
		raw, err := json.Marshal(event)
		if err != nil {
			continue
		}
		select {
		case c.writer <- raw:
		default:
			logger.WithField("connection", c.id).Warn("write channel full, dropping event for connection")
		}
	}
}

// InboxWSHook adapts Fanout into an inbox.WSHook, pushing the newly
// inserted envelope out to Inbox-topic subscribers of inboxName.
func (f *Fanout) InboxWSHook(inboxName string, hash crypto.Hash, raw []byte) {
	f.HandleUpdate(TopicInbox, inboxName, raw, nil, false)
}
