package wsfanout

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shinkai-net/shinkai-node/identity"
)

// Connection is one upgraded WebSocket client: its subscriber identity,
// current subscription set, and session-scoped AES-256-GCM shared key.
type Connection struct {
	id     string
	conn   *websocket.Conn
	writer chan []byte

	mu         sync.Mutex
	subscriber identity.Name
	sharedKey  [32]byte
	hasKey     bool
	subs       map[subscriptionKey]bool
	lastSeen   time.Time
}

func newConnection(id string, conn *websocket.Conn) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		writer: make(chan []byte, 32),
		subs:   make(map[subscriptionKey]bool),
	}
}

func (c *Connection) setSharedKey(key [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sharedKey = key
	c.hasKey = true
}

func (c *Connection) addSubscription(t Topic, subtopic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subscriptionKey{Topic: t, Subtopic: subtopic}] = true
}

func (c *Connection) removeSubscription(t Topic, subtopic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, subscriptionKey{Topic: t, Subtopic: subtopic})
}

// matches reports whether this connection is subscribed to (topic,
// subtopic), honoring an empty subtopic on the subscription as a wildcard
// for every subtopic under that topic.
func (c *Connection) matches(t Topic, subtopic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[subscriptionKey{Topic: t, Subtopic: subtopic}] {
		return true
	}
	return c.subs[subscriptionKey{Topic: t, Subtopic: ""}]
}

func (c *Connection) key() ([32]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharedKey, c.hasKey
}
