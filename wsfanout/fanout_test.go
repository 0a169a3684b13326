package wsfanout

import (
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/inbox"
	"github.com/shinkai-net/shinkai-node/kv"
)

func newTestFanout(t *testing.T) (*Fanout, *identity.Registry, *inbox.Store) {
	t.Helper()
	store, err := kv.OpenBoltStore(filepath.Join(t.TempDir(), "shinkai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := identity.New(store)
	inboxStore := inbox.New(store)
	return New(reg, inboxStore), reg, inboxStore
}

func TestApplySubscribeRejectsInboxWithoutACL(t *testing.T) {
	f, _, _ := newTestFanout(t)
	subscriber, err := identity.Parse("@@nodeA/main")
	require.NoError(t, err)

	c := newConnection("c1", nil)
	f.applySubscribe(c, subscriber, TopicSubtopic{Topic: TopicInbox, Subtopic: "inbox::a::b::false"})

	require.False(t, c.matches(TopicInbox, "inbox::a::b::false"))
}

func TestApplySubscribeAcceptsInboxWithACL(t *testing.T) {
	f, _, inboxStore := newTestFanout(t)
	subscriber, err := identity.Parse("@@nodeA/main")
	require.NoError(t, err)

	require.NoError(t, inboxStore.GrantACL("inbox::a::b::false", subscriber, identity.InboxRoleReadOnly))

	c := newConnection("c1", nil)
	f.applySubscribe(c, subscriber, TopicSubtopic{Topic: TopicInbox, Subtopic: "inbox::a::b::false"})

	require.True(t, c.matches(TopicInbox, "inbox::a::b::false"))
}

func TestHandleUpdateSkipsConnectionWithoutSharedKey(t *testing.T) {
	f, _, _ := newTestFanout(t)
	subscriber, err := identity.Parse("@@nodeA/main")
	require.NoError(t, err)

	c := newConnection("c1", nil)
	c.subscriber = subscriber
	c.addSubscription(TopicSheet, "")
	f.conns["c1"] = c

	f.HandleUpdate(TopicSheet, "", []byte("payload"), nil, false)

	select {
	case <-c.writer:
		t.Fatal("expected no delivery without a shared key")
	default:
	}
}

func TestHandleUpdateEncryptsAndDeliversToMatchingConnection(t *testing.T) {
	f, _, _ := newTestFanout(t)
	subscriber, err := identity.Parse("@@nodeA/main")
	require.NoError(t, err)

	c := newConnection("c1", nil)
	c.subscriber = subscriber
	c.addSubscription(TopicSheet, "sheet1")
	var key [32]byte
	copy(key[:], []byte("01234567890123456789012345678901"))
	c.setSharedKey(key)
	f.conns["c1"] = c

	f.HandleUpdate(TopicSheet, "sheet1", []byte(`{"hello":"world"}`), map[string]string{"k": "v"}, false)

	raw := <-c.writer
	var event FanoutEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	require.Equal(t, TopicSheet, event.Topic)
	require.Equal(t, "v", event.Metadata["k"])

	ciphertext, err := hex.DecodeString(event.Ciphertext)
	require.NoError(t, err)
	plaintext, err := crypto.DecryptWSPayload(ciphertext, key)
	require.NoError(t, err)

	var payload WSMessagePayload
	require.NoError(t, json.Unmarshal(plaintext, &payload))
	require.Equal(t, TopicSubtopic{Topic: TopicSheet, Subtopic: "sheet1"}, payload.Subscription)
	require.JSONEq(t, `{"hello":"world"}`, payload.Message)
	require.Equal(t, "v", payload.Metadata["k"])
}

func TestHandleUpdateSkipsConnectionWithoutInboxACL(t *testing.T) {
	f, _, _ := newTestFanout(t)
	subscriber, err := identity.Parse("@@nodeA/main")
	require.NoError(t, err)

	c := newConnection("c1", nil)
	c.subscriber = subscriber
	c.addSubscription(TopicInbox, "inbox::a::b::false")
	var key [32]byte
	c.setSharedKey(key)
	f.conns["c1"] = c

	f.HandleUpdate(TopicInbox, "inbox::a::b::false", []byte("x"), nil, false)

	select {
	case <-c.writer:
		t.Fatal("expected no delivery: subscriber has no ACL on the inbox")
	default:
	}
}
