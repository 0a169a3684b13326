package dispatcher

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shinkai-net/shinkai-node/clock"
	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/inbox"
	"github.com/shinkai-net/shinkai-node/kv"
	"github.com/shinkai-net/shinkai-node/subscription"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time                       { return f.t }
func (f fixedClock) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

type testNode struct {
	name    identity.Name
	encKeys *crypto.KeyPair
	signKP  *crypto.SignKeyPair
}

func registerNode(t *testing.T, reg *identity.Registry, rawName string) testNode {
	t.Helper()
	encKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	name, err := identity.Parse(rawName)
	require.NoError(t, err)

	require.NoError(t, reg.InsertProfile(&identity.StandardIdentity{
		FullName:      name,
		NodeEncryptPK: encKeys.Public,
		NodeSignPK:    signKP.Public,
		IdentityType:  identity.IdentityTypeGlobal,
		Permission:    identity.PermissionStandard,
	}))
	return testNode{name: name, encKeys: encKeys, signKP: signKP}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, testNode, testNode) {
	t.Helper()
	store, err := kv.OpenBoltStore(filepath.Join(t.TempDir(), "shinkai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := identity.New(store)
	inboxStore := inbox.New(store)

	nodeA := registerNode(t, reg, "@@nodeA")
	nodeB := registerNode(t, reg, "@@nodeB")

	clk := fixedClock{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := New(reg, inboxStore, nodeB.name.String(), nodeB.encKeys, nodeB.signKP, clk)
	return d, nodeA, nodeB
}

func buildInboundEnvelope(t *testing.T, from, to testNode, content string, tag envelope.SchemaTag, inboxName string) []byte {
	t.Helper()
	b := envelope.NewBuilder(clock.Default)
	b.WithContent(content, tag)
	b.WithRouting("main", "main", inboxName)
	b.WithExternalMeta(from.name.String(), to.name.String(), "main", nil)

	env, err := b.Build(from.signKP.Private)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestHandleInboundDefaultPersistAndACK(t *testing.T) {
	d, nodeA, nodeB := newTestDispatcher(t)

	raw := buildInboundEnvelope(t, nodeA, nodeB, "Hello World 1", envelope.SchemaTagTextMessage, "inbox::nodeA::nodeB::false")

	reply, err := d.HandleInbound(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, reply)

	var replyEnv envelope.Envelope
	require.NoError(t, json.Unmarshal(reply, &replyEnv))
	require.Equal(t, "ACK", replyEnv.Body.MessageData.RawContent)
	require.Equal(t, nodeA.name.String(), replyEnv.ExternalMeta.RecipientNode)

	got, err := d.Inbox.LastN("inbox::nodeA::nodeB::false", 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Hello World 1", got[0][0].Body.MessageData.RawContent)
}

func TestHandleInboundUnknownSenderRepliesWithSignedError(t *testing.T) {
	d, _, nodeB := newTestDispatcher(t)

	ghostEncKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	ghostSignKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	ghostName, err := identity.Parse("@@ghost")
	require.NoError(t, err)
	ghost := testNode{name: ghostName, encKeys: ghostEncKeys, signKP: ghostSignKP}

	raw := buildInboundEnvelope(t, ghost, nodeB, "hi", envelope.SchemaTagTextMessage, "inbox::ghost::nodeB::false")

	reply, err := d.HandleInbound(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, reply)

	var replyEnv envelope.Envelope
	require.NoError(t, json.Unmarshal(reply, &replyEnv))
	require.Contains(t, replyEnv.Body.MessageData.RawContent, "unknown sender")
	require.Equal(t, ghost.name.String(), replyEnv.ExternalMeta.RecipientNode)
}

func TestHandleInboundBadSignatureIsDropped(t *testing.T) {
	d, nodeA, nodeB := newTestDispatcher(t)

	raw := buildInboundEnvelope(t, nodeA, nodeB, "hi", envelope.SchemaTagTextMessage, "inbox::nodeA::nodeB::false")
	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	env.ExternalMeta.Signature[0] ^= 0xFF
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	reply, err := d.HandleInbound(context.Background(), tampered)
	require.Error(t, err)
	require.Nil(t, reply)
}

func TestAvailableSharedItemsHandler(t *testing.T) {
	d, nodeA, nodeB := newTestDispatcher(t)

	pub := subscription.NewPublisher(&recordingSender{}, nil)
	tree := subscription.FSNode{Name: "shinkai_sharing", Path: "/shinkai_sharing"}
	subscription.ComputeMerkleHashes(&tree)
	pub.Share("/shinkai_sharing", "main", tree, subscription.PermissionPublic, &subscription.Requirement{Permission: subscription.PermissionPublic})
	d.SetSubscriptionManagers(pub, subscription.NewSubscriber(&recordingSender{}, nil))
	RegisterSubscriptionHandlers(d)

	payload, err := json.Marshal(subscription.AvailableSharedItems{StreamerNode: nodeB.name.String(), Path: ""})
	require.NoError(t, err)
	raw := buildInboundEnvelope(t, nodeA, nodeB, string(payload), envelope.SchemaTagAvailableSharedItems, "inbox::subscription::AvailableSharedItems::false")

	reply, err := d.HandleInbound(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, reply)

	var replyEnv envelope.Envelope
	require.NoError(t, json.Unmarshal(reply, &replyEnv))
	require.Equal(t, envelope.SchemaTagAvailableSharedItemsResponse, replyEnv.Body.MessageData.SchemaTag)

	var resp subscription.AvailableSharedItemsResponse
	require.NoError(t, json.Unmarshal([]byte(replyEnv.Body.MessageData.RawContent), &resp))
	require.Contains(t, resp.Shared, "/shinkai_sharing")
}

type recordingSender struct{}

func (r *recordingSender) SendToNode(ctx context.Context, toNode, toProfile string, tag envelope.SchemaTag, payload interface{}) error {
	return nil
}
