package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/identity"
)

// NodeSender adapts a Dispatcher into subscription.Sender: it builds,
// signs, and transmits a schema-tagged envelope to a remote node over the
// dispatcher's connection pool, keeping the subscription state machines
// free of any direct net.Conn dependency.
type NodeSender struct {
	d    *Dispatcher
	pool *ConnPool
}

// NewNodeSender builds a NodeSender over d using pool for outbound
// connections.
func NewNodeSender(d *Dispatcher, pool *ConnPool) *NodeSender {
	return &NodeSender{d: d, pool: pool}
}

// SendToNode implements subscription.Sender.
func (s *NodeSender) SendToNode(ctx context.Context, toNode, toProfile string, tag envelope.SchemaTag, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal payload: %w", err)
	}

	recipientName, err := identity.Parse(toNode)
	if err != nil {
		return fmt.Errorf("dispatcher: invalid recipient node %q: %w", toNode, err)
	}
	recipient, err := s.d.Registry.Resolve(recipientName)
	if err != nil {
		return fmt.Errorf("dispatcher: resolve recipient %q: %w", toNode, err)
	}
	if recipient.Kind != identity.KindStandard || recipient.Standard.Address == "" {
		return fmt.Errorf("dispatcher: recipient %q has no known network address", toNode)
	}

	b := envelope.NewBuilder(s.d.clk)
	b.WithContent(string(raw), tag)
	b.WithRouting("", toProfile, inboxNameForSchema(tag))
	b.WithExternalMeta(s.d.NodeName, toNode, "", nil)

	env, err := b.Build(s.d.NodeSignKeys.Private)
	if err != nil {
		return fmt.Errorf("dispatcher: build envelope: %w", err)
	}
	wire, err := json.Marshal(env)
	if err != nil {
		return err
	}

	conn, err := s.pool.Get(recipient.Standard.Address)
	if err != nil {
		return err
	}
	if err := WriteFrame(conn, wire); err != nil {
		s.pool.Drop(recipient.Standard.Address)
		return err
	}
	return nil
}

// inboxNameForSchema routes subscription protocol messages to a
// per-schema control inbox rather than a sender/recipient message inbox,
// since they are node-to-node coordination traffic, not user content.
func inboxNameForSchema(tag envelope.SchemaTag) string {
	return "inbox::subscription::" + string(tag) + "::false"
}
