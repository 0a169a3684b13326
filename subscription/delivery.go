package subscription

import (
	"context"

	"github.com/shinkai-net/shinkai-node/envelope"
)

// Sender decouples the subscription state machines from the concrete
// network dispatcher, so tests can inject a simulated peer instead of a
// live TCP connection. Implementations build, sign, and transmit a
// schema-tagged envelope to toNode.
type Sender interface {
	SendToNode(ctx context.Context, toNode, toProfile string, tag envelope.SchemaTag, payload interface{}) error
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, toNode, toProfile string, tag envelope.SchemaTag, payload interface{}) error

func (f SenderFunc) SendToNode(ctx context.Context, toNode, toProfile string, tag envelope.SchemaTag, payload interface{}) error {
	return f(ctx, toNode, toProfile, tag, payload)
}
