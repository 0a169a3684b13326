package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/subscription"
)

// RegisterSubscriptionHandlers wires the seven subscription protocol
// schema tags to d's Publisher and Subscriber, which must
// already be set via SetSubscriptionManagers.
func RegisterSubscriptionHandlers(d *Dispatcher) {
	d.SetHandler(envelope.SchemaTagAvailableSharedItems, handleAvailableSharedItems)
	d.SetHandler(envelope.SchemaTagAvailableSharedItemsResponse, handleNoOp)
	d.SetHandler(envelope.SchemaTagSubscribeToSharedFolder, handleSubscribeToSharedFolder)
	d.SetHandler(envelope.SchemaTagSubscribeToSharedFolderResponse, handleSubscribeToSharedFolderResponse)
	d.SetHandler(envelope.SchemaTagSubscriptionRequiresTreeUpdate, handleTreeUpdate)
	d.SetHandler(envelope.SchemaTagSubscriptionRequiresTreeUpdateResponse, handleTreeUpdateResponse)
	d.SetHandler(envelope.SchemaTagUnsubscribeToSharedFolder, handleUnsubscribe)
}

func decodeContent(env *envelope.Envelope, v interface{}) error {
	if err := json.Unmarshal([]byte(env.Body.MessageData.RawContent), v); err != nil {
		return fmt.Errorf("dispatcher: decode %s payload: %w", env.Body.MessageData.SchemaTag, err)
	}
	return nil
}

func handleNoOp(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	return "", envelope.SchemaTagNone, nil
}

func handleAvailableSharedItems(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	if d.Publisher == nil {
		return "", envelope.SchemaTagNone, fmt.Errorf("dispatcher: no publisher configured")
	}
	var req subscription.AvailableSharedItems
	if err := decodeContent(env, &req); err != nil {
		return "", envelope.SchemaTagNone, err
	}
	resp := d.Publisher.HandleAvailableSharedItems(env.ExternalMeta.SenderNode, req.Path)
	raw, err := json.Marshal(resp)
	if err != nil {
		return "", envelope.SchemaTagNone, err
	}
	return string(raw), envelope.SchemaTagAvailableSharedItemsResponse, nil
}

func handleSubscribeToSharedFolder(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	if d.Publisher == nil {
		return "", envelope.SchemaTagNone, fmt.Errorf("dispatcher: no publisher configured")
	}
	var req subscription.SubscribeToSharedFolder
	if err := decodeContent(env, &req); err != nil {
		return "", envelope.SchemaTagNone, err
	}
	resp, err := d.Publisher.HandleSubscribe(env.ExternalMeta.SenderNode, req.Path, req.Payment)
	if err != nil && resp == nil {
		return "", envelope.SchemaTagNone, err
	}
	raw, merr := json.Marshal(resp)
	if merr != nil {
		return "", envelope.SchemaTagNone, merr
	}
	return string(raw), envelope.SchemaTagSubscribeToSharedFolderResponse, nil
}

func handleSubscribeToSharedFolderResponse(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	if d.Subscriber == nil {
		return "", envelope.SchemaTagNone, fmt.Errorf("dispatcher: no subscriber configured")
	}
	var resp subscription.SubscriptionGenericResponse
	if err := decodeContent(env, &resp); err != nil {
		return "", envelope.SchemaTagNone, err
	}
	id := subscription.ID{StreamerNode: env.ExternalMeta.SenderNode, SharedPath: resp.SharedFolder}
	if err := d.Subscriber.HandleSubscribeResponse(id, resp); err != nil {
		logrus.WithFields(logrus.Fields{"function": "handleSubscribeToSharedFolderResponse", "package": "dispatcher"}).
			WithError(err).Debug("subscription rejected")
	}
	return "", envelope.SchemaTagNone, nil
}

func handleTreeUpdate(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	if d.Subscriber == nil {
		return "", envelope.SchemaTagNone, fmt.Errorf("dispatcher: no subscriber configured")
	}
	var update subscription.SubscriptionRequiresTreeUpdate
	if err := decodeContent(env, &update); err != nil {
		return "", envelope.SchemaTagNone, err
	}
	id := subscription.ID{StreamerNode: env.ExternalMeta.SenderNode, SharedPath: update.Path}
	resp := d.Subscriber.HandleTreeUpdate(id, update)
	raw, err := json.Marshal(resp)
	if err != nil {
		return "", envelope.SchemaTagNone, err
	}
	return string(raw), envelope.SchemaTagSubscriptionRequiresTreeUpdateResponse, nil
}

func handleTreeUpdateResponse(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	if d.Publisher == nil {
		return "", envelope.SchemaTagNone, fmt.Errorf("dispatcher: no publisher configured")
	}
	var resp subscription.SubscriptionRequiresTreeUpdateResponse
	if err := decodeContent(env, &resp); err != nil {
		return "", envelope.SchemaTagNone, err
	}
	diff := d.Publisher.HandleTreeUpdateResponse(resp.Path, resp)
	if len(diff) > 0 {
		logrus.WithFields(logrus.Fields{"function": "handleTreeUpdateResponse", "package": "dispatcher", "path": resp.Path}).
			WithField("stale_paths", len(diff)).Debug("subscriber still diverges after tree update")
	}
	return "", envelope.SchemaTagNone, nil
}

func handleUnsubscribe(ctx context.Context, d *Dispatcher, env *envelope.Envelope) (string, envelope.SchemaTag, error) {
	if d.Publisher == nil {
		return "", envelope.SchemaTagNone, fmt.Errorf("dispatcher: no publisher configured")
	}
	var req subscription.APIUnsubscribeToSharedFolder
	if err := decodeContent(env, &req); err != nil {
		return "", envelope.SchemaTagNone, err
	}
	d.Publisher.HandleUnsubscribe(env.ExternalMeta.SenderNode, req.Path)
	return "ACK", envelope.SchemaTagNone, nil
}
