package shinkai

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/inbox"
	"github.com/shinkai-net/shinkai-node/subscription"
)

// CommandKind discriminates the command variants an HTTP collaborator may
// submit through Node.Submit.
type CommandKind string

const (
	CommandCreateJob           CommandKind = "CreateJob"
	CommandAddMessageToJob     CommandKind = "AddMessageToJobInbox"
	CommandSubscribe           CommandKind = "Subscribe"
	CommandUseCodeRegistration CommandKind = "UseCodeRegistration"
)

// Command is one unit of work submitted by an HTTP collaborator. Reply
// receives the JSON-marshalable result or an *apierr.Error on failure.
type Command struct {
	Kind    CommandKind
	Payload json.RawMessage
	Reply   chan CommandResult
}

// CommandResult carries a command's outcome back to its submitter.
type CommandResult struct {
	Data json.RawMessage
	Err  error
}

// Submit enqueues cmd on the node's bounded command channel, blocking
// until there is room or ctx is cancelled. Handlers must not block the dispatcher loop; Submit
// itself only ever touches the channel, never dispatcher internals.
func (n *Node) Submit(ctx context.Context, cmd Command) (CommandResult, error) {
	if cmd.Reply == nil {
		cmd.Reply = make(chan CommandResult, 1)
	}
	select {
	case n.commands <- cmd:
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
	select {
	case res := <-cmd.Reply:
		return res, nil
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

// RunCommandLoop drains the command channel until ctx is cancelled,
// dispatching each command to its handler in its own goroutine so one slow
// command never blocks the next.
func (n *Node) RunCommandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-n.commands:
			go n.handleCommand(ctx, cmd)
		}
	}
}

func (n *Node) handleCommand(ctx context.Context, cmd Command) {
	data, err := n.dispatchCommand(ctx, cmd)
	cmd.Reply <- CommandResult{Data: data, Err: err}
}

func (n *Node) dispatchCommand(ctx context.Context, cmd Command) (json.RawMessage, error) {
	switch cmd.Kind {
	case CommandUseCodeRegistration:
		return n.cmdUseCodeRegistration(cmd.Payload)
	case CommandCreateJob:
		return n.cmdCreateJob(cmd.Payload)
	case CommandAddMessageToJob:
		return n.cmdAddMessageToJobInbox(cmd.Payload)
	case CommandSubscribe:
		return n.cmdSubscribe(ctx, cmd.Payload)
	default:
		return nil, apierr.New(apierr.KindNotFound, fmt.Sprintf("shinkai: unknown command %q", cmd.Kind))
	}
}

// useCodeRegistrationRequest is the payload shape for provisioning a new
// device under a profile.
type useCodeRegistrationRequest struct {
	ProfileName     string `json:"profile_name"`
	DeviceName      string `json:"device_name"`
	IdentityType    string `json:"identity_type"`
	Permission      string `json:"permission"`
	DeviceEncryptPK string `json:"device_encrypt_pk"`
	DeviceSignPK    string `json:"device_sign_pk"`
}

func (n *Node) cmdUseCodeRegistration(payload json.RawMessage) (json.RawMessage, error) {
	var req useCodeRegistrationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apierr.Wrap(apierr.KindDecodeError, "shinkai: decode registration request", err)
	}

	tier, err := identity.ParsePermissionTier(req.Permission)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInvalidName, "shinkai: invalid permission", err)
	}

	profileName, err := identity.Parse(fmt.Sprintf("%s/%s", n.NodeName.String(), req.ProfileName))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInvalidName, "shinkai: invalid profile name", err)
	}
	if _, err := n.Identity.Resolve(profileName); err != nil {
		profile := &identity.StandardIdentity{
			FullName:         profileName,
			NodeEncryptPK:    n.NodeEncryptKeys.Public,
			NodeSignPK:       n.NodeSignKeys.Public,
			ProfileEncryptPK: &n.NodeEncryptKeys.Public,
			ProfileSignPK:    &n.NodeSignKeys.Public,
			IdentityType:     identity.IdentityTypeProfile,
			Permission:       tier,
		}
		if err := n.Identity.InsertProfile(profile); err != nil {
			return nil, err
		}
	}

	deviceName, err := identity.Parse(fmt.Sprintf("%s/device/%s", profileName.String(), req.DeviceName))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInvalidName, "shinkai: invalid device name", err)
	}

	var devEncPK, devSignPK [32]byte
	if pk, err := hexTo32(req.DeviceEncryptPK); err == nil {
		devEncPK = pk
	}
	if pk, err := hexTo32(req.DeviceSignPK); err == nil {
		devSignPK = pk
	}

	device := &identity.DeviceIdentity{
		FullName:         deviceName,
		NodeEncryptPK:    n.NodeEncryptKeys.Public,
		NodeSignPK:       n.NodeSignKeys.Public,
		ProfileEncryptPK: n.NodeEncryptKeys.Public,
		ProfileSignPK:    n.NodeSignKeys.Public,
		DeviceEncryptPK:  devEncPK,
		DeviceSignPK:     devSignPK,
		Permission:       tier,
	}
	if err := n.Identity.AddDevice(device); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{"device": deviceName.String()})
}

func hexTo32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("shinkai: malformed public key hex %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

type createJobRequest struct {
	LLMProviderID string          `json:"llm_provider_id"`
	Scope         json.RawMessage `json:"scope"`
	IsHidden      bool            `json:"is_hidden"`
}

func (n *Node) cmdCreateJob(payload json.RawMessage) (json.RawMessage, error) {
	var req createJobRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apierr.Wrap(apierr.KindDecodeError, "shinkai: decode create-job request", err)
	}
	jobID := uuid.New().String()
	job, err := n.Inbox.CreateJob(jobID, req.LLMProviderID, req.Scope, req.IsHidden)
	if err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

// subscribeRequest initiates a subscription to a streamer's shared
// path.
type subscribeRequest struct {
	StreamerNode    string                `json:"streamer_node"`
	StreamerProfile string                `json:"streamer_profile"`
	Path            string                `json:"path"`
	Payment         *subscription.Payment `json:"payment,omitempty"`
}

func (n *Node) cmdSubscribe(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req subscribeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apierr.Wrap(apierr.KindDecodeError, "shinkai: decode subscribe request", err)
	}
	if err := n.Subscriber.Subscribe(ctx, req.StreamerNode, req.StreamerProfile, req.Path, req.Payment); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"streamer_node": req.StreamerNode, "path": req.Path})
}

type addMessageRequest struct {
	JobID      string            `json:"job_id"`
	SubPrompts []inbox.SubPrompt `json:"sub_prompts"`
}

func (n *Node) cmdAddMessageToJobInbox(payload json.RawMessage) (json.RawMessage, error) {
	var req addMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apierr.Wrap(apierr.KindDecodeError, "shinkai: decode add-message request", err)
	}
	if err := n.Inbox.AppendStep(req.JobID, req.SubPrompts); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"job_id": req.JobID})
}
