package shinkai

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitCreateJobRoundTrip(t *testing.T) {
	n := newTestNode(t)
	go n.RunCommandLoop(context.Background())

	payload, err := json.Marshal(createJobRequest{LLMProviderID: "provider-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := n.Submit(ctx, Command{Kind: CommandCreateJob, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, res.Err)

	var job struct {
		JobID         string `json:"job_id"`
		LLMProviderID string `json:"llm_provider_id"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &job))
	require.Equal(t, "provider-1", job.LLMProviderID)
	require.NotEmpty(t, job.JobID)
}

func TestSubmitAddMessageToUnknownJobFails(t *testing.T) {
	n := newTestNode(t)
	go n.RunCommandLoop(context.Background())

	payload, err := json.Marshal(addMessageRequest{JobID: "does-not-exist"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := n.Submit(ctx, Command{Kind: CommandAddMessageToJob, Payload: payload})
	require.NoError(t, err)
	require.Error(t, res.Err)
}

func TestSubmitUnknownCommandKind(t *testing.T) {
	n := newTestNode(t)
	go n.RunCommandLoop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := n.Submit(ctx, Command{Kind: CommandKind("bogus")})
	require.NoError(t, err)
	require.Error(t, res.Err)
}

func TestSubmitUseCodeRegistrationCreatesProfileAndDevice(t *testing.T) {
	n := newTestNode(t)
	go n.RunCommandLoop(context.Background())

	payload, err := json.Marshal(useCodeRegistrationRequest{
		ProfileName: "main",
		DeviceName:  "laptop",
		Permission:  "Standard",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := n.Submit(ctx, Command{Kind: CommandUseCodeRegistration, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, res.Err)

	var out struct {
		Device string `json:"device"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &out))
	require.Equal(t, "@@testnode/main/device/laptop", out.Device)
}

func TestSubmitSubscribeSendFailurePropagates(t *testing.T) {
	n := newTestNode(t)
	go n.RunCommandLoop(context.Background())

	payload, err := json.Marshal(subscribeRequest{
		StreamerNode:    "@@unreachable-node",
		StreamerProfile: "main",
		Path:            "/shared/docs",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := n.Submit(ctx, Command{Kind: CommandSubscribe, Payload: payload})
	require.NoError(t, err)
	// No identity is registered for the streamer node in this test, so the
	// outbound send fails while resolving the recipient, before any dial;
	// this still proves the command is decoded and routed into
	// Subscriber.Subscribe correctly.
	require.Error(t, res.Err)
}

func TestSubmitCancelledContextReturnsError(t *testing.T) {
	n := newTestNode(t)
	// No RunCommandLoop started: the bounded channel fills immediately
	// once its buffer is exhausted, and Submit must respect ctx.

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Submit(ctx, Command{Kind: CommandCreateJob})
	require.Error(t, err)
}
