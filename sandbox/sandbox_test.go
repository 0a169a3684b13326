package sandbox

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoTool(t *testing.T) *Tool {
	t.Helper()
	return &Tool{
		ToolKey:    "local:::echo-tool",
		Name:       "echo-tool",
		EntryPoint: "main.ts",
		Code:       map[string]string{"main.ts": "console.log('{}')"},
	}
}

func TestRunRejectsUnpermittedAsset(t *testing.T) {
	s := New(&Options{StorageRoot: t.TempDir(), DenoBinaryPath: "true"})
	tool := echoTool(t)
	tool.PermittedAssets = []string{"allowed.csv"}

	_, err := s.Run(context.Background(), tool, Invocation{
		AppID:  "app1",
		Assets: []string{"not-allowed.csv"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not in tool's permitted_assets")
}

func TestRunRejectsInvalidInput(t *testing.T) {
	s := New(&Options{StorageRoot: t.TempDir(), DenoBinaryPath: "true"})
	tool := echoTool(t)
	tool.InputSchema = json.RawMessage(`{"type":"object","required":["x"]}`)

	_, err := s.Run(context.Background(), tool, Invocation{
		AppID:  "app2",
		Params: json.RawMessage(`{}`),
	})
	require.Error(t, err)
}

func TestRunFailureRendersToolError(t *testing.T) {
	s := New(&Options{StorageRoot: t.TempDir(), DenoBinaryPath: filepath.Join(t.TempDir(), "no-such-binary")})
	tool := echoTool(t)

	_, err := s.Run(context.Background(), tool, Invocation{AppID: "app3"})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, "echo-tool", toolErr.ToolName)
}

func TestRunSucceedsWithTrivialInterpreter(t *testing.T) {
	s := New(&Options{StorageRoot: t.TempDir(), DenoBinaryPath: "true"})
	tool := echoTool(t)

	result, err := s.Run(context.Background(), tool, Invocation{AppID: "app4"})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestRunWritesTemporalSentinel(t *testing.T) {
	root := t.TempDir()
	s := New(&Options{StorageRoot: root, DenoBinaryPath: "true"})
	tool := echoTool(t)

	_, err := s.Run(context.Background(), tool, Invocation{AppID: "app5", Temporary: true})
	require.NoError(t, err)

	sentinel := filepath.Join(root, "tools_storage", "app5", ".temporal")
	require.FileExists(t, sentinel)
}
