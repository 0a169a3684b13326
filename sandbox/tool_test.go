package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeDirSanitizesToolKey(t *testing.T) {
	dir := CodeDir("/data", "../../etc/passwd")
	require.NotContains(t, dir, "..")

	dir = CodeDir("/data", "local:::my-tool/v1\\variant")
	require.Equal(t, "/data/.tools_storage/tools/local:::my-tool_v1_variant", dir)
}

func TestValidateInputAgainstSchema(t *testing.T) {
	tool := &Tool{
		Name: "echo",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"message": {"type": "string"}},
			"required": ["message"]
		}`),
	}

	require.NoError(t, tool.ValidateInput(json.RawMessage(`{"message": "hi"}`)))
	require.Error(t, tool.ValidateInput(json.RawMessage(`{}`)))
	require.Error(t, tool.ValidateInput(json.RawMessage(`{"message": 5}`)))
}

func TestValidateConfigNilSchemaAlwaysPasses(t *testing.T) {
	tool := &Tool{Name: "no-config-tool"}
	require.NoError(t, tool.ValidateConfig(json.RawMessage(`{"anything": true}`)))
	require.NoError(t, tool.ValidateConfig(nil))
}

func TestSupportsOS(t *testing.T) {
	tool := &Tool{OperatingSys: []OS{OSLinux, OSMacOS}}
	require.True(t, tool.SupportsOS(OSLinux))
	require.True(t, tool.SupportsOS(OSMacOS))
	require.False(t, tool.SupportsOS(OSWindows))
}

func TestAssetPermitted(t *testing.T) {
	tool := &Tool{PermittedAssets: []string{"data.csv", "notes.txt"}}
	require.True(t, tool.AssetPermitted("data.csv"))
	require.False(t, tool.AssetPermitted("secrets.env"))
}
