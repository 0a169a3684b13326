package sandbox

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// OS names an operating system a tool declares support for.
type OS string

const (
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
)

// Runner constrains which interpreter backend may execute a tool.
type Runner string

const (
	RunnerAny        Runner = "Any"
	RunnerOnlyDocker Runner = "OnlyDocker"
)

// Tool describes one sandboxed tool: its code (opaque to the core), its
// three JSON schemas, and the assets/mounts/platforms it is permitted to
// use.
type Tool struct {
	ToolKey    string            `json:"tool_key"`
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	Author     string            `json:"author"`
	Code       map[string]string `json:"code"` // filename -> source; opaque to the core
	EntryPoint string            `json:"entry_point"`

	ConfigSchema json.RawMessage `json:"config_schema"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema"`

	PermittedAssets []string `json:"permitted_assets"`
	Mounts          []string `json:"mounts"`
	Runner          Runner   `json:"runner"`
	OperatingSys    []OS     `json:"operating_systems"`
	MCPEnabled      bool     `json:"mcp_enabled"`
}

// CodeDir derives the content-addressed directory a tool's code and
// assets live under: ".tools_storage/tools/<tool_key_as_path>/".
func CodeDir(root, toolKey string) string {
	return filepath.Join(root, ".tools_storage", "tools", toolKeyAsPath(toolKey))
}

// toolKeyAsPath converts an opaque tool_key into a filesystem-safe relative
// path component, replacing path separators a malicious tool_key might
// otherwise smuggle in.
func toolKeyAsPath(toolKey string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(toolKey)
}

// schemaValidator compiles a JSON Schema document once and validates
// decoded JSON values against it.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func compileSchema(raw json.RawMessage) (*schemaValidator, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	const url = "sandbox://tool-schema.json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("sandbox: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile schema: %w", err)
	}
	return &schemaValidator{schema: schema}, nil
}

// Validate checks raw (a JSON document) against the compiled schema. A nil
// validator (no schema declared) always passes.
func (v *schemaValidator) Validate(raw json.RawMessage) error {
	if v == nil {
		return nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("sandbox: decode value for validation: %w", err)
	}
	if err := v.schema.Validate(value); err != nil {
		return fmt.Errorf("sandbox: schema validation: %w", err)
	}
	return nil
}

// ValidateConfig checks config against the tool's declared config_schema.
func (t *Tool) ValidateConfig(config json.RawMessage) error {
	v, err := compileSchema(t.ConfigSchema)
	if err != nil {
		return err
	}
	return v.Validate(config)
}

// ValidateInput checks params against the tool's declared input_schema.
func (t *Tool) ValidateInput(params json.RawMessage) error {
	v, err := compileSchema(t.InputSchema)
	if err != nil {
		return err
	}
	return v.Validate(params)
}

// SupportsOS reports whether the tool declares support for os.
func (t *Tool) SupportsOS(os OS) bool {
	for _, candidate := range t.OperatingSys {
		if candidate == os {
			return true
		}
	}
	return false
}

// AssetPermitted reports whether path is in the tool's permitted_assets
// allowlist.
func (t *Tool) AssetPermitted(path string) bool {
	for _, permitted := range t.PermittedAssets {
		if permitted == path {
			return true
		}
	}
	return false
}
