package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/limits"
)

// Options configures the Sandbox.
type Options struct {
	// StorageRoot is the data root's "tools_storage" parent.
	StorageRoot string

	// DenoBinaryPath is the external interpreter executable, read from
	// SHINKAI_TOOLS_RUNNER_DENO_BINARY_PATH at orchestrator construction
	// time.
	DenoBinaryPath string

	// CallbackHost/CallbackPort are injected into the sandboxed process so
	// it can reach back to the local node.
	CallbackHost string
	CallbackPort int

	// RunTimeout bounds a single tool invocation.
	RunTimeout time.Duration
}

// NewOptions returns sandbox defaults: a 60s run timeout and no configured
// interpreter path (callers must set DenoBinaryPath before Run).
func NewOptions() *Options {
	return &Options{
		RunTimeout: 60 * time.Second,
	}
}

// Invocation is one request to run a tool.
type Invocation struct {
	ToolKey        string
	Params         json.RawMessage
	Config         json.RawMessage
	Env            map[string]string
	CallerIdentity string
	AppID          string
	ToolInstanceID string
	Assets         []string
	Mounts         []string
	Temporary      bool
}

// Result is a completed invocation's output: the tool's parsed stdout
// result and the filesystem deltas it left behind under home/ or logs/.
type Result struct {
	Output json.RawMessage
	Deltas []Delta
}

// ErrConfigRequired is returned when a tool declares required config
// fields the invocation's Config does not satisfy.
var ErrConfigRequired = errors.New("sandbox: required config fields not satisfied")

// Sandbox runs untrusted tool code in isolated per-invocation directories.
type Sandbox struct {
	opts *Options
}

// New builds a Sandbox from opts (sandbox.NewOptions() defaults if nil).
func New(opts *Options) *Sandbox {
	if opts == nil {
		opts = NewOptions()
	}
	return &Sandbox{opts: opts}
}

// downloadNoise matches the provider download-progress lines that are
// elided from rendered error text.
var downloadNoise = regexp.MustCompile(`(?m)^Download https:.*$\n?`)

// Run executes tool for inv: it prepares the scoped storage directories,
// copies permitted assets, spawns the external interpreter with the
// node-callback coordinates injected, captures stdout as the result, and
// reports every filesystem change under home/ or logs/.
func (s *Sandbox) Run(ctx context.Context, tool *Tool, inv Invocation) (*Result, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Run",
		"package":  "sandbox",
		"tool_key": tool.ToolKey,
		"app_id":   inv.AppID,
	})

	if err := tool.ValidateConfig(inv.Config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigRequired, err)
	}
	if err := tool.ValidateInput(inv.Params); err != nil {
		return nil, err
	}

	appDir := filepath.Join(s.opts.StorageRoot, "tools_storage", inv.AppID)
	homeDir := filepath.Join(appDir, "home")
	logsDir := filepath.Join(appDir, "logs")

	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create home dir: %w", err)
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create logs dir: %w", err)
	}
	if inv.Temporary {
		sentinel := filepath.Join(appDir, ".temporal")
		if err := os.WriteFile(sentinel, []byte{}, 0o644); err != nil {
			return nil, fmt.Errorf("sandbox: create temporal sentinel: %w", err)
		}
	}

	for _, asset := range inv.Assets {
		if !tool.AssetPermitted(asset) {
			return nil, fmt.Errorf("sandbox: asset %q not in tool's permitted_assets", asset)
		}
		if err := copyAssetInto(asset, homeDir); err != nil {
			return nil, fmt.Errorf("sandbox: copy asset %q: %w", asset, err)
		}
	}

	beforeHome, err := captureSnapshot(homeDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: snapshot home before run: %w", err)
	}
	beforeLogs, err := captureSnapshot(logsDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: snapshot logs before run: %w", err)
	}

	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if s.opts.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	stdout, stderr, runErr := s.spawn(runCtx, tool, inv, homeDir)

	afterHome, err := captureSnapshot(homeDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: snapshot home after run: %w", err)
	}
	afterLogs, err := captureSnapshot(logsDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: snapshot logs after run: %w", err)
	}

	deltas := append(
		diffSnapshots(beforeHome, afterHome, start),
		diffSnapshots(beforeLogs, afterLogs, start)...,
	)

	if runErr != nil {
		logger.WithError(runErr).Warn("tool invocation failed")
		return nil, renderToolError(tool, inv, runErr, stderr, deltas)
	}

	if err := limits.ValidateToolOutput(stdout); err != nil {
		return nil, fmt.Errorf("sandbox: tool output: %w", err)
	}

	logger.Debug("tool invocation completed")
	return &Result{Output: json.RawMessage(stdout), Deltas: deltas}, nil
}

// spawn launches the external interpreter and returns its captured
// stdout/stderr.
func (s *Sandbox) spawn(ctx context.Context, tool *Tool, inv Invocation, homeDir string) (stdout, stderr []byte, err error) {
	codeFile, cleanup, err := writeCodeBundle(tool)
	if err != nil {
		return nil, nil, fmt.Errorf("write code bundle: %w", err)
	}
	defer cleanup()

	args := []string{"run", "--allow-read=" + homeDir, "--allow-write=" + homeDir, codeFile}
	cmd := exec.CommandContext(ctx, s.opts.DenoBinaryPath, args...)
	cmd.Dir = homeDir

	cmd.Env = os.Environ()
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env,
		"SHINKAI_NODE_CALLBACK_HOST="+s.opts.CallbackHost,
		"SHINKAI_NODE_CALLBACK_PORT="+strconv.Itoa(s.opts.CallbackPort),
		"SHINKAI_TOOL_PARAMS="+string(inv.Params),
		"SHINKAI_TOOL_CONFIG="+string(inv.Config),
	)
	for _, mount := range inv.Mounts {
		cmd.Env = append(cmd.Env, "SHINKAI_TOOL_MOUNT="+mount)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), runErr
}

// writeCodeBundle materializes tool.Code's virtual {filename -> source}
// map onto disk so the external interpreter can load tool.EntryPoint, and
// returns the entry point's path plus a cleanup func.
func writeCodeBundle(tool *Tool) (entryPath string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "shinkai-tool-*")
	if err != nil {
		return "", nil, err
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	for filename, source := range tool.Code {
		path := filepath.Join(dir, filename)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			cleanup()
			return "", nil, err
		}
		if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
			cleanup()
			return "", nil, err
		}
	}

	entryPath = filepath.Join(dir, tool.EntryPoint)
	if _, ok := tool.Code[tool.EntryPoint]; !ok {
		cleanup()
		return "", nil, fmt.Errorf("sandbox: entry point %q not present in tool code", tool.EntryPoint)
	}
	return entryPath, cleanup, nil
}

func copyAssetInto(assetPath, homeDir string) error {
	src, err := os.Open(assetPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(homeDir, filepath.Base(assetPath)))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// ToolError is the rendered, multi-line shape reported for syntax/type/
// runtime/sandbox errors: tool name, call parameters, filtered
// error text, files left behind, and the original source.
type ToolError struct {
	ToolName string
	Params   json.RawMessage
	Text     string
	Files    []string
	Source   string
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool %q failed\nparameters: %s\nerror:\n%s\nfiles left behind:\n", e.ToolName, string(e.Params), e.Text)
	for _, f := range e.Files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	fmt.Fprintf(&b, "source:\n%s\n", e.Source)
	return b.String()
}

func renderToolError(tool *Tool, inv Invocation, runErr error, stderr []byte, deltas []Delta) error {
	text := downloadNoise.ReplaceAllString(string(stderr), "")
	if text == "" {
		text = runErr.Error()
	}

	files := make([]string, 0, len(deltas))
	for _, d := range deltas {
		files = append(files, d.Path)
	}

	var source strings.Builder
	for filename, body := range tool.Code {
		fmt.Fprintf(&source, "// %s\n%s\n", filename, body)
	}

	return &ToolError{
		ToolName: tool.Name,
		Params:   inv.Params,
		Text:     strings.TrimSpace(text),
		Files:    files,
		Source:   source.String(),
	}
}
