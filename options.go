// Package shinkai ties the Identity Registry, Message Codec, Inbox & Job
// Store, Blob Store Adapter, Subscription Manager, Network Dispatcher,
// WebSocket Fanout, and Tool Sandbox into one long-lived Node: it
// owns every long-lived secret, spawns the inbound socket accept loop, and
// exposes a command channel to external HTTP collaborators.
package shinkai

import (
	"os"
	"time"

	"github.com/shinkai-net/shinkai-node/blobstore"
	"github.com/shinkai-net/shinkai-node/sandbox"
)

// Options configures a Node. There is no CLI argument parsing here;
// every field is set programmatically by an embedding binary.
type Options struct {
	// DataRoot is the configured data root: "db/",
	// "tools_storage/", ".tools_storage/", and ".secret" all live under it.
	DataRoot string

	// ListenAddr is the Network Dispatcher's TCP listen address.
	ListenAddr string

	// WSListenAddr is the WebSocket Fanout's HTTP listen address.
	// Empty disables the fanout's own listener; callers
	// may instead mount Node.Fanout.HandleUpgrade on an existing mux.
	WSListenAddr string

	// NodeName, if set, overrides any name persisted at DataRoot/.secret.
	NodeName string

	// SeedSecretKey, if non-nil, derives the node's X25519 encryption
	// keypair from this 32-byte secret instead of generating a fresh
	// one.
	SeedSecretKey *[32]byte
	// SeedSignSeed, if non-nil, derives the node's Ed25519 signing
	// keypair from this 32-byte seed.
	SeedSignSeed *[32]byte

	// Blobs is the Blob Store Adapter implementation the node uses for
	// subscription tree pushes. Nil disables
	// object-store-backed shared folders; an HTTP- or S3-backed folder
	// can still be wired in directly via subscription.Publisher.
	Blobs blobstore.Store

	// Sandbox configures the Tool Sandbox. Nil uses
	// sandbox.NewOptions() defaults.
	Sandbox *sandbox.Options

	// DialTimeout bounds outbound dials made by the dispatcher's
	// connection pool.
	DialTimeout time.Duration

	// CommandBufferSize bounds the Node's command channel.
	CommandBufferSize int
}

// NewOptions returns Node defaults: a 10s dial timeout and a 64-deep
// command buffer.
func NewOptions() *Options {
	return &Options{
		ListenAddr:        "0.0.0.0:9552",
		DialTimeout:       10 * time.Second,
		CommandBufferSize: 64,
	}
}

// EnvConfig caches the node's environment variables, loaded once
// at orchestrator construction time.
type EnvConfig struct {
	APIV2Key           string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	AWSEndpointURL     string
	DenoBinaryPath     string
	WelcomeMessage     string
}

// LoadEnvConfig reads the node's environment variables into an
// EnvConfig snapshot.
func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		APIV2Key:           os.Getenv("API_V2_KEY"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		AWSEndpointURL:     os.Getenv("AWS_ENDPOINT_URL"),
		DenoBinaryPath:     os.Getenv("SHINKAI_TOOLS_RUNNER_DENO_BINARY_PATH"),
		WelcomeMessage:     os.Getenv("WELCOME_MESSAGE"),
	}
}
