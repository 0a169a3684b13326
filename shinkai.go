package shinkai

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/clock"
	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/dispatcher"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/inbox"
	"github.com/shinkai-net/shinkai-node/kv"
	"github.com/shinkai-net/shinkai-node/sandbox"
	"github.com/shinkai-net/shinkai-node/subscription"
	"github.com/shinkai-net/shinkai-node/wsfanout"
)

// Node is the orchestrator. It exclusively owns every
// long-lived secret and the KV/blob-store/WS-fanout handles; every other
// component receives a shared read reference.
type Node struct {
	Options *Options

	KV         kv.Store
	Identity   *identity.Registry
	Inbox      *inbox.Store
	Dispatcher *dispatcher.Dispatcher
	Fanout     *wsfanout.Fanout
	Publisher  *subscription.Publisher
	Subscriber *subscription.Subscriber
	Sandbox    *sandbox.Sandbox

	NodeName        identity.Name
	NodeEncryptKeys *crypto.KeyPair
	NodeSignKeys    *crypto.SignKeyPair

	pool *dispatcher.ConnPool

	env atomic.Pointer[EnvConfig]

	commands chan Command

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Node from opts (shinkai.NewOptions() defaults if nil):
// opens the KV store, derives or loads the node's long-lived keys,
// resolves the node's persisted name, and wires every component together.
// It does not yet accept connections; call Start for that.
func New(opts *Options) (n *Node, retErr error) {
	if opts == nil {
		opts = NewOptions()
	}
	logger := logrus.WithFields(logrus.Fields{"function": "New", "package": "shinkai"})

	store, err := kv.OpenBoltStore(filepath.Join(opts.DataRoot, "db"))
	if err != nil {
		return nil, fmt.Errorf("shinkai: open kv store: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = store.Close()
		}
	}()

	encKeys, err := deriveKeyPair(opts.SeedSecretKey)
	if err != nil {
		return nil, fmt.Errorf("shinkai: derive encryption keypair: %w", err)
	}
	signKeys, err := deriveSignKeyPair(opts.SeedSignSeed)
	if err != nil {
		return nil, fmt.Errorf("shinkai: derive signing keypair: %w", err)
	}

	nodeNameStr := opts.NodeName
	if nodeNameStr == "" {
		nodeNameStr, err = loadNodeName(opts.DataRoot)
		if err != nil {
			return nil, err
		}
	}
	if nodeNameStr == "" {
		return nil, fmt.Errorf("shinkai: no node name configured and none persisted at %s", secretFileName)
	}
	if err := persistNodeName(opts.DataRoot, nodeNameStr); err != nil {
		return nil, err
	}
	nodeName, err := identity.Parse(nodeNameStr)
	if err != nil || !nodeName.IsNode() {
		return nil, fmt.Errorf("shinkai: %q is not a bare node name", nodeNameStr)
	}

	registry := identity.New(store)
	inboxStore := inbox.New(store)

	sandboxOpts := opts.Sandbox
	if sandboxOpts == nil {
		sandboxOpts = sandbox.NewOptions()
	}
	if sandboxOpts.StorageRoot == "" {
		sandboxOpts.StorageRoot = opts.DataRoot
	}
	toolSandbox := sandbox.New(sandboxOpts)

	d := dispatcher.New(registry, inboxStore, nodeName.String(), encKeys, signKeys, clock.Default)
	fanout := wsfanout.New(registry, inboxStore)
	d.SetWSHook(fanout.InboxWSHook)

	pool := dispatcher.NewConnPool(opts.DialTimeout)
	sender := dispatcher.NewNodeSender(d, pool)

	publisher := subscription.NewPublisher(sender, opts.Blobs)
	subscriber := subscription.NewSubscriber(sender, clock.Default)
	d.SetSubscriptionManagers(publisher, subscriber)
	dispatcher.RegisterSubscriptionHandlers(d)

	n = &Node{
		Options:         opts,
		KV:              store,
		Identity:        registry,
		Inbox:           inboxStore,
		Dispatcher:      d,
		Fanout:          fanout,
		Publisher:       publisher,
		Subscriber:      subscriber,
		Sandbox:         toolSandbox,
		NodeName:        nodeName,
		NodeEncryptKeys: encKeys,
		NodeSignKeys:    signKeys,
		pool:            pool,
		commands:        make(chan Command, opts.CommandBufferSize),
	}
	n.env.Store(LoadEnvConfig())

	logger.WithField("node", nodeName.String()).Info("node constructed")
	return n, nil
}

func deriveKeyPair(seed *[32]byte) (*crypto.KeyPair, error) {
	if seed != nil {
		return crypto.FromSecretKey(*seed)
	}
	return crypto.GenerateKeyPair()
}

func deriveSignKeyPair(seed *[32]byte) (*crypto.SignKeyPair, error) {
	if seed != nil {
		return crypto.SignKeyPairFromSeed(*seed), nil
	}
	return crypto.GenerateSignKeyPair()
}

// Env returns the currently cached environment configuration.
func (n *Node) Env() *EnvConfig {
	return n.env.Load()
}

// ReloadEnv atomically swaps the cached EnvConfig for a freshly read
// one.
func (n *Node) ReloadEnv() {
	n.env.Store(LoadEnvConfig())
}

// Authenticate validates an HTTP collaborator's bearer token against
// API_V2_KEY.
func (n *Node) Authenticate(bearerToken string) bool {
	key := n.Env().APIV2Key
	return key != "" && bearerToken == key
}

// Start registers this node's own identity if absent, then begins serving
// the Network Dispatcher's TCP accept loop and, if configured, the
// WebSocket Fanout's HTTP upgrade endpoint. It blocks until ctx is
// cancelled or a fatal invariant violation forces a shutdown.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("shinkai: node already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.running = true
	n.mu.Unlock()

	if err := n.ensureSelfRegistered(); err != nil {
		return err
	}

	logger := logrus.WithFields(logrus.Fields{"function": "Start", "package": "shinkai", "node": n.NodeName.String()})

	if n.Options.WSListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				if err := n.Fanout.HandleUpgrade(w, r); err != nil {
					logger.WithError(err).Debug("websocket upgrade failed")
				}
			})
			srv := &http.Server{Addr: n.Options.WSListenAddr, Handler: mux}
			go func() {
				<-runCtx.Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("websocket fanout server exited")
			}
		}()
	}

	logger.Info("starting dispatcher accept loop")
	err := n.Dispatcher.Start(runCtx, n.Options.ListenAddr)

	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
	n.pool.CloseAll()
	return err
}

// ensureSelfRegistered inserts this node's own StandardIdentity into the
// registry if it is not already present, so the dispatcher can resolve
// its own node_sign key when verifying loopback traffic and so HTTP
// collaborators can look up node-level metadata through the registry.
func (n *Node) ensureSelfRegistered() error {
	if _, err := n.Identity.Resolve(n.NodeName); err == nil {
		return nil
	}
	self := &identity.StandardIdentity{
		FullName:      n.NodeName,
		NodeEncryptPK: n.NodeEncryptKeys.Public,
		NodeSignPK:    n.NodeSignKeys.Public,
		IdentityType:  identity.IdentityTypeGlobal,
		Permission:    identity.PermissionAdmin,
	}
	if err := n.Identity.InsertProfile(self); err != nil {
		return fmt.Errorf("shinkai: register self identity: %w", err)
	}
	return nil
}

// Shutdown stops the accept loop and WebSocket server and releases the KV
// handle. It is safe to call even if Start was never invoked.
func (n *Node) Shutdown() error {
	n.mu.Lock()
	cancel := n.cancel
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return n.KV.Close()
}
