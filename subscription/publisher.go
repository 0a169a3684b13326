package subscription

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/blobstore"
	"github.com/shinkai-net/shinkai-node/envelope"
)

// Publisher is the publisher-side subscription state machine (the
// External Subscriber Manager): it maintains advertised
// shared folders and pushes tree updates to active subscribers.
type Publisher struct {
	mu     sync.Mutex
	shared map[string]*SharedFolderInfo  // path -> advertisement
	subs   map[string][]activeSubscriber // path -> active subscribers

	sender Sender
	blobs  blobstore.Store // optional; nil if the folder isn't object-store-backed
}

// NewPublisher builds a Publisher that sends outbound protocol messages
// through sender. blobs may be nil when no shared folder is object-store
// backed.
func NewPublisher(sender Sender, blobs blobstore.Store) *Publisher {
	return &Publisher{
		shared: make(map[string]*SharedFolderInfo),
		subs:   make(map[string][]activeSubscriber),
		sender: sender,
		blobs:  blobs,
	}
}

// Share advertises path with the given tree, permission, and optional
// subscription requirement, (re)computing its Merkle root.
func (p *Publisher) Share(path, profile string, tree FSNode, permission FolderPermission, req *Requirement) {
	ComputeMerkleHashes(&tree)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.shared[path] = &SharedFolderInfo{
		Path:        path,
		Permission:  permission,
		Profile:     profile,
		Tree:        tree,
		Requirement: req,
	}
	logrus.WithFields(logrus.Fields{"function": "Share", "package": "subscription", "path": path}).Info("folder advertised")
}

// Unshare removes path's advertisement and every active subscriber to it.
func (p *Publisher) Unshare(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.shared, path)
	delete(p.subs, path)
}

func (p *Publisher) visibleTo(info *SharedFolderInfo, subscriberNode string) bool {
	switch info.Permission {
	case PermissionPublic:
		return true
	case PermissionWhitelist:
		if info.Requirement == nil {
			return false
		}
		for _, n := range info.Requirement.Whitelist {
			if n == subscriberNode {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// HandleAvailableSharedItems answers an AvailableSharedItems request with
// every folder subscriberNode may see under path.
func (p *Publisher) HandleAvailableSharedItems(subscriberNode, path string) AvailableSharedItemsResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]SharedFolderInfo)
	for folderPath, info := range p.shared {
		if path != "" && !strings.HasPrefix(folderPath, path) {
			continue
		}
		if !p.visibleTo(info, subscriberNode) {
			continue
		}
		out[folderPath] = *info
	}
	return AvailableSharedItemsResponse{Shared: out}
}

func meetsRequirement(req *Requirement, payment *Payment) bool {
	if req == nil || req.MinPayment == nil {
		return true
	}
	return payment != nil && payment.Kind == req.MinPayment.Kind
}

// HandleSubscribe validates subscriberNode's offer to subscribe to path
// against its subscription_requirement and, on success, records the
// subscriber as active.
func (p *Publisher) HandleSubscribe(subscriberNode, path string, payment *Payment) (*SubscriptionGenericResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.shared[path]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "subscription: folder "+path+" not shared")
	}
	if !p.visibleTo(info, subscriberNode) {
		return nil, apierr.New(apierr.KindPermissionDenied, "subscription: "+subscriberNode+" may not see "+path)
	}
	if !meetsRequirement(info.Requirement, payment) {
		return &SubscriptionGenericResponse{
			Status: StatusError,
			Error:  "subscription: payment does not meet requirement",
		}, apierr.New(apierr.KindSubscriptionRejected, "subscription: payment requirement not met")
	}

	p.subs[path] = append(p.subs[path], activeSubscriber{subscriberNode: subscriberNode, payment: payment})

	return &SubscriptionGenericResponse{
		Status:       StatusSuccess,
		SharedFolder: path,
		SubscriptionDetails: &Subscription{
			ID:    ID{SharedPath: path, SubscriberNode: subscriberNode},
			State: StateSynced,
		},
	}, nil
}

// HandleUnsubscribe removes subscriberNode from path's active subscriber
// list.
func (p *Publisher) HandleUnsubscribe(subscriberNode, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := p.subs[path]
	out := active[:0]
	for _, s := range active {
		if s.subscriberNode != subscriberNode {
			out = append(out, s)
		}
	}
	p.subs[path] = out
}

// OnLocalChange is called when path's on-disk tree changes; it pushes a
// SubscriptionRequiresTreeUpdate to every active subscriber, attaching
// presigned URLs when the folder is object-store backed.
func (p *Publisher) OnLocalChange(ctx context.Context, path string, newTree FSNode) error {
	ComputeMerkleHashes(&newTree)

	p.mu.Lock()
	info, ok := p.shared[path]
	if !ok {
		p.mu.Unlock()
		return apierr.New(apierr.KindNotFound, "subscription: folder "+path+" not shared")
	}
	info.Tree = newTree
	subscribers := append([]activeSubscriber(nil), p.subs[path]...)
	p.mu.Unlock()

	if len(subscribers) == 0 {
		return nil
	}

	urls, err := p.presignedBatch(ctx, path, &newTree)
	if err != nil {
		return err
	}

	update := SubscriptionRequiresTreeUpdate{Path: path, Tree: newTree, PresignedURLs: urls}
	var firstErr error
	for _, sub := range subscribers {
		if err := p.sender.SendToNode(ctx, sub.subscriberNode, "", envelope.SchemaTagSubscriptionRequiresTreeUpdate, update); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("subscription: push to %s: %w", sub.subscriberNode, err)
		}
	}
	return firstErr
}

func (p *Publisher) presignedBatch(ctx context.Context, path string, tree *FSNode) ([]PresignedURLEntry, error) {
	if p.blobs == nil {
		return nil, nil
	}
	var out []PresignedURLEntry
	var walk func(n *FSNode)
	walk = func(n *FSNode) {
		if len(n.Children) == 0 {
			out = append(out, PresignedURLEntry{Path: n.Path})
			return
		}
		for _, c := range n.Children {
			child := c
			walk(&child)
		}
	}
	walk(tree)

	for i, entry := range out {
		url, err := p.blobs.PresignGet(ctx, entry.Path, blobstore.DefaultPresignTTL)
		if err != nil {
			return nil, err
		}
		out[i].URL = url
	}
	return out, nil
}

// HandleTreeUpdateResponse receives the subscriber's reported Merkle root
// and returns the set of paths the publisher should push to converge the
// subscriber onto path's current tree.
func (p *Publisher) HandleTreeUpdateResponse(path string, resp SubscriptionRequiresTreeUpdateResponse) []string {
	p.mu.Lock()
	info, ok := p.shared[path]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if resp.SubscriberRoot == hex.EncodeToString(info.Tree.MerkleHash[:]) {
		return nil
	}
	return Diff(nil, &info.Tree)
}
