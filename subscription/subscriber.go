package subscription

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/clock"
	"github.com/shinkai-net/shinkai-node/envelope"
)

// Tunable defaults.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxBackoff     = 5 * time.Minute
	DefaultMaxFailures    = 5
	initialBackoff        = 1 * time.Second
)

// Subscriber is the subscriber-side subscription state machine (the My
// Subscriptions Manager).
type Subscriber struct {
	mu   sync.Mutex
	subs map[ID]*Subscription

	sender      Sender
	clk         clock.Provider
	maxFailures int
	maxBackoff  time.Duration
}

// NewSubscriber builds a Subscriber sending through sender, using clk for
// deadline bookkeeping (clock.Default if nil).
func NewSubscriber(sender Sender, clk clock.Provider) *Subscriber {
	if clk == nil {
		clk = clock.Default
	}
	return &Subscriber{
		subs:        make(map[ID]*Subscription),
		sender:      sender,
		clk:         clk,
		maxFailures: DefaultMaxFailures,
		maxBackoff:  DefaultMaxBackoff,
	}
}

func (s *Subscriber) getOrCreate(id ID) *Subscription {
	sub, ok := s.subs[id]
	if !ok {
		sub = &Subscription{ID: id, State: StatePending, backoff: initialBackoff}
		s.subs[id] = sub
	}
	return sub
}

// RequestAvailable sends AvailableSharedItems to streamerNode and returns
// once the send completes; it does not wait for the response.
func (s *Subscriber) RequestAvailable(ctx context.Context, streamerNode, streamerProfile, path string) error {
	return s.sender.SendToNode(ctx, streamerNode, streamerProfile, envelope.SchemaTagAvailableSharedItems,
		AvailableSharedItems{StreamerNode: streamerNode, StreamerProfile: streamerProfile, Path: path})
}

// Subscribe sends a SubscribeToSharedFolder request and transitions the
// local subscription to RequestSent.
func (s *Subscriber) Subscribe(ctx context.Context, streamerNode, streamerProfile, path string, payment *Payment) error {
	id := ID{StreamerNode: streamerNode, SharedPath: path, SubscriberNode: ""}

	s.mu.Lock()
	sub := s.getOrCreate(id)
	sub.State = StateRequestSent
	sub.LastRequestSent = s.clk.Now()
	s.mu.Unlock()

	err := s.sender.SendToNode(ctx, streamerNode, streamerProfile, envelope.SchemaTagSubscribeToSharedFolder,
		SubscribeToSharedFolder{
			StreamerNode:    streamerNode,
			StreamerProfile: streamerProfile,
			Path:            path,
			Payment:         payment,
			BaseFolder:      path,
		})
	if err != nil {
		s.recordFailure(id)
		return err
	}
	return nil
}

// HandleSubscribeResponse processes a SubscribeToSharedFolderResponse,
// transitioning the subscription to ResponseAvailable on success or
// recording a failure otherwise.
func (s *Subscriber) HandleSubscribeResponse(id ID, resp SubscriptionGenericResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.getOrCreate(id)
	if resp.Status != StatusSuccess {
		s.failLocked(sub)
		return apierr.New(apierr.KindSubscriptionRejected, "subscription: "+resp.Error)
	}
	sub.State = StateResponseAvailable
	sub.LastResponseReceived = s.clk.Now()
	sub.consecutiveFailures = 0
	sub.backoff = initialBackoff
	return nil
}

// HandleTreeUpdate processes a publisher-pushed SubscriptionRequiresTreeUpdate:
// it caches the pushed tree, marks the subscription Synced, and returns the
// response carrying the subscriber's (now-current) Merkle root.
func (s *Subscriber) HandleTreeUpdate(id ID, update SubscriptionRequiresTreeUpdate) SubscriptionRequiresTreeUpdateResponse {
	ComputeMerkleHashes(&update.Tree)

	s.mu.Lock()
	sub := s.getOrCreate(id)
	sub.CachedTree = &update.Tree
	sub.State = StateSynced
	sub.LastResponseReceived = s.clk.Now()
	sub.consecutiveFailures = 0
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"function": "HandleTreeUpdate", "package": "subscription", "path": id.SharedPath}).
		Info("subscription synced")

	return SubscriptionRequiresTreeUpdateResponse{
		Path:           id.SharedPath,
		SubscriberRoot: hex.EncodeToString(update.Tree.MerkleHash[:]),
	}
}

// Get returns the current Subscription for id, if any.
func (s *Subscriber) Get(id ID) (*Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, false
	}
	clone := *sub
	return &clone, true
}

func (s *Subscriber) recordFailure(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(s.getOrCreate(id))
}

func (s *Subscriber) failLocked(sub *Subscription) {
	sub.consecutiveFailures++
	sub.backoff *= 2
	if sub.backoff > s.maxBackoff {
		sub.backoff = s.maxBackoff
	}
	if sub.consecutiveFailures >= s.maxFailures {
		sub.State = StateFailed
	} else {
		sub.State = StatePending
	}
}

// CheckTimeouts scans every tracked subscription and fails any whose
// request has been outstanding longer than DefaultRequestTimeout without a
// response, returning the set of ids whose state changed to Failed or was
// reset to Pending for retry.
func (s *Subscriber) CheckTimeouts() []ID {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []ID
	for id, sub := range s.subs {
		if sub.State != StateRequestSent {
			continue
		}
		if now.Sub(sub.LastRequestSent) < DefaultRequestTimeout {
			continue
		}
		s.failLocked(sub)
		changed = append(changed, id)
	}
	return changed
}
