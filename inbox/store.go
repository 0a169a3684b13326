package inbox

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/identity"
	"github.com/shinkai-net/shinkai-node/kv"
)

const family = "inbox"

// presentMarker is the value stored for pure-index keys (child-of-parent,
// root, job-by-provider), where only the key's presence matters. A nil
// WriteOp value would mean delete.
var presentMarker = []byte("1")

// ErrDuplicate is returned by Insert when the envelope's canonical hash
// already exists in the inbox. The dispatcher treats this
// as an idempotent no-op rather than a user-visible failure.
var ErrDuplicate = errors.New("inbox: message already present")

// WSHook is invoked after a successful insert, carrying the raw serialized
// envelope so the WebSocket fanout can deliver it without re-reading
// storage.
type WSHook func(inboxName string, hash crypto.Hash, raw []byte)

// Store is the inbox and job store: a tree-structured per-inbox message
// log plus job metadata, persisted through a kv.Store.
type Store struct {
	kv kv.Store
}

// New wraps store as an inbox Store.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func hashHex(h crypto.Hash) string { return hex.EncodeToString(h[:]) }

func messageKey(inboxName, hashHexStr string) []byte {
	return []byte("message:" + inboxName + ":" + hashHexStr)
}
func parentKey(inboxName, hashHexStr string) []byte {
	return []byte("parent:" + inboxName + ":" + hashHexStr)
}
func childKey(inboxName, parentHex, childHex string) []byte {
	return []byte("child:" + inboxName + ":" + parentHex + ":" + childHex)
}
func childPrefix(inboxName, parentHex string) []byte {
	return []byte("child:" + inboxName + ":" + parentHex + ":")
}
func rootKey(inboxName, hashHexStr string) []byte {
	return []byte("root:" + inboxName + ":" + hashHexStr)
}
func rootPrefix(inboxName string) []byte {
	return []byte("root:" + inboxName + ":")
}
func tsKey(inboxName, hashHexStr string) []byte {
	return []byte("ts:" + inboxName + ":" + hashHexStr)
}
func aclKey(inboxName, name string) []byte {
	return []byte("acl:" + inboxName + ":" + name)
}
func aclPrefix(inboxName string) []byte {
	return []byte("acl:" + inboxName + ":")
}

// GrantACL records that identity name holds role on inboxName. Requires
// Admin on the caller's part; callers authorize before calling GrantACL.
func (s *Store) GrantACL(inboxName string, name identity.Name, role identity.InboxRole) error {
	return s.kv.Batch(kv.Put(family, aclKey(inboxName, name.String()), []byte(role.String())))
}

// ACL returns the full ACL map for inboxName.
func (s *Store) ACL(inboxName string) (map[string]identity.InboxRole, error) {
	out := make(map[string]identity.InboxRole)
	err := s.kv.PrefixScan(family, aclPrefix(inboxName), func(e kv.Entry) bool {
		name := string(e.Key[len(aclPrefix(inboxName)):])
		role, parseErr := identity.ParseInboxRole(string(e.Value))
		if parseErr == nil {
			out[name] = role
		}
		return true
	})
	return out, err
}

// Authorize checks that requester's effective role on inboxName meets
// required, returning apierr.KindPermissionDenied otherwise.
func (s *Store) Authorize(inboxName string, requester identity.Name, required identity.InboxRole) error {
	acl, err := s.ACL(inboxName)
	if err != nil {
		return err
	}
	if !hasRole(acl, requester, required) {
		return apierr.New(apierr.KindPermissionDenied, "inbox: insufficient role on "+inboxName)
	}
	return nil
}

// Insert writes env into inboxName, linking it to parentHash if given.
// Out-of-order parent timestamps are allowed; the write
// is a single atomic batch; ws_hook fires only after a successful write.
func (s *Store) Insert(inboxName string, env *envelope.Envelope, parentHash *crypto.Hash, hook WSHook) (crypto.Hash, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Insert",
		"package":  "inbox",
		"inbox":    inboxName,
	})

	h, err := envelope.CanonicalHash(env)
	if err != nil {
		return crypto.Hash{}, err
	}
	hHex := hashHex(h)

	exists, err := s.kv.Has(family, messageKey(inboxName, hHex))
	if err != nil {
		return crypto.Hash{}, err
	}
	if exists {
		return h, ErrDuplicate
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return crypto.Hash{}, err
	}

	ops := []kv.WriteOp{kv.Put(family, messageKey(inboxName, hHex), raw)}

	if parentHash != nil {
		parentHex := hashHex(*parentHash)
		parentExists, err := s.kv.Has(family, messageKey(inboxName, parentHex))
		if err != nil {
			return crypto.Hash{}, err
		}
		if !parentExists {
			return crypto.Hash{}, apierr.New(apierr.KindNotFound, "inbox: parent_hash not found in "+inboxName)
		}
		ops = append(ops,
			kv.Put(family, parentKey(inboxName, hHex), []byte(parentHex)),
			kv.Put(family, childKey(inboxName, parentHex, hHex), presentMarker),
		)
	} else {
		ops = append(ops, kv.Put(family, rootKey(inboxName, hHex), presentMarker))
	}

	ts := env.ExternalMeta.Timestamp.UTC().Format(time.RFC3339Nano)
	ops = append(ops, kv.Put(family, tsKey(inboxName, hHex), []byte(ts)))

	if err := s.kv.Batch(ops...); err != nil {
		return crypto.Hash{}, err
	}

	logger.WithField("hash", hHex).Info("message inserted")

	if hook != nil {
		hook(inboxName, h, raw)
	}
	return h, nil
}

// Get fetches a single message by hash.
func (s *Store) Get(inboxName string, h crypto.Hash) (*envelope.Envelope, error) {
	raw, err := s.kv.Get(family, messageKey(inboxName, hashHex(h)))
	if err == kv.ErrNotFound {
		return nil, apierr.New(apierr.KindNotFound, "inbox: message not found")
	}
	if err != nil {
		return nil, err
	}
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

type node struct {
	hash      string
	timestamp string
}

func (s *Store) timestamp(inboxName, hHex string) (string, error) {
	raw, err := s.kv.Get(family, tsKey(inboxName, hHex))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Store) children(inboxName, parentHex string) ([]string, error) {
	var out []string
	prefix := childPrefix(inboxName, parentHex)
	err := s.kv.PrefixScan(family, prefix, func(e kv.Entry) bool {
		out = append(out, string(e.Key[len(prefix):]))
		return true
	})
	return out, err
}

func (s *Store) roots(inboxName string) ([]string, error) {
	var out []string
	prefix := rootPrefix(inboxName)
	err := s.kv.PrefixScan(family, prefix, func(e kv.Entry) bool {
		out = append(out, string(e.Key[len(prefix):]))
		return true
	})
	return out, err
}

func (s *Store) sortedNodes(inboxName string, hashes []string) ([]node, error) {
	nodes := make([]node, 0, len(hashes))
	for _, hHex := range hashes {
		ts, err := s.timestamp(inboxName, hHex)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node{hash: hHex, timestamp: ts})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].timestamp != nodes[j].timestamp {
			return nodes[i].timestamp < nodes[j].timestamp
		}
		return nodes[i].hash < nodes[j].hash
	})
	return nodes, nil
}

// MessageGroup is one level of sibling envelopes, ordered by timestamp
// then hash.
type MessageGroup []*envelope.Envelope

// LastN returns the last n messages from inboxName as a sequence of
// message groups (tree levels), walking from the newest root downward.
// parent pointers, not timestamps, define level structure, so an
// out-of-order insert still produces the same shape.
func (s *Store) LastN(inboxName string, n int, offset int) ([]MessageGroup, error) {
	rootHashes, err := s.roots(inboxName)
	if err != nil {
		return nil, err
	}
	rootNodes, err := s.sortedNodes(inboxName, rootHashes)
	if err != nil {
		return nil, err
	}
	// Newest root first.
	sort.SliceStable(rootNodes, func(i, j int) bool { return rootNodes[i].timestamp > rootNodes[j].timestamp })

	var groups []MessageGroup
	for _, root := range rootNodes {
		levels, err := s.bfsLevels(inboxName, root.hash)
		if err != nil {
			return nil, err
		}
		groups = append(groups, levels...)
	}

	return paginate(groups, n, offset), nil
}

// bfsLevels walks the subtree rooted at rootHex level by level, returning
// one MessageGroup per level.
func (s *Store) bfsLevels(inboxName, rootHex string) ([]MessageGroup, error) {
	var levels []MessageGroup
	frontier := []string{rootHex}
	for len(frontier) > 0 {
		sortedFrontier, err := s.sortedNodes(inboxName, frontier)
		if err != nil {
			return nil, err
		}
		group := make(MessageGroup, 0, len(sortedFrontier))
		var next []string
		for _, n := range sortedFrontier {
			env, err := s.Get(inboxName, mustHash(n.hash))
			if err != nil {
				return nil, err
			}
			group = append(group, env)
			kids, err := s.children(inboxName, n.hash)
			if err != nil {
				return nil, err
			}
			next = append(next, kids...)
		}
		levels = append(levels, group)
		frontier = next
	}
	return levels, nil
}

func mustHash(hHex string) crypto.Hash {
	raw, _ := hex.DecodeString(hHex)
	var h crypto.Hash
	copy(h[:], raw)
	return h
}

// paginate applies offset then n over the flattened group sequence,
// preserving group boundaries: whole groups are dropped from the front,
// and at most one boundary group is trimmed when a cut falls mid-group.
func paginate(groups []MessageGroup, n, offset int) []MessageGroup {
	// Apply offset: drop the earliest `offset` messages.
	for offset > 0 && len(groups) > 0 {
		if offset >= len(groups[0]) {
			offset -= len(groups[0])
			groups = groups[1:]
			continue
		}
		groups[0] = groups[0][offset:]
		offset = 0
	}

	if n <= 0 {
		return nil
	}

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total <= n {
		return groups
	}

	// Keep the most recent n messages: drop whole groups from the front
	// until the remainder fits, then trim the first surviving group.
	drop := total - n
	out := groups
	for drop > 0 && len(out) > 0 {
		if drop >= len(out[0]) {
			drop -= len(out[0])
			out = out[1:]
			continue
		}
		trimmed := append(MessageGroup(nil), out[0][drop:]...)
		out = append([]MessageGroup{trimmed}, out[1:]...)
		drop = 0
	}
	return out
}
