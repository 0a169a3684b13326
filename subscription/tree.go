package subscription

import (
	"sort"
	"time"

	"github.com/shinkai-net/shinkai-node/crypto"
)

// FSNode is one node of a shared folder's file tree, certified by a
// Merkle hash derived from its own metadata and the hashes of its
// children.
type FSNode struct {
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	LastModified time.Time         `json:"last_modified"`
	WebLink      *string           `json:"web_link,omitempty"`
	Children     map[string]FSNode `json:"children,omitempty"`

	// MerkleHash is populated by ComputeMerkleHashes; it is not part of
	// the wire-transmitted identity of a node, only a derived summary.
	MerkleHash crypto.Hash `json:"merkle_hash"`
}

// ComputeMerkleHashes recomputes n's Merkle hash and every descendant's,
// bottom-up, returning the root hash. Leaf hashes cover name/path/
// last_modified; interior hashes additionally fold in each child's hash in
// sorted-name order so the root certifies the whole subtree.
func ComputeMerkleHashes(n *FSNode) crypto.Hash {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	buf = append(buf, []byte(n.Name)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(n.Path)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(n.LastModified.UTC().Format(time.RFC3339Nano))...)

	for _, name := range names {
		child := n.Children[name]
		childHash := ComputeMerkleHashes(&child)
		n.Children[name] = child
		buf = append(buf, 0)
		buf = append(buf, childHash[:]...)
	}

	n.MerkleHash = crypto.SHA256(buf)
	return n.MerkleHash
}

// Diff returns the set of paths present in want but either absent from
// have or differing in MerkleHash — the files the publisher must push (or
// the subscriber must request) to converge have onto want.
func Diff(have, want *FSNode) []string {
	var out []string
	diffInto(have, want, &out)
	return out
}

func diffInto(have, want *FSNode, out *[]string) {
	if have == nil || have.MerkleHash != want.MerkleHash {
		if len(want.Children) == 0 {
			*out = append(*out, want.Path)
			return
		}
	}
	for name, wantChild := range want.Children {
		var haveChild *FSNode
		if have != nil {
			if c, ok := have.Children[name]; ok {
				haveChild = &c
			}
		}
		wc := wantChild
		diffInto(haveChild, &wc, out)
	}
}
