package broker

import (
	"strings"
	"sync"

	"github.com/telemq/telemq/internal/codec"
	"github.com/telemq/telemq/internal/topic"
)

// retainedTrieNode is one level of the retained-message trie.
type retainedTrieNode struct {
	children map[string]*retainedTrieNode
	message  *codec.Publish
}

func newRetainedTrieNode() *retainedTrieNode {
	return &retainedTrieNode{children: make(map[string]*retainedTrieNode)}
}

// retainedTable is the Router's exact-topic retained-message store
// (spec.md §3 RetainedMessage invariant: at most one per exact topic,
// empty payload deletes). Grounded on the teacher's trie-based retained
// store; the MQTT5-only expiry-interval/TTL cleanup loop is dropped since
// spec.md's retained messages have no expiry field.
type retainedTable struct {
	mu   sync.Mutex
	root *retainedTrieNode
}

func newRetainedTable() *retainedTable {
	return &retainedTable{root: newRetainedTrieNode()}
}

// set replaces (or, for an empty payload, deletes) the retained message
// at pkt's exact topic.
func (r *retainedTable) set(pkt *codec.Publish) {
	r.mu.Lock()
	defer r.mu.Unlock()

	levels := topic.SplitLevelsRaw(pkt.Topic)
	if len(pkt.Payload) == 0 {
		r.deleteLocked(levels)
		return
	}

	n := r.root
	for _, level := range levels {
		child, ok := n.children[level]
		if !ok {
			child = newRetainedTrieNode()
			n.children[level] = child
		}
		n = child
	}
	n.message = pkt
}

func (r *retainedTable) deleteLocked(levels []string) {
	path := []*retainedTrieNode{r.root}
	n := r.root
	for _, level := range levels {
		child, ok := n.children[level]
		if !ok {
			return
		}
		path = append(path, child)
		n = child
	}
	n.message = nil

	for i := len(path) - 1; i > 0; i-- {
		cur, parent := path[i], path[i-1]
		if cur.message != nil || len(cur.children) > 0 {
			break
		}
		for key, child := range parent.children {
			if child == cur {
				delete(parent.children, key)
				break
			}
		}
	}
}

// match returns every retained message whose topic matches filter.
func (r *retainedTable) match(filter string) []*codec.Publish {
	r.mu.Lock()
	defer r.mu.Unlock()

	levels := topic.SplitLevelsRaw(filter)
	var matched []*codec.Publish
	r.matchRecursive(r.root, levels, 0, &matched)
	return matched
}

func (r *retainedTable) matchRecursive(n *retainedTrieNode, levels []string, depth int, matched *[]*codec.Publish) {
	if depth == len(levels) {
		if n.message != nil {
			*matched = append(*matched, n.message)
		}
		return
	}

	level := levels[depth]

	if level == "#" {
		if depth == 0 {
			r.collectAllExceptSys(n, matched)
		} else {
			r.collectAll(n, matched)
		}
		return
	}

	if level == "+" {
		for name, child := range n.children {
			if depth == 0 && strings.HasPrefix(name, "$") {
				continue
			}
			r.matchRecursive(child, levels, depth+1, matched)
		}
		return
	}

	if child, ok := n.children[level]; ok {
		r.matchRecursive(child, levels, depth+1, matched)
	}
}

// collectAllExceptSys behaves like collectAll but skips this node's own
// $-prefixed children, matching the '+' exclusion above: a '#' filter at
// position 0 must not sweep in $SYS retained messages either (spec.md §6).
func (r *retainedTable) collectAllExceptSys(n *retainedTrieNode, matched *[]*codec.Publish) {
	if n.message != nil {
		*matched = append(*matched, n.message)
	}
	for name, child := range n.children {
		if strings.HasPrefix(name, "$") {
			continue
		}
		r.collectAll(child, matched)
	}
}

func (r *retainedTable) collectAll(n *retainedTrieNode, matched *[]*codec.Publish) {
	if n.message != nil {
		*matched = append(*matched, n.message)
	}
	for _, child := range n.children {
		r.collectAll(child, matched)
	}
}

// count reports the number of retained messages currently held, for
// internal/metrics' gauge.
func (r *retainedTable) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*codec.Publish
	r.collectAll(r.root, &matched)
	return len(matched)
}
