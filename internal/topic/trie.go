// Package topic implements the broker's subscription tree: a trie keyed
// by topic-filter path segment, supporting '+' and '#' wildcards
// (spec.md §4.4).
package topic

import (
	"strings"
	"sync"

	"github.com/telemq/telemq/internal/model"
)

// node is one level of the subscription trie. Each node owns its own
// mutex so that siblings can be walked concurrently, mirroring the
// teacher's per-node locking trie.
type node struct {
	mu          sync.RWMutex
	children    map[string]*node
	subscribers map[string]struct{}
}

func newNode() *node {
	return &node{
		children:    make(map[string]*node),
		subscribers: make(map[string]struct{}),
	}
}

// Tree is the broker-owned subscription trie. Per spec.md §5 it has
// exactly one owner (the router task) and needs no locking of its own
// beyond what lets Find run concurrently with Insert/Remove in tests;
// in production the router never calls it from more than one goroutine.
type Tree struct {
	root *node
}

func NewTree() *Tree {
	return &Tree{root: newNode()}
}

// Insert adds clientID as a subscriber of filter.
func (t *Tree) Insert(filter, clientID string) error {
	if err := model.ValidateFilter(filter); err != nil {
		return err
	}

	levels := model.SplitLevels(filter)
	n := t.root
	for _, level := range levels {
		n.mu.Lock()
		child, ok := n.children[level]
		if !ok {
			child = newNode()
			n.children[level] = child
		}
		n.mu.Unlock()
		n = child
	}

	n.mu.Lock()
	n.subscribers[clientID] = struct{}{}
	n.mu.Unlock()
	return nil
}

// Remove drops clientID's subscription to filter, pruning any node left
// with no subscribers and no children.
func (t *Tree) Remove(filter, clientID string) {
	levels := model.SplitLevels(filter)
	path := make([]*node, 0, len(levels)+1)
	path = append(path, t.root)

	n := t.root
	for _, level := range levels {
		n.mu.RLock()
		child := n.children[level]
		n.mu.RUnlock()
		if child == nil {
			return
		}
		path = append(path, child)
		n = child
	}

	n.mu.Lock()
	delete(n.subscribers, clientID)
	n.mu.Unlock()

	for i := len(path) - 1; i > 0; i-- {
		cur := path[i]
		parent := path[i-1]

		cur.mu.RLock()
		empty := len(cur.subscribers) == 0 && len(cur.children) == 0
		cur.mu.RUnlock()
		if !empty {
			break
		}

		parent.mu.Lock()
		for key, child := range parent.children {
			if child == cur {
				delete(parent.children, key)
				break
			}
		}
		parent.mu.Unlock()
	}
}

// RemoveClient removes clientID from every subscriber set in the tree,
// without pruning empty nodes (spec.md §4.4 marks pruning optional here).
func (t *Tree) RemoveClient(clientID string) {
	removeClientRecursive(t.root, clientID)
}

func removeClientRecursive(n *node, clientID string) {
	n.mu.Lock()
	delete(n.subscribers, clientID)
	children := make([]*node, 0, len(n.children))
	for _, c := range n.children {
		children = append(children, c)
	}
	n.mu.Unlock()

	for _, c := range children {
		removeClientRecursive(c, clientID)
	}
}

// Find returns the set of client ids subscribed to a filter that matches
// topic, honoring '+' (single level) and '#' (multi level, must be final).
// Topics beginning with '$' are excluded from wildcard matches at
// position 0: neither '#' nor '+' as the first filter level matches them.
func (t *Tree) Find(topic string) map[string]struct{} {
	levels := model.SplitLevels(topic)
	result := make(map[string]struct{})
	isSysTopic := strings.HasPrefix(topic, "$")
	t.findRecursive(t.root, levels, 0, isSysTopic, result)
	return result
}

func (t *Tree) findRecursive(n *node, levels []string, depth int, isSysTopic bool, result map[string]struct{}) {
	if depth == len(levels) {
		n.mu.RLock()
		for id := range n.subscribers {
			result[id] = struct{}{}
		}
		hash := n.children["#"]
		n.mu.RUnlock()

		// '#' matches any subsequent depth including zero, so a
		// subscriber stored at this node's own '#' child also matches
		// the topic that ends exactly here.
		if hash != nil && !(depth == 0 && isSysTopic) {
			hash.mu.RLock()
			for id := range hash.subscribers {
				result[id] = struct{}{}
			}
			hash.mu.RUnlock()
		}
		return
	}

	segment := levels[depth]

	n.mu.RLock()
	exact := n.children[segment]
	plus := n.children["+"]
	hash := n.children["#"]
	n.mu.RUnlock()

	if exact != nil {
		t.findRecursive(exact, levels, depth+1, isSysTopic, result)
	}

	atRoot := depth == 0
	if plus != nil && !(atRoot && isSysTopic) {
		t.findRecursive(plus, levels, depth+1, isSysTopic, result)
	}

	if hash != nil && !(atRoot && isSysTopic) {
		hash.mu.RLock()
		for id := range hash.subscribers {
			result[id] = struct{}{}
		}
		hash.mu.RUnlock()
	}
}

// Count returns the number of distinct (filter-node, client) subscription
// entries in the tree, for diagnostics/tests.
func (t *Tree) Count() int {
	return countRecursive(t.root)
}

func countRecursive(n *node) int {
	n.mu.RLock()
	total := len(n.subscribers)
	children := make([]*node, 0, len(n.children))
	for _, c := range n.children {
		children = append(children, c)
	}
	n.mu.RUnlock()

	for _, c := range children {
		total += countRecursive(c)
	}
	return total
}
