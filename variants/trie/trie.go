// Package trie implements a byte-level arena trie shared by the RWKV and
// UGM tokenizer variants: insert raw byte sequences
// mapped to a token id, then greedily match the longest byte run starting
// at any position.
package trie

// node is one arena-indexed trie node; next maps a byte value to a child
// node index within the same arena, avoiding a pointer-heavy tree.
type node struct {
	next  map[byte]int
	value uint32
	has   bool
}

// Trie is a byte-keyed trie over an arena of nodes, rooted at index 0.
type Trie struct {
	nodes []node
}

// New returns an empty trie containing only its root node.
func New() *Trie {
	return &Trie{nodes: []node{{next: map[byte]int{}}}}
}

// Insert associates the byte sequence bs with id, creating intermediate
// nodes as needed.
func (t *Trie) Insert(bs []byte, id uint32) {
	cur := 0
	for _, b := range bs {
		next, ok := t.nodes[cur].next[b]
		if !ok {
			next = len(t.nodes)
			t.nodes = append(t.nodes, node{next: map[byte]int{}})
			t.nodes[cur].next[b] = next
		}
		cur = next
	}
	t.nodes[cur].value = id
	t.nodes[cur].has = true
}

// LongestMatch walks bs starting at pos, returning the id and end offset
// (exclusive) of the longest byte run from pos that terminates on a node
// carrying a value. ok is false if no prefix of bs at pos matches anything.
func (t *Trie) LongestMatch(bs []byte, pos int) (id uint32, end int, ok bool) {
	root := &t.nodes[0]
	cur, hasNode := root.next[bs[pos]]
	if !hasNode {
		return 0, pos, false
	}

	bestID := uint32(0)
	bestEnd := pos
	if t.nodes[cur].has {
		bestID, bestEnd = t.nodes[cur].value, pos+1
	}

	i := pos + 1
	for i < len(bs) {
		next, hasEdge := t.nodes[cur].next[bs[i]]
		if !hasEdge {
			break
		}
		cur = next
		i++
		if t.nodes[cur].has {
			bestID, bestEnd = t.nodes[cur].value, i
		}
	}

	if bestEnd > pos {
		return bestID, bestEnd, true
	}
	return 0, pos, false
}

// Root returns the root node index, the starting point for Traverse.
func (t *Trie) Root() int { return 0 }

// Traverse follows the edge labeled b from node, returning the child node
// index if present.
func (t *Trie) Traverse(node int, b byte) (int, bool) {
	next, ok := t.nodes[node].next[b]
	return next, ok
}

// Value returns the token id stored at node, if any.
func (t *Trie) Value(node int) (uint32, bool) {
	n := t.nodes[node]
	return n.value, n.has
}
