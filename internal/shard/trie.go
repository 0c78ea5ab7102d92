package shard

import "sort"

// Posting is one occurrence record for a token within a document: which
// array positions (for string[] fields, or [0] for a scalar string field)
// it occurred at, and the term frequency used by the ranker's text-match
// score.
type Posting struct {
	SeqID          uint32
	ArrayPositions []int
	TermFrequency  int
}

type trieNode struct {
	children map[byte]*trieNode
	postings map[uint32]*Posting // seq_id -> posting, only set on a terminal node
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[byte]*trieNode)}
}

// Trie is a token-level index: insert/erase maintain posting lists per
// token, lookup performs bounded-typo, optionally prefix, traversal.
type Trie struct {
	root *trieNode
}

func NewTrie() *Trie {
	return &Trie{root: newTrieNode()}
}

// Insert records that token occurs in seqID at arrayPos with the given
// term frequency contribution (added to any existing occurrence in the
// same document, matching the "increment on repeat token" behavior of a
// standard inverted index).
func (t *Trie) Insert(token string, seqID uint32, arrayPos int, tf int) {
	n := t.root
	for i := 0; i < len(token); i++ {
		c := token[i]
		child, ok := n.children[c]
		if !ok {
			child = newTrieNode()
			n.children[c] = child
		}
		n = child
	}
	if n.postings == nil {
		n.postings = make(map[uint32]*Posting)
	}
	p, ok := n.postings[seqID]
	if !ok {
		p = &Posting{SeqID: seqID}
		n.postings[seqID] = p
	}
	p.ArrayPositions = append(p.ArrayPositions, arrayPos)
	p.TermFrequency += tf
}

// Erase removes every posting for seqID under token.
func (t *Trie) Erase(token string, seqID uint32) {
	n := t.root
	for i := 0; i < len(token); i++ {
		child, ok := n.children[token[i]]
		if !ok {
			return
		}
		n = child
	}
	delete(n.postings, seqID)
}

// Candidate is one lookup match: the exact token matched, its edit cost
// (0 for an exact match) and its postings.
type Candidate struct {
	Token    string
	Cost     int
	Postings []*Posting
}

// Lookup traverses the trie for tokens within typoBudget edits of query
// (or, if prefix is true, tokens for which query is a typo-bounded
// prefix), returning one Candidate per distinct matched token found,
// cheapest cost first.
func (t *Trie) Lookup(query string, typoBudget int, prefix bool) []Candidate {
	if typoBudget < 0 {
		typoBudget = 0
	}
	row := make([]int, len(query)+1)
	for i := range row {
		row[i] = i
	}
	var out []Candidate
	var buf []byte
	t.walk(t.root, row, len(query), query, typoBudget, prefix, &buf, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}

// walk performs a Levenshtein-automaton-style DFS: at each trie edge it
// extends the dynamic-programming row by one column and prunes the branch
// once every entry in the row exceeds typoBudget. best is the lowest
// whole-query distance seen on the path so far (the cost of the query
// against the closest prefix of the current token); in prefix mode, once
// that is within typoBudget the whole subtree below is visited and every
// token in it matches at that cost.
func (t *Trie) walk(n *trieNode, prevRow []int, best int, query string, typoBudget int, prefix bool, buf *[]byte, out *[]Candidate) {
	if last := prevRow[len(prevRow)-1]; last < best {
		best = last
	}
	if n.postings != nil {
		c := prevRow[len(prevRow)-1]
		if prefix {
			c = best
		}
		if c <= typoBudget {
			postings := make([]*Posting, 0, len(n.postings))
			for _, p := range n.postings {
				postings = append(postings, p)
			}
			*out = append(*out, Candidate{Token: string(*buf), Cost: c, Postings: postings})
		}
	}
	for ch, child := range n.children {
		*buf = append(*buf, ch)
		row := computeRow(prevRow, ch, query)
		if minInt(row) <= typoBudget || (prefix && best <= typoBudget) {
			t.walk(child, row, best, query, typoBudget, prefix, buf, out)
		}
		*buf = (*buf)[:len(*buf)-1]
	}
}

// computeRow extends the previous Levenshtein DP row by one trie
// character.
func computeRow(prevRow []int, ch byte, query string) []int {
	row := make([]int, len(prevRow))
	row[0] = prevRow[0] + 1
	for i := 1; i < len(row); i++ {
		insertCost := row[i-1] + 1
		deleteCost := prevRow[i] + 1
		substCost := prevRow[i-1]
		if query[i-1] != ch {
			substCost++
		}
		row[i] = minOf3(insertCost, deleteCost, substCost)
	}
	return row
}

func minInt(row []int) int {
	m := row[0]
	for _, v := range row[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func minOf3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
