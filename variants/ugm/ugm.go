// Package ugm implements the Unigram (UGM) tokenizer variant: a trie-based
// user-defined-token presplit followed by score-maximizing Viterbi
// dynamic programming over the remaining text segments (spec.md §5.3).
package ugm

import (
	"math"
	"strings"

	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/variants/trie"
	"github.com/agentstation/gguftok/vocab"
)

const unknownTokenScorePenalty = 10.0

// Engine runs the UGM Viterbi algorithm over a vocabulary.
type Engine struct {
	vocab             *vocab.Vocabulary
	trie              *trie.Trie
	userDefinedTrie   *trie.Trie
	unknownTokenScore float64
}

// New builds a UGM engine: a full trie of normal/user-defined/unused
// tokens for the Viterbi pass, a separate trie of user-defined tokens only
// for the presplit pass, and the unknown-token penalty score derived from
// the minimum normal-token score in the vocabulary.
func New(v *vocab.Vocabulary) *Engine {
	t := trie.New()
	userDefined := trie.New()
	minScore := math.Inf(1)

	for id := 0; id < v.Len(); id++ {
		text, ok := v.TextOf(uint32(id))
		if !ok {
			continue
		}
		switch v.TypeOf(uint32(id)) {
		case vocab.TokenNormal, vocab.TokenUserDefined, vocab.TokenUnused:
			t.Insert([]byte(text), uint32(id))
		}
		if v.TypeOf(uint32(id)) == vocab.TokenUserDefined {
			userDefined.Insert([]byte(text), uint32(id))
		}
		if v.TypeOf(uint32(id)) == vocab.TokenNormal {
			if sc := float64(v.ScoreOf(uint32(id))); sc < minScore {
				minScore = sc
			}
		}
	}

	unknownScore := -10.0
	if !math.IsInf(minScore, 1) {
		unknownScore = minScore - unknownTokenScorePenalty
	}

	return &Engine{vocab: v, trie: t, userDefinedTrie: userDefined, unknownTokenScore: unknownScore}
}

type fragment struct {
	isUserDefined bool
	tokenID       uint32
	text          string
}

// Encode tokenizes text per spec.md §5.3: presplit on user-defined tokens
// via greedy longest match, then run Viterbi DP over each remaining
// segment independently.
func (e *Engine) Encode(text string) ([]uint32, error) {
	if text == "" {
		return nil, nil
	}

	var result []uint32
	for _, frag := range e.splitOnUserDefined(text) {
		if frag.isUserDefined {
			result = append(result, frag.tokenID)
			continue
		}
		toks, err := e.encodeSegment(frag.text)
		if err != nil {
			return nil, err
		}
		result = append(result, toks...)
	}
	return result, nil
}

// splitOnUserDefined scans text byte-by-byte, greedily matching the
// longest user-defined token at each position and emitting the
// intervening plain-text runs as Text fragments.
func (e *Engine) splitOnUserDefined(text string) []fragment {
	bs := []byte(text)
	n := len(bs)

	var fragments []fragment
	pos := 0
	textStart := 0

	for pos < n {
		bestLen := 0
		var bestID uint32
		found := false

		if node, ok := e.userDefinedTrie.Traverse(e.userDefinedTrie.Root(), bs[pos]); ok {
			length := 1
			if id, has := e.userDefinedTrie.Value(node); has {
				bestLen, bestID, found = length, id, true
			}
			for pos+length < n {
				next, ok := e.userDefinedTrie.Traverse(node, bs[pos+length])
				if !ok {
					break
				}
				node = next
				length++
				if id, has := e.userDefinedTrie.Value(node); has {
					bestLen, bestID, found = length, id, true
				}
			}
		}

		if found {
			if pos > textStart {
				fragments = append(fragments, fragment{text: text[textStart:pos]})
			}
			fragments = append(fragments, fragment{isUserDefined: true, tokenID: bestID})
			pos += bestLen
			textStart = pos
		} else {
			pos++
		}
	}

	if textStart < n {
		fragments = append(fragments, fragment{text: text[textStart:]})
	}
	return fragments
}

type best struct {
	token uint32
	start int
	score float64
}

// encodeSegment runs the Viterbi DP over one user-defined-token-free
// segment: best[i] holds the highest-scoring tokenization ending at byte
// offset i, considering every trie-matched token prefix from every earlier
// offset plus a single-codepoint unknown-token fallback.
func (e *Engine) encodeSegment(text string) ([]uint32, error) {
	if text == "" {
		return nil, nil
	}

	n := len(text)
	unkID := e.vocab.UnkTokenID()

	bestTable := make([]best, n+1)
	for i := range bestTable {
		bestTable[i] = best{token: unkID, score: math.Inf(-1)}
	}
	bestTable[0] = best{token: unkID, score: 0}

	bs := []byte(text)
	inputOffset := 0
	for inputOffset < n {
		cpLen := utf8CPLen(bs[inputOffset])
		if inputOffset+cpLen > n {
			cpLen = n - inputOffset
		}

		current := bestTable[inputOffset]

		prefixOffset := inputOffset
		node, ok := e.trie.Traverse(e.trie.Root(), bs[prefixOffset])
		prefixOffset++

		singleCodepointFound := false

		for ok && prefixOffset <= n {
			if id, has := e.trie.Value(node); has {
				if prefixOffset-inputOffset == cpLen {
					singleCodepointFound = true
				}
				tokenScore := float64(e.vocab.ScoreOf(id))
				if e.vocab.TypeOf(id) == vocab.TokenUserDefined {
					tokenScore = 0
				}
				challenger := current.score + tokenScore
				if challenger > bestTable[prefixOffset].score {
					bestTable[prefixOffset] = best{token: id, start: inputOffset, score: challenger}
				}
			}

			if prefixOffset == n {
				break
			}
			node, ok = e.trie.Traverse(node, bs[prefixOffset])
			prefixOffset++
		}

		if !singleCodepointFound {
			next := inputOffset + cpLen
			challenger := current.score + e.unknownTokenScore
			if challenger > bestTable[next].score {
				bestTable[next] = best{token: unkID, start: inputOffset, score: challenger}
			}
		}

		inputOffset += cpLen
	}

	var rev []uint32
	pos := n
	for pos > 0 {
		b := bestTable[pos]
		rev = append(rev, b.token)
		pos = b.start
	}
	out := make([]uint32, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out, nil
}

func utf8CPLen(first byte) int {
	switch {
	case first <= 0x7F:
		return 1
	case first >= 0xC0 && first <= 0xDF:
		return 2
	case first >= 0xE0 && first <= 0xEF:
		return 3
	default:
		return 4
	}
}

// Decode concatenates each token's text verbatim.
func (e *Engine) Decode(tokens []uint32) (string, error) {
	var sb strings.Builder
	for _, id := range tokens {
		text, ok := e.vocab.TextOf(id)
		if !ok {
			return "", errs.NewInvalidTokenError(id, e.vocab.Len())
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
