// Package bpe implements the byte-level BPE tokenization engine: GPT-2
// style byte encoding, regex pre-tokenization, and rank-ordered priority
// queue merging over an arena-indexed symbol list (spec.md §4.5).
package bpe

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/agentstation/gguftok/byteenc"
	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/pretok"
	"github.com/agentstation/gguftok/vocab"
)

const (
	maxInputSize   = 10 << 20      // 10 MiB
	maxOutputTokens = 1_000_000
	maxDecodedSize = 100 << 20     // 100 MiB
)

type mergeKey struct{ left, right string }

// Engine holds the precomputed merge-rank index for one vocabulary.
type Engine struct {
	vocab     *vocab.Vocabulary
	mergeRank map[mergeKey]int
	dialect   string
}

// New builds a BPE engine over v, indexing its merge table by (left,right)
// pair for O(1) rank lookup during merging.
func New(v *vocab.Vocabulary) *Engine {
	ranks := make(map[mergeKey]int, len(v.Merges()))
	for rank, m := range v.Merges() {
		ranks[mergeKey{m.Left, m.Right}] = rank
	}
	dialect, _ := v.PreType()
	return &Engine{vocab: v, mergeRank: ranks, dialect: dialect}
}

// symbol is one arena-indexed node in the doubly linked list of UTF-8
// codepoint runs being merged. A length of 0 marks it merged away.
type symbol struct {
	start, length int
	prev, next    int // -1 = none
}

// Encode tokenizes text per spec.md §4.5: byte-encode, pre-tokenize,
// then BPE-merge each fragment independently.
func (e *Engine) Encode(text string) ([]uint32, error) {
	if len(text) > maxInputSize {
		return nil, errs.NewTokenizationFailedError("encode", fmt.Errorf("%w: %d bytes (max %d)", errs.ErrInputTooLarge, len(text), maxInputSize))
	}

	encoded := byteenc.EncodeBytes([]byte(text))

	fragments, err := pretok.Split(e.dialect, encoded)
	if err != nil {
		return nil, err
	}

	var result []uint32
	for _, frag := range fragments {
		toks, err := e.mergeFragment(frag)
		if err != nil {
			return nil, err
		}
		if len(result)+len(toks) > maxOutputTokens {
			return nil, errs.NewTokenizationFailedError("encode", fmt.Errorf("%w: %d (max %d)", errs.ErrTokenCountExceeded, len(result)+len(toks), maxOutputTokens))
		}
		result = append(result, toks...)
	}
	return result, nil
}

// mergeFragment runs the priority-queue BPE merge loop over a single
// pre-tokenized fragment (already in byte-encoded text space).
func (e *Engine) mergeFragment(text string) ([]uint32, error) {
	symbols := splitCodepoints(text)
	if len(symbols) == 0 {
		return nil, nil
	}

	pq := &bigramQueue{}
	heap.Init(pq)
	for i := 0; i < len(symbols)-1; i++ {
		e.tryPush(pq, text, symbols, i, i+1)
	}

	for pq.Len() > 0 {
		bg := heap.Pop(pq).(bigram)
		left, right := bg.left, bg.right

		if symbols[left].length == 0 || symbols[right].length == 0 || symbols[left].next != right {
			continue
		}

		leftText := text[symbols[left].start : symbols[left].start+symbols[left].length]
		rightText := text[symbols[right].start : symbols[right].start+symbols[right].length]
		expectedRank, ok := e.mergeRank[mergeKey{leftText, rightText}]
		if !ok || expectedRank != bg.rank {
			continue
		}

		symbols[left].length += symbols[right].length
		symbols[right].length = 0
		symbols[left].next = symbols[right].next
		if symbols[right].next != -1 {
			symbols[symbols[right].next].prev = left
		}

		if symbols[left].prev != -1 {
			e.tryPush(pq, text, symbols, symbols[left].prev, left)
		}
		if symbols[left].next != -1 {
			e.tryPush(pq, text, symbols, left, symbols[left].next)
		}
	}

	var result []uint32
	for _, sym := range symbols {
		if sym.length == 0 {
			continue
		}
		tokenText := text[sym.start : sym.start+sym.length]
		if id, ok := e.vocab.IDOf(tokenText); ok {
			result = append(result, id)
			continue
		}
		// Byte fallback: per-rune lookup, NOT the "<0xHH>" form (that is
		// SentencePiece's fallback, spec.md §4.5 step 6).
		for _, r := range tokenText {
			if id, ok := e.vocab.IDOf(string(r)); ok {
				result = append(result, id)
			} else {
				result = append(result, e.vocab.UnkTokenID())
			}
		}
	}
	return result, nil
}

func (e *Engine) tryPush(pq *bigramQueue, text string, symbols []symbol, left, right int) {
	if symbols[left].length == 0 || symbols[right].length == 0 {
		return
	}
	leftText := text[symbols[left].start : symbols[left].start+symbols[left].length]
	rightText := text[symbols[right].start : symbols[right].start+symbols[right].length]
	rank, ok := e.mergeRank[mergeKey{leftText, rightText}]
	if !ok {
		return
	}
	heap.Push(pq, bigram{left: left, right: right, rank: rank})
}

func splitCodepoints(text string) []symbol {
	syms := make([]symbol, 0, len(text))
	i := 0
	for byteOff, r := range text {
		_ = r
		if i > 0 {
			syms[i-1].length = byteOff - syms[i-1].start
		}
		syms = append(syms, symbol{start: byteOff, prev: i - 1, next: -1})
		if i > 0 {
			syms[i-1].next = i
		}
		i++
	}
	if len(syms) > 0 {
		last := &syms[len(syms)-1]
		last.length = len(text) - last.start
	}
	return syms
}

// Decode concatenates each token's text and byte-decodes the result back
// to UTF-8, per spec.md §4.5.
func (e *Engine) Decode(tokens []uint32) (string, error) {
	var sb strings.Builder
	for _, id := range tokens {
		text, ok := e.vocab.TextOf(id)
		if !ok {
			return "", errs.NewInvalidTokenError(id, e.vocab.Len())
		}
		sb.WriteString(text)
	}
	decoded := byteenc.DecodeBytes(sb.String())
	if len(decoded) > maxDecodedSize {
		return "", errs.NewTokenizationFailedError("decode", fmt.Errorf("%w: %d bytes (max %d)", errs.ErrOutputTooLarge, len(decoded), maxDecodedSize))
	}
	return decoded, nil
}

// bigram is a candidate merge: lowest rank wins; ties break by leftmost
// position (spec.md §4.5 step 4).
type bigram struct {
	left, right, rank int
}

type bigramQueue []bigram

func (q bigramQueue) Len() int { return len(q) }
func (q bigramQueue) Less(i, j int) bool {
	if q[i].rank != q[j].rank {
		return q[i].rank < q[j].rank
	}
	return q[i].left < q[j].left
}
func (q bigramQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *bigramQueue) Push(x any)   { *q = append(*q, x.(bigram)) }
func (q *bigramQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
