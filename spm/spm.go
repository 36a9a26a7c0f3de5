// Package spm implements the SentencePiece/unigram tokenization engine:
// score-ordered symbol merging over a doubly linked symbol list, with the
// reverse-merge memo and recursive resegmentation step that recovers
// vocabulary-valid pieces from an intermediate merged symbol (spec.md §4.6).
package spm

import (
	"container/heap"
	"fmt"
	"math"
	"strings"

	"github.com/agentstation/gguftok/byteenc"
	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/vocab"
)

const (
	maxInputSize      = 10 << 20 // 10 MiB
	maxOutputTokens   = 1_000_000
	maxDecodedSize    = 100 << 20 // 100 MiB
	maxRecursionDepth = 1000
	spaceSentinel     = "▁"
)

// Engine runs the unigram/SentencePiece algorithm over a vocabulary.
type Engine struct {
	vocab *vocab.Vocabulary
}

// New builds a SentencePiece engine over v.
func New(v *vocab.Vocabulary) *Engine {
	return &Engine{vocab: v}
}

type symbol struct {
	pos, length int
	prev, next  int // -1 = none
}

// Encode tokenizes text per spec.md §4.6: replace spaces with the ▁
// sentinel (honoring add_space_prefix), merge adjacent symbols by score,
// then resegment each surviving symbol along the recorded merge tree.
func (e *Engine) Encode(text string) ([]uint32, error) {
	if len(text) > maxInputSize {
		return nil, errs.NewTokenizationFailedError("encode", fmt.Errorf("%w: %d bytes (max %d)", errs.ErrInputTooLarge, len(text), maxInputSize))
	}
	if text == "" {
		return nil, nil
	}

	processed := preprocess(text, e.vocab.AddSpacePrefix())
	if len(processed) > maxInputSize {
		return nil, errs.NewTokenizationFailedError("encode", fmt.Errorf("%w: processed text %d bytes (max %d)", errs.ErrInputTooLarge, len(processed), maxInputSize))
	}

	symbols := splitCodepoints(processed)
	if len(symbols) == 0 {
		return nil, nil
	}

	revMerge := make(map[string][2]int)
	pq := &bigramQueue{}
	heap.Init(pq)
	for i := 1; i < len(symbols); i++ {
		e.tryAddBigram(processed, symbols, i-1, i, pq, revMerge)
	}

	maxIterations := 10 * len(symbols)
	if maxIterations > 100_000 {
		maxIterations = 100_000
	}
	iterations := 0
	for pq.Len() > 0 {
		if iterations >= maxIterations {
			return nil, errs.NewTokenizationFailedError("encode", fmt.Errorf("%w: %d iterations (max %d)", errs.ErrIterationCapReached, iterations, maxIterations))
		}
		iterations++

		bg := heap.Pop(pq).(bigram)
		if bg.left >= len(symbols) || bg.right >= len(symbols) {
			continue
		}
		left, right := &symbols[bg.left], &symbols[bg.right]
		if left.length == 0 || right.length == 0 {
			continue
		}
		if left.next != bg.right || left.length+right.length != bg.size {
			continue
		}

		symbols[bg.left].length += symbols[bg.right].length
		symbols[bg.right].length = 0
		symbols[bg.left].next = symbols[bg.right].next
		if symbols[bg.right].next != -1 {
			symbols[symbols[bg.right].next].prev = bg.left
		}

		if symbols[bg.left].prev != -1 {
			e.tryAddBigram(processed, symbols, symbols[bg.left].prev, bg.left, pq, revMerge)
		}
		if symbols[bg.left].next != -1 {
			e.tryAddBigram(processed, symbols, bg.left, symbols[bg.left].next, pq, revMerge)
		}
	}

	var result []uint32
	current := -1
	for i, s := range symbols {
		if s.prev == -1 && s.length > 0 {
			current = i
			break
		}
	}
	for current != -1 && current < len(symbols) {
		s := symbols[current]
		if s.length > 0 {
			text := processed[s.pos : s.pos+s.length]
			e.resegment(text, processed, symbols, revMerge, &result, 0)
			if len(result) > maxOutputTokens {
				return nil, errs.NewTokenizationFailedError("encode", fmt.Errorf("%w: %d (max %d)", errs.ErrTokenCountExceeded, len(result), maxOutputTokens))
			}
		}
		current = s.next
	}
	return result, nil
}

func preprocess(text string, addSpacePrefix bool) string {
	replaced := strings.ReplaceAll(text, " ", spaceSentinel)
	if addSpacePrefix && !strings.HasPrefix(text, " ") {
		return spaceSentinel + replaced
	}
	return replaced
}

func splitCodepoints(text string) []symbol {
	syms := make([]symbol, 0, len(text))
	i := 0
	for byteOff := range text {
		if i > 0 {
			syms[i-1].length = byteOff - syms[i-1].pos
		}
		syms = append(syms, symbol{pos: byteOff, prev: i - 1, next: -1})
		if i > 0 {
			syms[i-1].next = i
		}
		i++
	}
	if len(syms) > 0 {
		last := &syms[len(syms)-1]
		last.length = len(text) - last.pos
	}
	return syms
}

func (e *Engine) tryAddBigram(text string, symbols []symbol, left, right int, pq *bigramQueue, revMerge map[string][2]int) {
	if left >= len(symbols) || right >= len(symbols) {
		return
	}
	ls, rs := symbols[left], symbols[right]
	if ls.length == 0 || rs.length == 0 {
		return
	}
	combined := text[ls.pos : ls.pos+ls.length+rs.length]
	id, ok := e.vocab.IDOf(combined)
	if !ok {
		return
	}
	heap.Push(pq, bigram{left: left, right: right, score: e.vocab.ScoreOf(id), size: ls.length + rs.length})
	revMerge[combined] = [2]int{left, right}
}

// resegment recovers vocabulary-valid pieces from text by trying a direct
// lookup, then recursing along the recorded merge tree, and finally
// falling back to per-byte tokens.
func (e *Engine) resegment(text, fullText string, symbols []symbol, revMerge map[string][2]int, output *[]uint32, depth int) {
	if depth >= maxRecursionDepth {
		appendByteFallback(e.vocab, text, output)
		return
	}
	if id, ok := e.vocab.IDOf(text); ok {
		*output = append(*output, id)
		return
	}
	if pair, ok := revMerge[text]; ok {
		leftIdx, rightIdx := pair[0], pair[1]
		if leftIdx < len(symbols) && rightIdx < len(symbols) {
			ls, rs := symbols[leftIdx], symbols[rightIdx]
			if ls.length > 0 {
				e.resegment(fullText[ls.pos:ls.pos+ls.length], fullText, symbols, revMerge, output, depth+1)
			}
			if rs.length > 0 {
				e.resegment(fullText[rs.pos:rs.pos+rs.length], fullText, symbols, revMerge, output, depth+1)
			}
			return
		}
	}
	appendByteFallback(e.vocab, text, output)
}

func appendByteFallback(v *vocab.Vocabulary, text string, output *[]uint32) {
	for i := 0; i < len(text); i++ {
		*output = append(*output, v.ByteToToken(text[i]))
	}
}

// Decode concatenates each token's text, substituting the ▁ sentinel back
// to a literal space and `<0xHH>` byte tokens back to their raw byte, then
// interprets the buffer as UTF-8 with lossy replacement.
func (e *Engine) Decode(tokens []uint32) (string, error) {
	for _, id := range tokens {
		if _, ok := e.vocab.TextOf(id); !ok {
			return "", errs.NewInvalidTokenError(id, e.vocab.Len())
		}
	}

	var bytes []byte
	for _, id := range tokens {
		text, _ := e.vocab.TextOf(id)
		if b, ok := decodeByteToken(text); ok {
			bytes = append(bytes, b)
		} else {
			bytes = append(bytes, []byte(strings.ReplaceAll(text, spaceSentinel, " "))...)
		}
		if len(bytes) > maxDecodedSize {
			return "", errs.NewTokenizationFailedError("decode", fmt.Errorf("%w: %d bytes (max %d)", errs.ErrOutputTooLarge, len(bytes), maxDecodedSize))
		}
	}
	return byteenc.LossyUTF8(bytes), nil
}

// decodeByteToken parses the SentencePiece byte-fallback form "<0xHH>".
func decodeByteToken(text string) (byte, bool) {
	if len(text) != 6 || text[:3] != "<0x" || text[5] != '>' {
		return 0, false
	}
	hi, ok1 := hexDigit(text[3])
	lo, ok2 := hexDigit(text[4])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

// bigram is a score-ordered merge candidate; higher score wins, NaN sorts
// last, ties break by leftmost position (spec.md §4.6 step 2).
type bigram struct {
	left, right int
	score       float32
	size        int
}

type bigramQueue []bigram

func (q bigramQueue) Len() int { return len(q) }
func (q bigramQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if math.IsNaN(float64(a.score)) && math.IsNaN(float64(b.score)) {
		return a.left < b.left
	}
	if math.IsNaN(float64(a.score)) {
		return false // a sorts after b (lower priority)
	}
	if math.IsNaN(float64(b.score)) {
		return true
	}
	if a.score != b.score {
		return a.score > b.score // higher score = higher priority
	}
	return a.left < b.left
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
