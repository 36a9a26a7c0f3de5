// Package plamo2 implements the PLaMo-2 tokenizer variant: a table-driven
// suffix automaton built once per vocabulary, searched with a reverse
// (end-to-start) dynamic program that scores every codepoint position
// against every piece ending there, falling back to per-byte `<0xHH>`
// tokens for uncovered codepoints (spec.md §5.4).
package plamo2

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/vocab"
)

const (
	invalidScore int32 = -20_000_000
	unknownScore int32 = -10_000_000
)

// tableRow is one row of the flattened suffix table: the piece's codepoint
// length, its vocabulary token id (-1 if the piece is not itself a token),
// its score scaled by 1e4, and the suffix-automaton piece id it belongs to.
type tableRow struct {
	pieceLen int32
	tokenID  int32
	score    int32
	pieceID  int32
}

// Engine runs the PLaMo-2 reverse-DP algorithm over a vocabulary. The
// suffix table is built once in New and reused by every Encode call.
type Engine struct {
	vocab      *vocab.Vocabulary
	byteToken  [256]uint32
	toSuffixID map[uint64]int32
	table      []tableRow
}

// New builds the suffix automaton table once from v: every vocabulary
// entry's suffixes are collected, sorted by their reversed string (so a
// suffix's own suffixes always precede it), and flattened into per-suffix
// blocks of decreasing-length candidate pieces terminated by an
// unknown-codepoint sentinel row.
func New(v *vocab.Vocabulary) *Engine {
	var byteToken [256]uint32
	tokenToID := make(map[string]uint32)
	suffixToScore := make(map[string]*float64)

	for id := 0; id < v.Len(); id++ {
		tok, ok := v.TextOf(uint32(id))
		if !ok {
			continue
		}
		tokenToID[tok] = uint32(id)

		if v.TypeOf(uint32(id)) == vocab.TokenByte {
			if b, ok := parseByteToken(tok); ok {
				byteToken[b] = uint32(id)
			}
			continue
		}

		sc := float64(v.ScoreOf(uint32(id)))
		suffixToScore[tok] = &sc

		chars := []rune(tok)
		for i := 1; i < len(chars); i++ {
			suf := string(chars[i:])
			if _, exists := suffixToScore[suf]; !exists {
				suffixToScore[suf] = nil
			}
		}
	}

	suffixes := make([]string, 0, len(suffixToScore)+1)
	for s := range suffixToScore {
		suffixes = append(suffixes, s)
	}
	suffixes = append(suffixes, "")
	sort.Slice(suffixes, func(i, j int) bool {
		return reverseString(suffixes[i]) < reverseString(suffixes[j])
	})

	suffixToID := make(map[string]int32, len(suffixes))
	toSuffixID := make(map[uint64]int32)

	numPieces := int32(0)
	for _, s := range suffixes {
		suffixToID[s] = numPieces

		if s != "" {
			chars := []rune(s)
			first := uint64(chars[0])
			rest := string(chars[1:])
			restID := suffixToID[rest]
			code := (first << 32) | uint64(uint32(restID))
			toSuffixID[code] = numPieces
		}

		chars := []rune(s)
		var prefixes int32
		for i := 1; i <= len(chars); i++ {
			if _, ok := suffixToScore[string(chars[:i])]; ok {
				prefixes++
			}
		}
		numPieces += 1 + prefixes
	}

	var table []tableRow
	for _, s := range suffixes {
		chars := []rune(s)
		for pieceLen := len(chars); pieceLen >= 1; pieceLen-- {
			piece := string(chars[:pieceLen])
			scorePtr, ok := suffixToScore[piece]
			if !ok {
				continue
			}
			tokenID := int32(-1)
			if id, present := tokenToID[piece]; present {
				tokenID = int32(id)
			}
			scoreI32 := invalidScore
			if scorePtr != nil {
				scoreI32 = int32(round(*scorePtr * 1e4))
			}
			table = append(table, tableRow{
				pieceLen: int32(pieceLen),
				tokenID:  tokenID,
				score:    scoreI32,
				pieceID:  suffixToID[piece],
			})
		}
		table = append(table, tableRow{pieceLen: 1, tokenID: -1, score: unknownScore, pieceID: 0})
	}

	return &Engine{vocab: v, byteToken: byteToken, toSuffixID: toSuffixID, table: table}
}

// Encode tokenizes text per spec.md §5.4: a reverse DP over codepoint
// positions picks, at each position, the table row maximizing total score
// to the end of the text, falling back to byte tokens for codepoints no
// table row covers.
func (e *Engine) Encode(text string) ([]uint32, error) {
	data := []rune(text)
	n := len(data)
	if n == 0 {
		return nil, nil
	}

	const sentinelScore = int64(1) << 60

	scores := make([]int64, n+1)
	for i := range scores {
		scores[i] = sentinelScore
	}
	scores[n] = 0

	type pathEntry struct {
		tokenLen  int32
		tokenID   int32
		numTokens int32
	}
	path := make([]pathEntry, n+1)

	suffixID := int32(0)
	for i := n - 1; i >= 0; i-- {
		c := uint64(data[i])

		p := int(suffixID)
		for p < len(e.table) {
			code := (c << 32) | uint64(uint32(e.table[p].pieceID))
			suffixID = e.toSuffixID[code]

			scoreHere := e.table[p].score
			if suffixID > 0 || scoreHere == unknownScore {
				break
			}
			p++
		}

		p2 := int(suffixID)
		for p2 < len(e.table) {
			scoreI32 := e.table[p2].score
			if scoreI32 > invalidScore {
				pieceLen := int(e.table[p2].pieceLen)
				if i+pieceLen <= n {
					s := scores[i+pieceLen] - int64(scoreI32)
					if s < scores[i] {
						scores[i] = s
						path[i].tokenLen = int32(pieceLen)
						path[i].tokenID = e.table[p2].tokenID
						path[i].numTokens = path[i+pieceLen].numTokens + 1

						if scoreI32 == unknownScore {
							c32 := data[i]
							if c32 >= 0x80 {
								path[i].numTokens++
							}
							if c32 >= 0x800 {
								path[i].numTokens++
							}
							if c32 >= 0x10000 {
								path[i].numTokens++
							}
						}
					}
				}
			}

			if scoreI32 == unknownScore {
				break
			}
			p2++
		}

		if path[i].tokenLen <= 0 {
			path[i].tokenLen = 1
			path[i].tokenID = -1
			path[i].numTokens = path[i+1].numTokens + 1
		}
	}

	out := make([]uint32, 0, path[0].numTokens)
	pos := 0
	for pos < n {
		tokenID := path[pos].tokenID
		if tokenID >= 0 {
			out = append(out, uint32(tokenID))
		} else {
			buf := make([]byte, utf8.RuneLen(data[pos]))
			utf8.EncodeRune(buf, data[pos])
			for _, b := range buf {
				out = append(out, e.byteToken[b])
			}
		}
		adv := int(path[pos].tokenLen)
		if adv < 1 {
			adv = 1
		}
		pos += adv
	}
	return out, nil
}

// Decode reconstructs text from tokens, resolving byte-fallback tokens
// back to their raw byte via the reverse byte_token table and every other
// token via its vocabulary text.
func (e *Engine) Decode(tokens []uint32) (string, error) {
	byteOf := make(map[uint32]byte, 256)
	for b := 0; b < 256; b++ {
		if e.byteToken[b] != 0 {
			byteOf[e.byteToken[b]] = byte(b)
		}
	}

	var raw []byte
	for _, t := range tokens {
		if b, ok := byteOf[t]; ok {
			raw = append(raw, b)
			continue
		}
		text, ok := e.vocab.TextOf(t)
		if !ok {
			return "", errs.NewInvalidTokenError(t, e.vocab.Len())
		}
		raw = append(raw, text...)
	}
	if !utf8.Valid(raw) {
		return "", errs.NewTokenizationFailedError("decode", fmt.Errorf("%w", errs.ErrInvalidUTF8))
	}
	return string(raw), nil
}

// parseByteToken parses the byte-fallback token form "<0xHH>".
func parseByteToken(tok string) (byte, bool) {
	if len(tok) != 6 || !strings.HasPrefix(tok, "<0x") || !strings.HasSuffix(tok, ">") {
		return 0, false
	}
	b, err := strconv.ParseUint(tok[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(b), true
}

func reverseString(s string) string {
	chars := []rune(s)
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}

func round(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return float64(int64(f - 0.5))
}
