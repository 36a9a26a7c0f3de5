// Package rwkv implements the RWKV tokenizer variant: trie-based greedy
// longest-byte-match against vocabulary entries whose text carries escape
// sequences (\n, \t, \r, \xNN) that must be unescaped before insertion.
package rwkv

import (
	"strings"

	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/variants/trie"
	"github.com/agentstation/gguftok/vocab"
)

// Engine runs the RWKV trie-matching algorithm over a vocabulary.
type Engine struct {
	vocab *vocab.Vocabulary
	trie  *trie.Trie
}

// New builds an RWKV engine, unescaping every vocabulary entry's text into
// its raw byte form before inserting it into the matching trie.
func New(v *vocab.Vocabulary) *Engine {
	t := trie.New()
	for id := 0; id < v.Len(); id++ {
		if text, ok := v.TextOf(uint32(id)); ok {
			t.Insert(UnescapeToken(text), uint32(id))
		}
	}
	return &Engine{vocab: v, trie: t}
}

// Encode tokenizes text per spec.md §5.2: at every position, take the
// trie's longest matching byte run; on no match, emit unk and advance one
// byte.
func (e *Engine) Encode(text string) ([]uint32, error) {
	bs := []byte(text)
	var out []uint32
	pos := 0
	for pos < len(bs) {
		id, end, ok := e.trie.LongestMatch(bs, pos)
		if !ok {
			out = append(out, e.vocab.UnkTokenID())
			pos++
			continue
		}
		out = append(out, id)
		pos = end
	}
	return out, nil
}

// Decode concatenates each token's (still-escaped) text verbatim, matching
// the reference implementation's decode, which does not re-escape output.
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

// UnescapeToken decodes the RWKV vocabulary escape grammar: \n, \t, \r,
// \xHH, and \<any other char> (the char verbatim), into raw bytes.
func UnescapeToken(escaped string) []byte {
	out := make([]byte, 0, len(escaped))
	escaping := false
	hexRemaining := 0
	var hexAcc byte

	for i := 0; i < len(escaped); i++ {
		b := escaped[i]

		if hexRemaining != 0 {
			v, ok := hexDigit(b)
			if !ok {
				v = 0
			}
			hexAcc = hexAcc<<4 + v
			hexRemaining--
			if hexRemaining == 0 {
				out = append(out, hexAcc)
				hexAcc = 0
			}
			continue
		}

		if escaping {
			switch b {
			case 't':
				out = append(out, '\t')
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 'x':
				hexRemaining = 2
			default:
				out = append(out, b)
			}
			escaping = false
			continue
		}

		if b == '\\' {
			escaping = true
			continue
		}

		out = append(out, b)
	}

	return out
}

func hexDigit(b byte) (byte, bool) {
	switch {
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= '0' && b <= '9':
		return b - '0', true
	default:
		return 0, false
	}
}
