// Package wpm implements the WordPiece tokenizer variant: lowercase
// preprocessing (no Unicode normalization) that isolates punctuation and
// CJK characters as single-char
// words, followed by per-word greedy longest-match against the vocabulary
// with a phantom space prefix (spec.md §5.1).
package wpm

import (
	"strings"
	"unicode"

	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/vocab"
)

const phantomSpace = "▁" // ▁

// Engine runs the WordPiece algorithm over a vocabulary.
type Engine struct {
	vocab       *vocab.Vocabulary
	maxTokenLen int
}

// New builds a WPM engine, precomputing the longest token length in v so
// the greedy match loop can bound its search window.
func New(v *vocab.Vocabulary) *Engine {
	maxLen := 0
	for id := 0; id < v.Len(); id++ {
		if text, ok := v.TextOf(uint32(id)); ok && len(text) > maxLen {
			maxLen = len(text)
		}
	}
	return &Engine{vocab: v, maxTokenLen: maxLen}
}

// Encode tokenizes text per spec.md §5.1: split into words, then greedily
// match each phantom-space-prefixed word against the vocabulary, discarding
// partial matches and falling back to unk for words with none.
func (e *Engine) Encode(text string) ([]uint32, error) {
	words := preprocess(text)

	var out []uint32
	for _, w := range words {
		if w == "" {
			continue
		}

		word := phantomSpace + w
		n := len(word)
		checkpoint := len(out)

		i := 0
		for i < n {
			matched := false
			j := i + e.maxTokenLen + 1
			if j > n {
				j = n
			}
			for j > i {
				if isUTF8Boundary(word, i) && isUTF8Boundary(word, j) {
					if id, ok := e.vocab.IDOf(word[i:j]); ok {
						out = append(out, id)
						matched = true
						i = j
						break
					}
				}
				j--
			}
			if !matched {
				out = out[:checkpoint]
				break
			}
		}

		if len(out) == checkpoint {
			out = append(out, e.vocab.UnkTokenID())
		}
	}
	return out, nil
}

func isUTF8Boundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// Decode concatenates each token's text verbatim; WordPiece carries no
// byte-level escaping to undo.
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

// preprocess lowercases text and splits it into words, isolating ASCII
// punctuation and CJK characters as their own single-character words.
func preprocess(text string) []string {
	lower := strings.ToLower(text)

	words := []string{""}
	last := func() string { return words[len(words)-1] }
	push := func(s string) { words[len(words)-1] = s }

	for _, ch := range lower {
		if unicode.IsSpace(ch) {
			if last() != "" {
				words = append(words, "")
			}
			continue
		}

		if isASCIIPunct(ch) || isCJK(ch) {
			if last() != "" {
				words = append(words, "")
			}
			push(last() + string(ch))
			words = append(words, "")
		} else {
			push(last() + string(ch))
		}
	}

	if last() == "" {
		words = words[:len(words)-1]
	}
	return words
}

func isASCIIPunct(ch rune) bool {
	return ch >= '!' && ch <= '~' && !unicode.IsLetter(ch) && !unicode.IsDigit(ch)
}

// isCJK reports whether ch falls in one of the CJK Unified Ideograph blocks
// treated as single-character words by the reference tokenizer.
func isCJK(ch rune) bool {
	cp := uint32(ch)
	switch {
	case cp >= 0x4E00 && cp <= 0x9FFF:
		return true
	case cp >= 0x3400 && cp <= 0x4DBF:
		return true
	case cp >= 0x20000 && cp <= 0x2A6DF:
		return true
	case cp >= 0xF900 && cp <= 0xFAFF:
		return true
	case cp >= 0x2A700 && cp <= 0x2B73F:
		return true
	case cp >= 0x2B740 && cp <= 0x2B81F:
		return true
	default:
		return false
	}
}
