// Package pretok maps a model's pre-tokenizer dialect name to an ordered
// list of regex patterns and applies them to split text into word-like
// fragments ahead of BPE or SentencePiece merging.
//
// The reference dialects require lookaround ((?!\S), (?i:...)) and Unicode
// property classes (\p{L}, \p{N}, \p{Han}, ...) that Go's stdlib regexp
// cannot express, so patterns are compiled with dlclark/regexp2.
package pretok

import (
	"sync"

	"github.com/dlclark/regexp2"

	"github.com/agentstation/gguftok/errs"
)

// gpt2Pattern is the canonical GPT-2/GPT-4 byte-level BPE pre-tokenizer:
// contractions, then runs of letters/digits/other with an optional leading
// space, then newline-aware whitespace, with the trailing-whitespace
// lookahead that keeps a final run of spaces attached to the following word.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// dialect holds the ordered pattern list for one named pre-tokenizer. Most
// dialects are a single combined alternation (the tiktoken style); the
// others apply between two and seven patterns in sequence, each consuming the
// fragments the previous pattern left behind (the llama.cpp style spec.md
// §4.4's Application rule describes).
var dialects = map[string][]string{
	"default": {gpt2Pattern},
	"gpt-2":   {gpt2Pattern},
	"gpt2":    {gpt2Pattern},

	// llama.cpp's BPE pre-tokenizer dispatches "llama3"/"llama-bpe" to the
	// same pattern (original_source/src/bpe.rs's get_regex match arm).
	"llama3":    {`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`},
	"llama-bpe": {`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`},

	"gpt-4o": {
		`[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]*[\p{Ll}\p{Lm}\p{Lo}\p{M}]+(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
		`[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]+[\p{Ll}\p{Lm}\p{Lo}\p{M}]*(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
		`\p{N}{1,3}`,
		` ?[^\s\p{L}\p{N}]+[\r\n/]*`,
		`\s*[\r\n]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"starcoder": {
		`\p{N}`,
		` ?[^\s\p{L}\p{N}]+[\r\n]*`,
		`\s*[\r\n]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"qwen2": {
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}|\s*[\r\n]+|\s+(?!\S)|\s+`,
	},

	"chatglm4": {
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)`,
		`[^\r\n\p{L}\p{N}]?\p{L}+`,
		`\p{N}{1,3}`,
		` ?[^\s\p{L}\p{N}]+[\r\n]*`,
		`\s*[\r\n]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"bloom": {
		` ?[^(\s|[.,!?…。，、．：；？！（）（）｛｝「」「」『』『』〜〜・・]+`,
		`\s+`,
	},

	"falcon": {
		`[^\r\n\p{L}\p{N}]?\p{L}+`,
		`\p{N}{1,3}`,
		` ?[^\s\p{L}\p{N}]+[\r\n]*`,
		`\s*[\r\n]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"deepseek-llm": {
		`[\r\n]`,
		`\s?\p{L}+`,
		`\s?\p{N}+`,
		` ?[^\s\p{L}\p{N}]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"deepseek-coder": {
		`[\r\n]`,
		`\s?\p{L}+`,
		`\s?\p{N}+`,
		` ?[^\s\p{L}\p{N}]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"deepseek-v3": {
		`\p{N}{1,3}`,
		` ?[^\s\p{L}\p{N}]+[\r\n]*`,
		`\s*[\r\n]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"tekken": {gpt2Pattern},

	"viking": {
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`,
	},

	"kimi-k2": {
		`[\p{Han}]+`,
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`,
	},

	"superbpe": {gpt2Pattern},

	"bailingmoe": {
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`,
	},

	"seed-coder": {
		`[\r\n]`,
		`\s?\p{L}+`,
		`\s?\p{N}+`,
		` ?[^\s\p{L}\p{N}]+`,
		`\s+(?!\S)`,
		`\s+`,
	},

	"hunyuan-dense": {
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`,
	},

	"grok-2": {
		`[\p{Lu}]?[\p{Ll}]+`,
		`[\p{N}]{1,3}`,
		` ?[^\s\p{L}\p{N}]+[\r\n]*`,
		`\s*[\r\n]+`,
		`\s+(?!\S)`,
		`\s+`,
	},
}

var (
	cacheMu sync.Mutex
	cache   = map[string][]*regexp2.Regexp{}
)

// Patterns returns the raw pattern list for dialect, or the default GPT-2
// pattern for an unrecognized name.
func Patterns(dialect string) []string {
	if pats, ok := dialects[dialect]; ok {
		return pats
	}
	return dialects["default"]
}

// compiled returns the lazily compiled, memoized regex list for dialect.
func compiled(dialect string) ([]*regexp2.Regexp, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if res, ok := cache[dialect]; ok {
		return res, nil
	}

	pats := Patterns(dialect)
	res := make([]*regexp2.Regexp, len(pats))
	for i, p := range pats {
		re, err := regexp2.Compile(p, regexp2.RE2)
		if err != nil {
			return nil, errs.NewTokenizationFailedError("compile pre-tokenizer pattern", err)
		}
		res[i] = re
	}
	cache[dialect] = res
	return res, nil
}

// Split applies dialect's pattern list to text following the Application
// rule: a single pattern collects all non-overlapping left-to-right
// matches; multiple patterns are applied sequentially, each replacing every
// current fragment with the concatenation of its matches (preserving gaps
// as their own fragments), passing fragments through unchanged when a
// pattern matches nothing in them.
func Split(dialect, text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	patterns, err := compiled(dialect)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return []string{text}, nil
	}

	fragments := []string{text}
	for _, re := range patterns {
		fragments, err = applyOne(re, fragments)
		if err != nil {
			return nil, err
		}
	}
	return fragments, nil
}

// applyOne replaces each fragment with its matches in order, preserving any
// unmatched gap (before, between, or after matches) as its own fragment; a
// fragment with zero matches passes through unchanged.
func applyOne(re *regexp2.Regexp, fragments []string) ([]string, error) {
	out := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		pieces, err := findAll(re, frag)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	return out, nil
}

// findAll splits text into its pattern matches plus the unmatched gaps
// between them, in left-to-right order, so later stages and the engine see
// every rune of text rather than only what this pattern matched. regexp2
// reports match Index/Length in the rune slice it matched over, not byte
// offsets, so gaps are sliced via runes and re-encoded to UTF-8.
func findAll(re *regexp2.Regexp, text string) ([]string, error) {
	runes := []rune(text)
	var out []string
	pos := 0
	m, err := re.FindStringMatch(text)
	if err != nil {
		return nil, errs.NewTokenizationFailedError("pre-tokenize", err)
	}
	for m != nil {
		start := m.Index
		if start > pos {
			out = append(out, string(runes[pos:start]))
		}
		out = append(out, m.String())
		pos = start + m.Length
		m, err = re.FindNextMatch(m)
		if err != nil {
			return nil, errs.NewTokenizationFailedError("pre-tokenize", err)
		}
	}
	if pos < len(runes) {
		out = append(out, string(runes[pos:]))
	}
	if len(out) == 0 {
		out = append(out, text)
	}
	return out, nil
}
