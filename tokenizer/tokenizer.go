// Package tokenizer is the façade described in spec.md §4.8: it opens a
// GGUF model, dispatches to the engine matching the model's kind, and
// layers special-token prepend/append, inline special-token parsing, and
// post-decode whitespace cleanup on top of the engine's raw encode/decode.
package tokenizer

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/gguftok/bpe"
	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/gguf"
	"github.com/agentstation/gguftok/spm"
	"github.com/agentstation/gguftok/variants/plamo2"
	"github.com/agentstation/gguftok/variants/rwkv"
	"github.com/agentstation/gguftok/variants/ugm"
	"github.com/agentstation/gguftok/variants/wpm"
	"github.com/agentstation/gguftok/vocab"
)

// engine is the uniform interface every tokenization backend implements;
// the façade holds exactly one, picked once at Open time by model kind.
type engine interface {
	Encode(text string) ([]uint32, error)
	Decode(tokens []uint32) (string, error)
}

// config collects the functional options applied in Open.
type config struct {
	loader vocab.Loader
}

// Option configures Open.
type Option func(*config) error

// WithVocabularyDataLoader overrides how the vocabulary's backing GGUF
// metadata is obtained, letting callers supply an in-memory buffer instead
// of a file path (grounded on the teacher's WithDataFiles/loader-interface
// pattern in llama3/options.go).
func WithVocabularyDataLoader(l vocab.Loader) Option {
	return func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("tokenizer: nil vocabulary loader")
		}
		cfg.loader = l
		return nil
	}
}

// Tokenizer is the opened façade over one model's vocabulary and engine.
type Tokenizer struct {
	vocab  *vocab.Vocabulary
	engine engine
}

// Open loads a tokenizer from a GGUF model file at path.
func Open(path string, opts ...Option) (*Tokenizer, error) {
	cfg := &config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	var md *gguf.Metadata
	var err error
	if cfg.loader != nil {
		md, err = cfg.loader.Load(path)
	} else {
		md, err = gguf.Load(path)
	}
	if err != nil {
		return nil, err
	}
	return fromMetadata(md)
}

// OpenReader loads a tokenizer from an already-open GGUF stream, useful for
// tests that build a model in memory instead of on disk.
func OpenReader(r io.Reader, opts ...Option) (*Tokenizer, error) {
	md, err := gguf.Read(r)
	if err != nil {
		return nil, err
	}
	return fromMetadata(md)
}

func fromMetadata(md *gguf.Metadata) (*Tokenizer, error) {
	v, err := vocab.FromGGUF(md)
	if err != nil {
		return nil, err
	}

	var eng engine
	switch v.ModelType() {
	case "llama", "mistral", "gemma":
		eng = spm.New(v)
	case "gpt2", "qwen", "qwen2":
		eng = bpe.New(v)
	case "bert", "wpm":
		eng = wpm.New(v)
	case "rwkv":
		eng = rwkv.New(v)
	case "t5", "ugm":
		eng = ugm.New(v)
	case "plamo2":
		eng = plamo2.New(v)
	default:
		return nil, errs.NewUnsupportedModelError(v.ModelType())
	}

	return &Tokenizer{vocab: v, engine: eng}, nil
}

// EncodeOptions controls Encode's special-token handling (spec.md §4.8).
type EncodeOptions struct {
	// AddSpecialTokens prepends bos and appends eos per the vocabulary's flags.
	AddSpecialTokens bool
	// ParseSpecial splits the input on occurrences of any special token's
	// text before engine tokenization, emitting those as direct token ids.
	ParseSpecial bool
}

// DecodeOptions controls Decode's filtering and cleanup (spec.md §4.8).
type DecodeOptions struct {
	// SkipSpecialTokens drops special tokens from the input before decoding.
	SkipSpecialTokens bool
	// Lstrip trims leading whitespace from each token's piece individually.
	Lstrip bool
	// IncludeSpecialText, if false, substitutes empty string for special
	// tokens even when SkipSpecialTokens is false.
	IncludeSpecialText bool
}

// Encode tokenizes text, optionally adding BOS/EOS per the vocabulary's
// configuration.
func (t *Tokenizer) Encode(text string, addSpecialTokens bool) ([]uint32, error) {
	return t.EncodeWithOptions(text, EncodeOptions{AddSpecialTokens: addSpecialTokens})
}

// EncodeWithOptions is Encode with the full option set, including inline
// special-token parsing (spec.md §4.8).
func (t *Tokenizer) EncodeWithOptions(text string, opts EncodeOptions) ([]uint32, error) {
	var out []uint32

	if opts.AddSpecialTokens && t.vocab.AddBOS() {
		out = append(out, t.vocab.BOSTokenID())
	}

	if opts.ParseSpecial {
		specials := t.vocab.SpecialTokenMap()
		for _, frag := range splitOnSpecialTokens(text, specials) {
			if frag.isSpecial {
				out = append(out, frag.tokenID)
				continue
			}
			if frag.text == "" {
				continue
			}
			toks, err := t.engine.Encode(frag.text)
			if err != nil {
				return nil, err
			}
			out = append(out, toks...)
		}
	} else {
		toks, err := t.engine.Encode(text)
		if err != nil {
			return nil, err
		}
		out = append(out, toks...)
	}

	if opts.AddSpecialTokens && t.vocab.AddEOS() {
		out = append(out, t.vocab.EOSTokenID())
	}

	return out, nil
}

// textFragment is one piece of an input split on special-token occurrences.
type textFragment struct {
	isSpecial bool
	tokenID   uint32
	text      string
}

// splitOnSpecialTokens finds leftmost-longest occurrences of any text in
// specials (longest candidate wins when several start at the same
// position), splitting text into an ordered list of Special(id)|Text(s)
// fragments per spec.md §4.8.
func splitOnSpecialTokens(text string, specials map[string]uint32) []textFragment {
	if len(specials) == 0 {
		return []textFragment{{text: text}}
	}

	needles := make([]string, 0, len(specials))
	for s := range specials {
		needles = append(needles, s)
	}
	// Longest first so the leftmost-longest rule is just "first match wins"
	// at any given starting position.
	sort.Slice(needles, func(i, j int) bool { return len(needles[i]) > len(needles[j]) })

	var out []textFragment
	pos := 0
	textStart := 0
	n := len(text)
	for pos < n {
		matched := ""
		for _, needle := range needles {
			if needle == "" {
				continue
			}
			if strings.HasPrefix(text[pos:], needle) {
				matched = needle
				break
			}
		}
		if matched == "" {
			pos++
			continue
		}
		if pos > textStart {
			out = append(out, textFragment{text: text[textStart:pos]})
		}
		out = append(out, textFragment{isSpecial: true, tokenID: specials[matched]})
		pos += len(matched)
		textStart = pos
	}
	if textStart < n {
		out = append(out, textFragment{text: text[textStart:]})
	}
	return out
}

// Decode reconstructs text from tokens, optionally filtering special tokens.
func (t *Tokenizer) Decode(tokens []uint32, skipSpecialTokens bool) (string, error) {
	return t.DecodeWithOptions(tokens, DecodeOptions{
		SkipSpecialTokens:  skipSpecialTokens,
		IncludeSpecialText: true,
	})
}

// DecodeWithOptions is Decode with the full option set (spec.md §4.8).
func (t *Tokenizer) DecodeWithOptions(tokens []uint32, opts DecodeOptions) (string, error) {
	filtered := tokens
	if opts.SkipSpecialTokens {
		filtered = make([]uint32, 0, len(tokens))
		for _, id := range tokens {
			if !t.vocab.IsSpecial(id) {
				filtered = append(filtered, id)
			}
		}
	}

	var result string
	if opts.Lstrip || !opts.IncludeSpecialText {
		var sb strings.Builder
		for _, id := range filtered {
			if !opts.IncludeSpecialText && t.vocab.IsSpecial(id) {
				continue
			}
			piece, err := t.engine.Decode([]uint32{id})
			if err != nil {
				return "", err
			}
			if opts.Lstrip {
				piece = strings.TrimLeft(piece, " \t\n\r")
			}
			sb.WriteString(piece)
		}
		result = sb.String()
	} else {
		var err error
		result, err = t.engine.Decode(filtered)
		if err != nil {
			return "", err
		}
	}

	if t.vocab.CleanSpaces() {
		result = applyCleanSpaces(result)
	}
	return result, nil
}

// applyCleanSpaces runs the three-pass llama.cpp-parity whitespace cleanup
// (spec.md §4.8): it is idempotent by construction, since each pass only
// removes a space that immediately precedes a fixed punctuation pattern.
func applyCleanSpaces(s string) string {
	for _, p := range []string{" ?", " !", " .", " ,"} {
		s = strings.ReplaceAll(s, p, p[1:])
	}
	s = strings.ReplaceAll(s, " ' ", "'")
	for _, suffix := range []string{"'s", "'m", "'ve", "'re"} {
		s = strings.ReplaceAll(s, " "+suffix, suffix)
	}
	return s
}

// EncodeBatch encodes every text in texts concurrently over a bounded
// worker pool, preserving input order in the result (spec.md §4.8's
// "work-stealing pool").
func (t *Tokenizer) EncodeBatch(texts []string, addSpecialTokens bool) ([][]uint32, error) {
	out := make([][]uint32, len(texts))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			toks, err := t.Encode(text, addSpecialTokens)
			if err != nil {
				return err
			}
			out[i] = toks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeSingle decodes one token, returning an empty string for special
// tokens when skipSpecialTokens is set. Intended for streaming generation
// where tokens arrive one at a time.
func (t *Tokenizer) DecodeSingle(token uint32, skipSpecialTokens bool) (string, error) {
	if skipSpecialTokens && t.vocab.IsSpecial(token) {
		return "", nil
	}
	return t.engine.Decode([]uint32{token})
}

// TokenToPiece returns the raw vocabulary text for token.
func (t *Tokenizer) TokenToPiece(token uint32) (string, error) {
	text, ok := t.vocab.TextOf(token)
	if !ok {
		return "", errs.NewInvalidTokenError(token, t.vocab.Len())
	}
	return text, nil
}

// TokenType returns token's type classification, or TokenUndefined if out
// of range.
func (t *Tokenizer) TokenType(token uint32) vocab.TokenType {
	return t.vocab.TypeOf(token)
}

// SpecialTokenIDs returns the id of every Control- or UserDefined-typed
// token (the set ParseSpecial matches), in no particular order. This set
// differs from IsSpecialToken's: Unknown-typed tokens and bos/eos/unk/pad
// ids of other types are not included.
func (t *Tokenizer) SpecialTokenIDs() []uint32 {
	m := t.vocab.SpecialTokenMap()
	ids := make([]uint32, 0, len(m))
	for _, id := range m {
		ids = append(ids, id)
	}
	return ids
}

// IsSpecialToken reports whether token is a special token per spec.md §4.3.
func (t *Tokenizer) IsSpecialToken(token uint32) bool {
	if int(token) >= t.vocab.Len() {
		return false
	}
	return t.vocab.IsSpecial(token)
}

// VocabSize returns the total number of tokens in the vocabulary.
func (t *Tokenizer) VocabSize() int { return t.vocab.Len() }

// BOSToken returns the beginning-of-sequence token id.
func (t *Tokenizer) BOSToken() uint32 { return t.vocab.BOSTokenID() }

// EOSToken returns the end-of-sequence token id.
func (t *Tokenizer) EOSToken() uint32 { return t.vocab.EOSTokenID() }

// ModelType returns the dispatch key extracted from the GGUF container.
func (t *Tokenizer) ModelType() string { return t.vocab.ModelType() }

// PreType returns the pre-tokenizer dialect name, if the container set one.
func (t *Tokenizer) PreType() (string, bool) { return t.vocab.PreType() }
