// Package vocab builds and exposes the validated, read-only vocabulary
// store shared by every tokenization engine: token text/score/type arrays,
// the reverse text->id index, the merge table, special-token ids, and the
// tokenizer behavior flags extracted from a GGUF container.
package vocab

import (
	"fmt"

	"github.com/agentstation/gguftok/errs"
	"github.com/agentstation/gguftok/gguf"
)

const (
	maxVocabSize  = 1_000_000
	maxTokenLen   = 1024
	maxMergeCount = 1_000_000
)

// TokenType is the closed set of token kinds a vocabulary entry can carry.
type TokenType int32

// Token kinds, matching the GGUF tokenizer.ggml.token_type encoding.
const (
	TokenUndefined TokenType = 0
	TokenNormal    TokenType = 1
	TokenUnknown   TokenType = 2
	TokenControl   TokenType = 3
	TokenUserDefined TokenType = 4
	TokenUnused    TokenType = 5
	TokenByte      TokenType = 6
)

func tokenTypeFromI32(v int32) TokenType {
	switch v {
	case 1, 2, 3, 4, 5, 6:
		return TokenType(v)
	default:
		return TokenUndefined
	}
}

// Merge is one (left, right) byte-pair-encoding rule; its rank is its index
// in Vocabulary.Merges (lower rank = applied earlier).
type Merge struct {
	Left  string
	Right string
}

// Vocabulary is the immutable, validated snapshot built once when a model
// is opened. It is safe for concurrent read access by any number of
// engines and encode/decode calls.
type Vocabulary struct {
	tokens     []string
	scores     []float32
	types      []TokenType
	textToID   map[string]uint32

	modelType string
	preType   string
	hasPre    bool

	bosID uint32
	eosID uint32
	unkID uint32
	padID uint32
	hasPad bool

	addBOS       bool
	addEOS       bool
	addSpacePre  bool

	merges []Merge
}

// FromGGUF loads and validates a vocabulary from the metadata already
// extracted by the gguf package, applying the invariants of spec.md §3.
func FromGGUF(md *gguf.Metadata) (*Vocabulary, error) {
	n := len(md.Tokens)
	if n == 0 {
		return nil, errs.NewVocabularyError("validate", fmt.Errorf("%w: vocabulary is empty", errs.ErrVocabSize))
	}
	if n > maxVocabSize {
		return nil, errs.NewVocabularyError("validate", fmt.Errorf("%w: %d tokens (max %d)", errs.ErrVocabSize, n, maxVocabSize))
	}

	for i, tok := range md.Tokens {
		if len(tok) > maxTokenLen {
			return nil, errs.NewVocabularyError("validate", fmt.Errorf("token %d too large: %d bytes (max %d)", i, len(tok), maxTokenLen))
		}
	}

	textToID := make(map[string]uint32, n)
	for i, tok := range md.Tokens {
		if _, dup := textToID[tok]; dup {
			return nil, errs.NewVocabularyError("validate", fmt.Errorf("%w: %q", errs.ErrDuplicateToken, tok))
		}
		textToID[tok] = uint32(i)
	}

	var merges []Merge
	if md.Merges != nil {
		if len(md.Merges) > maxMergeCount {
			return nil, errs.NewVocabularyError("validate", fmt.Errorf("too many merge rules: %d (max %d)", len(md.Merges), maxMergeCount))
		}
		merges = make([]Merge, len(md.Merges))
		for rank, pair := range md.Merges {
			if _, ok := textToID[pair[0]]; !ok {
				return nil, errs.NewVocabularyError("validate", fmt.Errorf("%w: merge rule %d left %q", errs.ErrMergeReference, rank, pair[0]))
			}
			if _, ok := textToID[pair[1]]; !ok {
				return nil, errs.NewVocabularyError("validate", fmt.Errorf("%w: merge rule %d right %q", errs.ErrMergeReference, rank, pair[1]))
			}
			merges[rank] = Merge{Left: pair[0], Right: pair[1]}
		}
	}

	scores := md.Scores
	if scores == nil {
		scores = make([]float32, n)
	}
	if len(scores) != n {
		return nil, errs.NewVocabularyError("validate", fmt.Errorf("score array length mismatch: %d scores for %d tokens", len(scores), n))
	}

	types := make([]TokenType, n)
	if md.TokenTypes == nil {
		for i := range types {
			types[i] = TokenNormal
		}
	} else {
		if len(md.TokenTypes) != n {
			return nil, errs.NewVocabularyError("validate", fmt.Errorf("token types length mismatch: %d types for %d tokens", len(md.TokenTypes), n))
		}
		for i, v := range md.TokenTypes {
			types[i] = tokenTypeFromI32(v)
		}
	}

	bosID := uint32(1)
	if md.HasBOS {
		bosID = md.BOSTokenID
	}
	eosID := uint32(2)
	if md.HasEOS {
		eosID = md.EOSTokenID
	}
	unkID := uint32(0)
	if md.HasUnk {
		unkID = md.UnkTokenID
	}

	for name, id := range map[string]uint32{"bos": bosID, "eos": eosID, "unk": unkID} {
		if int(id) >= n {
			return nil, errs.NewVocabularyError("validate", fmt.Errorf("%s token id %d out of range for %d tokens", name, id, n))
		}
	}
	if md.HasPad && int(md.PadTokenID) >= n {
		return nil, errs.NewVocabularyError("validate", fmt.Errorf("pad token id %d out of range for %d tokens", md.PadTokenID, n))
	}

	addBOS := true
	if md.HasAddBOS {
		addBOS = md.AddBOSToken
	}
	addEOS := false
	if md.HasAddEOS {
		addEOS = md.AddEOSToken
	}
	addSpacePre := true
	if md.HasAddSpacePre {
		addSpacePre = md.AddSpacePre
	}

	v := &Vocabulary{
		tokens:      md.Tokens,
		scores:      scores,
		types:       types,
		textToID:    textToID,
		modelType:   md.ModelType,
		preType:     md.PreType,
		hasPre:      md.HasPreType,
		bosID:       bosID,
		eosID:       eosID,
		unkID:       unkID,
		padID:       md.PadTokenID,
		hasPad:      md.HasPad,
		addBOS:      addBOS,
		addEOS:      addEOS,
		addSpacePre: addSpacePre,
		merges:      merges,
	}
	return v, nil
}

// Len returns the vocabulary size N.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// IDOf returns the token id for text, if present.
func (v *Vocabulary) IDOf(text string) (uint32, bool) {
	id, ok := v.textToID[text]
	return id, ok
}

// TextOf returns the token text for id, if id is in range.
func (v *Vocabulary) TextOf(id uint32) (string, bool) {
	if int(id) >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// ScoreOf returns the score for id; ids outside range return 0.
func (v *Vocabulary) ScoreOf(id uint32) float32 {
	if int(id) >= len(v.scores) {
		return 0
	}
	return v.scores[id]
}

// TypeOf returns the token type for id; ids outside range return TokenUndefined.
func (v *Vocabulary) TypeOf(id uint32) TokenType {
	if int(id) >= len(v.types) {
		return TokenUndefined
	}
	return v.types[id]
}

// ByteToToken looks up the token id representing a single raw byte value,
// trying the SentencePiece hex form "<0xHH>" first, then the raw one-byte
// string, and finally falling back to the unknown token id.
func (v *Vocabulary) ByteToToken(b byte) uint32 {
	hex := fmt.Sprintf("<0x%02X>", b)
	if id, ok := v.textToID[hex]; ok {
		return id
	}
	if id, ok := v.textToID[string([]byte{b})]; ok {
		return id
	}
	return v.unkID
}

// IsSpecial reports whether id is a Control/Unknown-typed token or equals
// one of bos/eos/unk/pad.
func (v *Vocabulary) IsSpecial(id uint32) bool {
	switch v.TypeOf(id) {
	case TokenControl, TokenUnknown:
		return true
	}
	if id == v.bosID || id == v.eosID || id == v.unkID {
		return true
	}
	return v.hasPad && id == v.padID
}

// SpecialTokenMap returns the text->id entries for all tokens of type
// Control or UserDefined, used by the façade's inline special-token
// splitter.
func (v *Vocabulary) SpecialTokenMap() map[string]uint32 {
	out := make(map[string]uint32)
	for text, id := range v.textToID {
		switch v.TypeOf(id) {
		case TokenControl, TokenUserDefined:
			out[text] = id
		}
	}
	return out
}

// Merges returns the ordered merge table; index is rank.
func (v *Vocabulary) Merges() []Merge { return v.merges }

// ModelType returns the dispatch key extracted from tokenizer.ggml.model.
func (v *Vocabulary) ModelType() string { return v.modelType }

// PreType returns the pre-tokenizer dialect name, if the container set one.
func (v *Vocabulary) PreType() (string, bool) { return v.preType, v.hasPre }

// BOSTokenID, EOSTokenID, UnkTokenID return the respective special ids.
func (v *Vocabulary) BOSTokenID() uint32 { return v.bosID }
func (v *Vocabulary) EOSTokenID() uint32 { return v.eosID }
func (v *Vocabulary) UnkTokenID() uint32 { return v.unkID }

// PadTokenID returns the pad token id, if the container set one.
func (v *Vocabulary) PadTokenID() (uint32, bool) { return v.padID, v.hasPad }

// AddBOS, AddEOS, AddSpacePrefix return the tokenizer behavior flags.
func (v *Vocabulary) AddBOS() bool         { return v.addBOS }
func (v *Vocabulary) AddEOS() bool         { return v.addEOS }
func (v *Vocabulary) AddSpacePrefix() bool { return v.addSpacePre }

// CleanSpaces reports whether the façade's post-decode whitespace cleanup
// (spec.md §4.8) should run for this vocabulary's model kind. The GGUF
// container carries no explicit clean_spaces key, so this mirrors the
// byte-level BPE families' historical clean_up_tokenization_spaces=true
// default and the SentencePiece families' false default.
func (v *Vocabulary) CleanSpaces() bool {
	switch v.modelType {
	case "gpt2", "qwen", "qwen2", "bert", "wpm":
		return true
	default:
		return false
	}
}
