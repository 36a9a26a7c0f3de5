package plamo2

import (
	"testing"

	"github.com/agentstation/gguftok/gguf"
	"github.com/agentstation/gguftok/vocab"
)

// buildVocab assembles a tiny PLaMo-2 style vocabulary: single-character
// pieces, one higher-scored two-character piece, and a byte-fallback token
// for an otherwise uncovered character.
func buildVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	tokens := []string{"<unk>", "x", "y", "xy", "<0x7A>"} // <0x7A> = 'z'
	types := []int32{2, 1, 1, 1, 6}                       // unk,normal,normal,normal,byte
	scores := []float32{0, -1, -1, -0.1, 0}

	md := &gguf.Metadata{
		Tokens:     tokens,
		TokenTypes: types,
		Scores:     scores,
		ModelType:  "plamo2",
		HasBOS:     true, BOSTokenID: 0,
		HasEOS: true, EOSTokenID: 0,
		HasUnk: true, UnkTokenID: 0,
	}
	v, err := vocab.FromGGUF(md)
	if err != nil {
		t.Fatalf("FromGGUF: %v", err)
	}
	return v
}

func TestEncodeEmptyText(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("Encode(\"\") = %v, want empty", ids)
	}
}

func TestEncodeSingleCharacterToken(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("x")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantID, _ := v.IDOf("x")
	if len(ids) != 1 || ids[0] != wantID {
		t.Fatalf("Encode(x) = %v, want [%d]", ids, wantID)
	}
}

func TestEncodePrefersHigherScoringTwoCharacterPiece(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("xy")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantID, _ := v.IDOf("xy")
	if len(ids) != 1 || ids[0] != wantID {
		t.Fatalf("Encode(xy) = %v, want [%d] (combined piece, higher score)", ids, wantID)
	}
}

func TestEncodeUnknownCharacterUsesByteFallback(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("z")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantID, _ := v.IDOf("<0x7A>")
	if len(ids) != 1 || ids[0] != wantID {
		t.Fatalf("Encode(z) = %v, want byte-fallback token [%d]", ids, wantID)
	}
}

func TestDecodeResolvesByteFallbackToken(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	byteID, _ := v.IDOf("<0x7A>")
	text, err := e.Decode([]uint32{byteID})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "z" {
		t.Fatalf("Decode(byteFallback) = %q, want %q", text, "z")
	}
}

func TestDecodeInvalidTokenID(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	_, err := e.Decode([]uint32{9999})
	if err == nil {
		t.Fatalf("Decode with out-of-range id should fail")
	}
}

func TestDecodeConcatenatesVocabTokens(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	xID, _ := v.IDOf("x")
	yID, _ := v.IDOf("y")
	text, err := e.Decode([]uint32{xID, yID})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "xy" {
		t.Fatalf("Decode(x,y) = %q, want %q", text, "xy")
	}
}
