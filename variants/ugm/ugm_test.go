package ugm

import (
	"testing"

	"github.com/agentstation/gguftok/gguf"
	"github.com/agentstation/gguftok/vocab"
)

// buildVocab makes a tiny unigram-style vocabulary: single-char normal
// tokens plus a higher-scored "lo" piece, and one user-defined special
// token that must presplit before Viterbi ever sees it.
func buildVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	tokens := []string{"<unk>", "<s>", "</s>", "l", "o", "w", "lo", "<|special|>"}
	types := []int32{2, 3, 3, 1, 1, 1, 1, 4} // unk,control,control,normal*4,user-defined
	scores := []float32{0, 0, 0, -1, -1, -1, -0.1, 0}

	md := &gguf.Metadata{
		Tokens:     tokens,
		TokenTypes: types,
		Scores:     scores,
		ModelType:  "t5",
		HasBOS:     true, BOSTokenID: 1,
		HasEOS: true, EOSTokenID: 2,
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

func TestEncodePrefersHigherScoringPiece(t *testing.T) {
	v := buildVocab(t)
	e := New(v)

	ids, err := e.Encode("low")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loID, _ := v.IDOf("lo")
	wID, _ := v.IDOf("w")
	want := []uint32{loID, wID}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("Encode(low) = %v, want %v (lo+w via higher score)", ids, want)
	}
}

func TestEncodeSplitsOnUserDefinedToken(t *testing.T) {
	v := buildVocab(t)
	e := New(v)

	ids, err := e.Encode("l<|special|>o")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	lID, _ := v.IDOf("l")
	specialID, _ := v.IDOf("<|special|>")
	oID, _ := v.IDOf("o")
	want := []uint32{lID, specialID, oID}
	if len(ids) != len(want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Encode = %v, want %v", ids, want)
		}
	}
}

func TestEncodeUnknownByteUsesUnkPenalty(t *testing.T) {
	v := buildVocab(t)
	e := New(v)

	ids, err := e.Encode("z")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 1 || ids[0] != v.UnkTokenID() {
		t.Fatalf("Encode(z) = %v, want [<unk>]", ids)
	}
}

func TestDecodeConcatenates(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	loID, _ := v.IDOf("lo")
	wID, _ := v.IDOf("w")
	text, err := e.Decode([]uint32{loID, wID})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "low" {
		t.Fatalf("Decode = %q, want %q", text, "low")
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
