package wpm

import (
	"testing"

	"github.com/agentstation/gguftok/gguf"
	"github.com/agentstation/gguftok/vocab"
)

func buildVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	tokens := []string{"<unk>", "<s>", "</s>", "▁hello", "▁world", "▁", "!", ",", "▁!"}
	md := &gguf.Metadata{
		Tokens:    tokens,
		ModelType: "bert",
		HasBOS:    true, BOSTokenID: 1,
		HasEOS: true, EOSTokenID: 2,
		HasUnk: true, UnkTokenID: 0,
	}
	v, err := vocab.FromGGUF(md)
	if err != nil {
		t.Fatalf("FromGGUF: %v", err)
	}
	return v
}

func TestPreprocessBasic(t *testing.T) {
	got := preprocess("Hello, world!")
	want := []string{"hello", ",", "world", "!"}
	if len(got) != len(want) {
		t.Fatalf("preprocess = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("preprocess = %v, want %v", got, want)
		}
	}
}

func TestPreprocessWhitespace(t *testing.T) {
	got := preprocess("  multiple   spaces  ")
	want := []string{"multiple", "spaces"}
	if len(got) != len(want) {
		t.Fatalf("preprocess = %v, want %v", got, want)
	}
}

func TestPreprocessCJK(t *testing.T) {
	got := preprocess("hello世界")
	want := []string{"hello", "世", "界"}
	if len(got) != len(want) {
		t.Fatalf("preprocess = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("preprocess[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEncodeMatchesWholeWordToken(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantID, ok := v.IDOf("▁hello")
	if !ok {
		t.Fatalf("expected ▁hello token")
	}
	if len(ids) != 1 || ids[0] != wantID {
		t.Fatalf("Encode(hello) = %v, want [%d]", ids, wantID)
	}
}

func TestEncodeUnmatchedWordFallsBackToUnk(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("zzz")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 1 || ids[0] != v.UnkTokenID() {
		t.Fatalf("Encode(zzz) = %v, want [<unk>]", ids)
	}
}

func TestEncodePunctuationIsolated(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	ids, err := e.Encode("hello!")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	helloID, _ := v.IDOf("▁hello")
	bangID, _ := v.IDOf("▁!")
	want := []uint32{helloID, bangID}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("Encode(hello!) = %v, want %v", ids, want)
	}
}

func TestDecodeConcatenates(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	helloID, _ := v.IDOf("▁hello")
	worldID, _ := v.IDOf("▁world")
	text, err := e.Decode([]uint32{helloID, worldID})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "▁hello▁world" {
		t.Fatalf("Decode = %q, want %q", text, "▁hello▁world")
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
