package rwkv

import (
	"testing"

	"github.com/agentstation/gguftok/gguf"
	"github.com/agentstation/gguftok/vocab"
)

func TestUnescapeNewline(t *testing.T) {
	got := UnescapeToken(`\n`)
	if string(got) != "\n" {
		t.Fatalf("UnescapeToken(\\n) = %q, want newline", got)
	}
}

func TestUnescapeTab(t *testing.T) {
	got := UnescapeToken(`\t`)
	if string(got) != "\t" {
		t.Fatalf("UnescapeToken(\\t) = %q, want tab", got)
	}
}

func TestUnescapeCarriageReturn(t *testing.T) {
	got := UnescapeToken(`\r`)
	if string(got) != "\r" {
		t.Fatalf("UnescapeToken(\\r) = %q, want CR", got)
	}
}

func TestUnescapeHex(t *testing.T) {
	cases := map[string]byte{
		`\x41`: 'A',
		`\x00`: 0,
		`\xff`: 0xFF,
	}
	for in, want := range cases {
		got := UnescapeToken(in)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("UnescapeToken(%q) = %v, want [%d]", in, got, want)
		}
	}
}

func TestUnescapePlain(t *testing.T) {
	got := UnescapeToken("abc")
	if string(got) != "abc" {
		t.Fatalf("UnescapeToken(abc) = %q, want abc", got)
	}
}

func TestUnescapeMixed(t *testing.T) {
	got := UnescapeToken(`hello\nworld`)
	if string(got) != "hello\nworld" {
		t.Fatalf("UnescapeToken = %q, want %q", got, "hello\nworld")
	}
}

func buildVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	tokens := []string{"<unk>", "<s>", "</s>", "hel", "lo", `\n`, "l", "o", "h", "e"}
	md := &gguf.Metadata{
		Tokens:    tokens,
		ModelType: "rwkv",
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

func TestEncodeGreedyLongestMatch(t *testing.T) {
	v := buildVocab(t)
	e := New(v)

	ids, err := e.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	helID, _ := v.IDOf("hel")
	loID, _ := v.IDOf("lo")
	want := []uint32{helID, loID}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("Encode(hello) = %v, want %v", ids, want)
	}
}

func TestEncodeMatchesEscapedNewlineToken(t *testing.T) {
	v := buildVocab(t)
	e := New(v)

	ids, err := e.Encode("\n")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantID, _ := v.IDOf(`\n`)
	if len(ids) != 1 || ids[0] != wantID {
		t.Fatalf("Encode(\\n) = %v, want [%d]", ids, wantID)
	}
}

func TestEncodeUnknownByteFallsBackToUnk(t *testing.T) {
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

func TestDecodeInvalidTokenID(t *testing.T) {
	v := buildVocab(t)
	e := New(v)
	_, err := e.Decode([]uint32{9999})
	if err == nil {
		t.Fatalf("Decode with out-of-range id should fail")
	}
}
