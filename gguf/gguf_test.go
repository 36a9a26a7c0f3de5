package gguf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/agentstation/gguftok/errs"
)

// builder assembles a synthetic GGUF byte stream for tests, in place of a
// checked-in binary fixture.
type builder struct {
	buf     bytes.Buffer
	kv      [][2]any // key, value-writer pairs recorded in insertion order
	version uint32
}

func newBuilder() *builder {
	return &builder{version: 3}
}

func (b *builder) putU32(v uint32) { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *builder) putU64(v uint64) { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *builder) putI32(v int32)  { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *builder) putF32(v float32) { binary.Write(&b.buf, binary.LittleEndian, v) }

func (b *builder) putString(s string) {
	b.putU64(uint64(len(s)))
	b.buf.WriteString(s)
}

type kvEntry struct {
	key   string
	write func(*builder)
}

// build assembles the final byte stream given a header override and a list
// of key/value entries.
func build(version uint32, entries []kvEntry) []byte {
	var b builder
	b.buf.WriteString(magicGGUF)
	b.putU32(version)
	b.putU64(0) // tensor count
	b.putU64(uint64(len(entries)))
	for _, e := range entries {
		b.putString(e.key)
		e.write(&b)
	}
	return b.buf.Bytes()
}

func stringVal(s string) func(*builder) {
	return func(b *builder) {
		b.putU32(typeString)
		b.putString(s)
	}
}

func u32Val(v uint32) func(*builder) {
	return func(b *builder) {
		b.putU32(typeU32)
		b.putU32(v)
	}
}

func boolVal(v bool) func(*builder) {
	return func(b *builder) {
		b.putU32(typeBool)
		if v {
			b.buf.WriteByte(1)
		} else {
			b.buf.WriteByte(0)
		}
	}
}

func stringArrayVal(ss []string) func(*builder) {
	return func(b *builder) {
		b.putU32(typeArray)
		b.putU32(typeString)
		b.putU64(uint64(len(ss)))
		for _, s := range ss {
			b.putString(s)
		}
	}
}

func f32ArrayVal(fs []float32) func(*builder) {
	return func(b *builder) {
		b.putU32(typeArray)
		b.putU32(typeF32)
		b.putU64(uint64(len(fs)))
		for _, f := range fs {
			b.putF32(f)
		}
	}
}

func i32ArrayVal(is []int32) func(*builder) {
	return func(b *builder) {
		b.putU32(typeArray)
		b.putU32(typeI32)
		b.putU64(uint64(len(is)))
		for _, i := range is {
			b.putI32(i)
		}
	}
}

func minimalEntries() []kvEntry {
	return []kvEntry{
		{"tokenizer.ggml.tokens", stringArrayVal([]string{"<unk>", "<s>", "</s>", "a", "b"})},
		{"tokenizer.ggml.model", stringVal("llama")},
		{"tokenizer.ggml.scores", f32ArrayVal([]float32{0, 0, 0, -1.5, -2.25})},
		{"tokenizer.ggml.token_type", i32ArrayVal([]int32{2, 3, 3, 1, 1})},
		{"tokenizer.ggml.bos_token_id", u32Val(1)},
		{"tokenizer.ggml.eos_token_id", u32Val(2)},
		{"tokenizer.ggml.unknown_token_id", u32Val(0)},
		{"tokenizer.ggml.add_bos_token", boolVal(true)},
		{"tokenizer.ggml.merges", stringArrayVal([]string{"a b"})},
	}
}

func TestReadMinimal(t *testing.T) {
	data := build(3, minimalEntries())
	md, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(md.Tokens) != 5 {
		t.Fatalf("Tokens = %v, want 5 entries", md.Tokens)
	}
	if md.ModelType != "llama" {
		t.Fatalf("ModelType = %q, want llama", md.ModelType)
	}
	if !md.HasBOS || md.BOSTokenID != 1 {
		t.Fatalf("BOS = %v/%v, want true/1", md.HasBOS, md.BOSTokenID)
	}
	if len(md.Merges) != 1 || md.Merges[0] != [2]string{"a", "b"} {
		t.Fatalf("Merges = %v, want [[a b]]", md.Merges)
	}
	if len(md.Scores) != 5 || md.Scores[3] != -1.5 {
		t.Fatalf("Scores = %v", md.Scores)
	}
}

func TestReadBadMagic(t *testing.T) {
	data := build(3, minimalEntries())
	data[0] = 'X'
	_, err := Read(bytes.NewReader(data))
	var cre *errs.ContainerReadError
	if !errors.As(err, &cre) || !errors.Is(err, errs.ErrBadMagic) {
		t.Fatalf("Read = %v, want ContainerReadError wrapping ErrBadMagic", err)
	}
}

func TestReadUnsupportedVersion(t *testing.T) {
	data := build(99, minimalEntries())
	_, err := Read(bytes.NewReader(data))
	if !errors.Is(err, errs.ErrUnsupportedVersion) {
		t.Fatalf("Read = %v, want ErrUnsupportedVersion", err)
	}
}

func TestReadMissingTokens(t *testing.T) {
	data := build(3, []kvEntry{{"tokenizer.ggml.model", stringVal("llama")}})
	_, err := Read(bytes.NewReader(data))
	if !errors.Is(err, errs.ErrMissingKey) {
		t.Fatalf("Read = %v, want ErrMissingKey", err)
	}
}

func TestReadTruncated(t *testing.T) {
	data := build(3, minimalEntries())
	_, err := Read(bytes.NewReader(data[:len(data)-4]))
	var cre *errs.ContainerReadError
	if !errors.As(err, &cre) {
		t.Fatalf("Read = %v, want ContainerReadError", err)
	}
}

func TestMergeSplitOnFirstSpace(t *testing.T) {
	got := splitMerges([]string{"a b", "noSpace", "x y z"})
	want := [][2]string{{"a", "b"}, {"x", "y z"}}
	if len(got) != len(want) {
		t.Fatalf("splitMerges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitMerges[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
