// Package gguf reads the tokenizer-relevant metadata out of a GGUF model
// container: the tagged key-value store that prefixes a model's tensor
// weights. Tensor payloads themselves are never parsed; the reader stops
// once the metadata section is consumed.
package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"unicode/utf8"

	"github.com/agentstation/gguftok/errs"
)

const (
	magicGGUF = "GGUF"

	minVersion = 2
	maxVersion = 3

	// maxStringSize bounds any single length-prefixed string.
	maxStringSize = 1 << 20 // 1 MiB
	// maxTotalStringData bounds the cumulative bytes spent on strings
	// across the whole metadata section.
	maxTotalStringData = 100 << 20 // 100 MiB
)

// Value type codes from the GGUF metadata format.
const (
	typeU32    = 4
	typeI32    = 5
	typeF32    = 6
	typeBool   = 7
	typeString = 8
	typeArray  = 9
)

// Metadata holds the subset of a GGUF file's key-value store this package
// extracts for tokenizer construction. Tensor data is never read.
type Metadata struct {
	Tokens        []string
	Scores        []float32
	TokenTypes    []int32
	ModelType     string
	PreType       string
	HasPreType    bool
	BOSTokenID    uint32
	HasBOS        bool
	EOSTokenID    uint32
	HasEOS        bool
	UnkTokenID    uint32
	HasUnk        bool
	PadTokenID    uint32
	HasPad        bool
	AddBOSToken   bool
	HasAddBOS     bool
	AddEOSToken   bool
	HasAddEOS     bool
	AddSpacePre   bool
	HasAddSpacePre bool
	// Merges is the ordered (left, right) pair list; rank is the slice index.
	Merges [][2]string
}

// value is an untyped value decoded from the metadata stream.
type value struct {
	kind        uint32
	u32         uint32
	i32         int32
	f32         float32
	b           bool
	str         string
	i32Array    []int32
	f32Array    []float32
	stringArray []string
}

// Load opens path and parses its GGUF metadata section.
func Load(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewContainerReadError("open", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a GGUF metadata section from r. Parsing stops at the end of
// the metadata section and never interprets the tensor payload; because r
// is wrapped in a buffered reader, bytes past that point may still have
// been read from r.
func Read(r io.Reader) (*Metadata, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, errs.NewContainerReadError("read magic", err)
	}
	if string(magic[:]) != magicGGUF {
		return nil, errs.NewContainerReadError("read magic", errs.ErrBadMagic)
	}

	version, err := readU32(br)
	if err != nil {
		return nil, errs.NewContainerReadError("read version", err)
	}
	if version < minVersion || version > maxVersion {
		return nil, errs.NewContainerReadError("read version",
			fmt.Errorf("%w: %d (only versions %d-%d are supported)", errs.ErrUnsupportedVersion, version, minVersion, maxVersion))
	}

	if _, err := readU64(br); err != nil { // tensor count, unused
		return nil, errs.NewContainerReadError("read tensor count", err)
	}
	metadataCount, err := readU64(br)
	if err != nil {
		return nil, errs.NewContainerReadError("read metadata count", err)
	}

	var totalStringBytes uint64
	kv := make(map[string]value, metadataCount)
	for i := uint64(0); i < metadataCount; i++ {
		key, err := readString(br, &totalStringBytes)
		if err != nil {
			return nil, errs.NewContainerReadError("read key", err)
		}
		v, err := readValue(br, &totalStringBytes)
		if err != nil {
			return nil, errs.NewContainerReadError("read value", err)
		}
		kv[key] = v
	}

	return extractMetadata(kv)
}

func extractMetadata(kv map[string]value) (*Metadata, error) {
	md := &Metadata{ModelType: "llama"}

	tokens, ok := kv["tokenizer.ggml.tokens"]
	if !ok || tokens.kind != typeArray || tokens.stringArray == nil {
		return nil, errs.NewInvalidMetadataError("extract", "tokenizer.ggml.tokens", errs.ErrMissingKey)
	}
	md.Tokens = tokens.stringArray

	if v, ok := kv["tokenizer.ggml.scores"]; ok && v.f32Array != nil {
		md.Scores = v.f32Array
	}
	if v, ok := kv["tokenizer.ggml.token_type"]; ok && v.i32Array != nil {
		md.TokenTypes = v.i32Array
	}
	if v, ok := kv["tokenizer.ggml.model"]; ok && v.kind == typeString {
		md.ModelType = v.str
	}
	if v, ok := kv["tokenizer.ggml.pre"]; ok && v.kind == typeString {
		md.PreType = v.str
		md.HasPreType = true
	}
	if v, ok := kv["tokenizer.ggml.bos_token_id"]; ok && v.kind == typeU32 {
		md.BOSTokenID = v.u32
		md.HasBOS = true
	}
	if v, ok := kv["tokenizer.ggml.eos_token_id"]; ok && v.kind == typeU32 {
		md.EOSTokenID = v.u32
		md.HasEOS = true
	}
	if v, ok := kv["tokenizer.ggml.unknown_token_id"]; ok && v.kind == typeU32 {
		md.UnkTokenID = v.u32
		md.HasUnk = true
	}
	if v, ok := kv["tokenizer.ggml.padding_token_id"]; ok && v.kind == typeU32 {
		md.PadTokenID = v.u32
		md.HasPad = true
	}
	if v, ok := kv["tokenizer.ggml.add_bos_token"]; ok && v.kind == typeBool {
		md.AddBOSToken = v.b
		md.HasAddBOS = true
	}
	if v, ok := kv["tokenizer.ggml.add_eos_token"]; ok && v.kind == typeBool {
		md.AddEOSToken = v.b
		md.HasAddEOS = true
	}
	if v, ok := kv["tokenizer.ggml.add_space_prefix"]; ok && v.kind == typeBool {
		md.AddSpacePre = v.b
		md.HasAddSpacePre = true
	}
	if v, ok := kv["tokenizer.ggml.merges"]; ok && v.stringArray != nil {
		md.Merges = splitMerges(v.stringArray)
	}

	return md, nil
}

// splitMerges splits each "left right" merge string on its first ASCII
// space. Entries with no space are dropped; entries with more than one
// space keep the remainder attached to the right-hand side.
func splitMerges(raw []string) [][2]string {
	out := make([][2]string, 0, len(raw))
	for _, s := range raw {
		i := -1
		for j := 0; j < len(s); j++ {
			if s[j] == ' ' {
				i = j
				break
			}
		}
		if i < 0 {
			continue
		}
		out = append(out, [2]string{s[:i], s[i+1:]})
	}
	return out
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readI32(r io.Reader) (int32, error) {
	u, err := readU32(r)
	return int32(u), err
}

func readF32(r io.Reader) (float32, error) {
	u, err := readU32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

func readString(r io.Reader, totalBytes *uint64) (string, error) {
	lenU64, err := readU64(r)
	if err != nil {
		return "", err
	}

	// On 32-bit platforms a length that doesn't fit in int would silently
	// truncate; reject it outright rather than risk a short read.
	if lenU64 > uint64(^uint(0)>>1) {
		return "", fmt.Errorf("string length %d exceeds platform limit", lenU64)
	}
	length := int(lenU64)

	if length > maxStringSize {
		return "", fmt.Errorf("%w: string too large: %d bytes (max %d)", errs.ErrSizeCapExceeded, length, maxStringSize)
	}

	newTotal := *totalBytes + uint64(length)
	if newTotal < *totalBytes {
		return "", fmt.Errorf("%w: total string data overflow", errs.ErrSizeCapExceeded)
	}
	*totalBytes = newTotal
	if *totalBytes > maxTotalStringData {
		return "", fmt.Errorf("%w: total string data too large: %d bytes (max %d)", errs.ErrSizeCapExceeded, *totalBytes, maxTotalStringData)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w in metadata string", errs.ErrInvalidUTF8)
	}
	return string(buf), nil
}

func readValue(r io.Reader, totalBytes *uint64) (value, error) {
	typeID, err := readU32(r)
	if err != nil {
		return value{}, err
	}

	switch typeID {
	case typeU32:
		u, err := readU32(r)
		return value{kind: typeU32, u32: u}, err
	case typeI32:
		i, err := readI32(r)
		return value{kind: typeI32, i32: i}, err
	case typeF32:
		f, err := readF32(r)
		return value{kind: typeF32, f32: f}, err
	case typeBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return value{}, err
		}
		return value{kind: typeBool, b: b[0] != 0}, nil
	case typeString:
		s, err := readString(r, totalBytes)
		return value{kind: typeString, str: s}, err
	case typeArray:
		return readArray(r, totalBytes)
	default:
		return value{}, fmt.Errorf("unsupported value type: %d", typeID)
	}
}

func readArray(r io.Reader, totalBytes *uint64) (value, error) {
	arrayType, err := readU32(r)
	if err != nil {
		return value{}, err
	}
	arrayLenU64, err := readU64(r)
	if err != nil {
		return value{}, err
	}
	if arrayLenU64 > uint64(^uint(0)>>1) {
		return value{}, fmt.Errorf("array length %d exceeds platform limit", arrayLenU64)
	}
	arrayLen := int(arrayLenU64)

	switch arrayType {
	case typeI32:
		arr := make([]int32, arrayLen)
		for i := range arr {
			v, err := readI32(r)
			if err != nil {
				return value{}, err
			}
			arr[i] = v
		}
		return value{kind: typeArray, i32Array: arr}, nil
	case typeF32:
		arr := make([]float32, arrayLen)
		for i := range arr {
			v, err := readF32(r)
			if err != nil {
				return value{}, err
			}
			arr[i] = v
		}
		return value{kind: typeArray, f32Array: arr}, nil
	case typeString:
		arr := make([]string, arrayLen)
		for i := range arr {
			v, err := readString(r, totalBytes)
			if err != nil {
				return value{}, err
			}
			arr[i] = v
		}
		return value{kind: typeArray, stringArray: arr}, nil
	default:
		return value{}, fmt.Errorf("unsupported array element type: %d", arrayType)
	}
}
