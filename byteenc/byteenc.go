// Package byteenc implements the bijective byte-level alphabet shared by
// GPT-2-style byte-level BPE tokenizers: every raw byte value maps to one
// of 256 distinct, always-printable unicode codepoints, letting a BPE
// engine operate entirely in text space without losing a single input byte.
package byteenc

import (
	"strings"
	"unicode/utf8"
)

var (
	bytesToUnicode [256]rune
	unicodeToBytes map[rune]byte
)

func init() {
	bytesToUnicode, unicodeToBytes = buildTable()
}

// buildTable constructs the byte<->codepoint bijection. The printable ASCII
// and Latin-1 ranges map to themselves; every other byte value is assigned
// a codepoint starting at 256, in ascending byte order.
func buildTable() ([256]rune, map[rune]byte) {
	inRange := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}

	var table [256]rune
	reverse := make(map[rune]byte, 256)

	for b := 0; b < 256; b++ {
		if inRange(b) {
			table[b] = rune(b)
			reverse[rune(b)] = byte(b)
		}
	}

	n := rune(256)
	for b := 0; b < 256; b++ {
		if !inRange(b) {
			table[b] = n
			reverse[n] = byte(b)
			n++
		}
	}

	return table, reverse
}

// EncodeBytes maps each byte of data through the byte-level alphabet,
// producing a UTF-8 string in which every input byte survives as exactly
// one codepoint.
func EncodeBytes(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		sb.WriteRune(bytesToUnicode[b])
	}
	return sb.String()
}

// DecodeBytes maps each codepoint of s back through the alphabet's inverse.
// Codepoints outside the alphabet's image are dropped; the resulting byte
// sequence is interpreted as UTF-8 with invalid subsequences replaced by
// U+FFFD, matching the reference implementation's lossy decode.
func DecodeBytes(s string) string {
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := unicodeToBytes[r]; ok {
			raw = append(raw, b)
		}
	}
	return lossyUTF8(raw)
}

// DecodeBytesRaw is like DecodeBytes but returns the raw byte sequence
// before UTF-8 validation, for callers (such as decode byte-fallback paths)
// that need to concatenate raw bytes across multiple tokens before the
// final lossy UTF-8 interpretation.
func DecodeBytesRaw(s string) []byte {
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := unicodeToBytes[r]; ok {
			raw = append(raw, b)
		}
	}
	return raw
}

// LossyUTF8 interprets raw as UTF-8, replacing invalid subsequences with
// U+FFFD, exactly as String::from_utf8_lossy does in the reference
// implementation.
func LossyUTF8(raw []byte) string {
	return lossyUTF8(raw)
}

func lossyUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var sb strings.Builder
	sb.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		sb.WriteRune(r)
		raw = raw[size:]
	}
	return sb.String()
}
