package byteenc

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"hello world",
		"Hello, world! 123",
		"\n\t\r",
		"日本語のテスト",
		// Control bytes, a space, and the two-byte UTF-8 form of U+00FF:
		// DecodeBytes is lossy on invalid UTF-8, so identity only holds for
		// valid UTF-8 input.
		string([]byte{0x00, 0x01, 0x20, 0xC3, 0xBF}),
	}
	for _, tc := range cases {
		enc := EncodeBytes([]byte(tc))
		got := DecodeBytes(enc)
		if got != tc {
			t.Fatalf("round trip mismatch: input %q, got %q", tc, got)
		}
	}
}

func TestSpaceMapsToU0120(t *testing.T) {
	enc := EncodeBytes([]byte{' '})
	if enc != "Ġ" {
		t.Fatalf("space encoded to %q (%U), want U+0120", enc, []rune(enc)[0])
	}
}

func TestTableIsBijective(t *testing.T) {
	seen := make(map[rune]bool, 256)
	for b := 0; b < 256; b++ {
		r := bytesToUnicode[b]
		if seen[r] {
			t.Fatalf("codepoint %U assigned to more than one byte", r)
		}
		seen[r] = true
		if back, ok := unicodeToBytes[r]; !ok || back != byte(b) {
			t.Fatalf("byte %d round trip via table failed: got %v/%v", b, back, ok)
		}
	}
	if len(seen) != 256 {
		t.Fatalf("table covers %d codepoints, want 256", len(seen))
	}
}

func TestDecodeBytesLossyOnInvalidCodepoints(t *testing.T) {
	// A codepoint not present in the alphabet's image must be dropped
	// rather than panicking or corrupting later bytes.
	got := DecodeBytes(string(rune(0x10FFFF)) + EncodeBytes([]byte("ok")))
	if got != "ok" {
		t.Fatalf("DecodeBytes = %q, want %q", got, "ok")
	}
}
