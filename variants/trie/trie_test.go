package trie

import "testing"

func TestLongestMatchPrefersLongerRun(t *testing.T) {
	tr := New()
	tr.Insert([]byte("a"), 1)
	tr.Insert([]byte("ab"), 2)
	tr.Insert([]byte("abc"), 3)

	id, end, ok := tr.LongestMatch([]byte("abcd"), 0)
	if !ok || id != 3 || end != 3 {
		t.Fatalf("LongestMatch = (%d,%d,%v), want (3,3,true)", id, end, ok)
	}
}

func TestLongestMatchFallsBackToShorterPrefix(t *testing.T) {
	tr := New()
	tr.Insert([]byte("a"), 1)
	tr.Insert([]byte("abc"), 3)

	// "ab" has no value at that node, so the longest valued match is "a".
	id, end, ok := tr.LongestMatch([]byte("abd"), 0)
	if !ok || id != 1 || end != 1 {
		t.Fatalf("LongestMatch = (%d,%d,%v), want (1,1,true)", id, end, ok)
	}
}

func TestLongestMatchNoMatch(t *testing.T) {
	tr := New()
	tr.Insert([]byte("a"), 1)

	_, _, ok := tr.LongestMatch([]byte("z"), 0)
	if ok {
		t.Fatalf("LongestMatch on unknown byte should not match")
	}
}

func TestLongestMatchAtOffset(t *testing.T) {
	tr := New()
	tr.Insert([]byte("bc"), 2)

	id, end, ok := tr.LongestMatch([]byte("abc"), 1)
	if !ok || id != 2 || end != 3 {
		t.Fatalf("LongestMatch at offset = (%d,%d,%v), want (2,3,true)", id, end, ok)
	}
}
