package chunker

import (
	"strings"
	"testing"
)

func TestSplitOffsets(t *testing.T) {
	text := strings.Repeat("a", 1200)
	chunks := Split(text, 500, 50)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	want := [][2]int{{0, 500}, {450, 950}, {900, 1200}}
	for i, c := range chunks {
		if c.StartOffset != want[i][0] || c.EndOffset != want[i][1] {
			t.Fatalf("chunk %d offsets (%d,%d), want (%d,%d)", i, c.StartOffset, c.EndOffset, want[i][0], want[i][1])
		}
		if c.Index != i {
			t.Fatalf("chunk %d carries index %d", i, c.Index)
		}
		if len(c.Text) != c.EndOffset-c.StartOffset {
			t.Fatalf("chunk %d text length %d does not span offsets", i, len(c.Text))
		}
	}
}

func TestSplitShortDocumentSingleChunk(t *testing.T) {
	text := "short document text"
	chunks := Split(text, 500, 50)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != len(text) {
		t.Fatalf("single chunk should cover whole text, got (%d,%d)", chunks[0].StartOffset, chunks[0].EndOffset)
	}
	if chunks[0].Text != text {
		t.Fatalf("unexpected chunk text: %q", chunks[0].Text)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if chunks := Split("", 500, 50); len(chunks) != 0 {
		t.Fatalf("empty text must produce no chunks, got %d", len(chunks))
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := Normalize("Central diabetes insipidus is treated with desmopressin.\n" + strings.Repeat("More trial text. ", 80))
	a := Split(text, 120, 20)
	b := Split(text, 120, 20)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs across runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestContentHashStable(t *testing.T) {
	a := Split("identical text body", 500, 0)
	b := Split("identical text body", 500, 0)
	if a[0].ContentHash != b[0].ContentHash {
		t.Fatalf("same text must hash identically")
	}
	c := Split("different text body.", 500, 0)
	if a[0].ContentHash == c[0].ContentHash {
		t.Fatalf("different text must not collide in tests")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  A\tstudy\n\nof therapy\x00 résults ")
	if got != "A study of therapy rsults" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
}
