package chapters

import (
	"strings"
	"testing"
)

func TestSplitOnHeaderLines(t *testing.T) {
	text := "Chapter 1\nLi Wei arrived at the sect gate.\n\nChapter 2\nThe trial began at dawn.\n"
	chs := Split(text)
	if len(chs) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chs))
	}
	if chs[0].ID != "chapter_0001" || chs[1].ID != "chapter_0002" {
		t.Fatalf("unexpected ids: %s, %s", chs[0].ID, chs[1].ID)
	}
	if chs[0].Title != "Chapter 1" {
		t.Fatalf("unexpected title: %s", chs[0].Title)
	}
	if !strings.Contains(chs[1].Text, "trial began") {
		t.Fatalf("chapter text misplaced: %q", chs[1].Text)
	}
}

func TestSplitFallsBackToWordChunks(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 6000))
	chs := Split(text)
	if len(chs) != 3 {
		t.Fatalf("expected 3 fallback chunks, got %d", len(chs))
	}
	for i, ch := range chs {
		if ch.Seq != i+1 {
			t.Fatalf("expected sequential seq, got %d at %d", ch.Seq, i)
		}
	}
}

func TestSplitEmptyTextYieldsOneEmptyChapter(t *testing.T) {
	chs := Split("   \n  ")
	if len(chs) != 1 {
		t.Fatalf("expected exactly one chapter, got %d", len(chs))
	}
	if chs[0].Text != "" || chs[0].ID != "chapter_0001" {
		t.Fatalf("unexpected empty-input chapter: %+v", chs[0])
	}
}

func TestParseOrdinalRoundTrip(t *testing.T) {
	for seq := 1; seq <= 30; seq++ {
		if got := ParseOrdinal(MakeID(seq)); got != seq-1 {
			t.Fatalf("ordinal mismatch for seq %d: got %d", seq, got)
		}
	}
	if got := ParseOrdinal("no-digits-here"); got != 0 {
		t.Fatalf("expected guarded 0 ordinal, got %d", got)
	}
}
