package voice_test

import (
	"testing"

	"github.com/voxhollow/sibyl/internal/voice"
)

func pushAll(sp *voice.Splitter, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, sp.Push(c)...)
	}
	return out
}

func assertSentences(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d sentences %q, want %d %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitter_BasicBoundaries(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	got := pushAll(&sp, "Hello there! How are you? I am fine. Thanks")
	assertSentences(t, got, []string{"Hello there!", "How are you?", "I am fine."})
	if tail := sp.Flush(); tail != "Thanks" {
		t.Errorf("Flush() = %q, want %q", tail, "Thanks")
	}
}

func TestSplitter_BoundaryAcrossChunks(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	got := pushAll(&sp, "The answer is fort", "y-two. Of cour", "se it is.")
	assertSentences(t, got, []string{"The answer is forty-two."})
	// The final dot has no following character yet; it stays buffered.
	if tail := sp.Flush(); tail != "Of course it is." {
		t.Errorf("Flush() = %q, want %q", tail, "Of course it is.")
	}
}

func TestSplitter_DecimalNumbersStayIntact(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	got := pushAll(&sp, "Pi is 3.14159 roughly. Use 2.5 cups. ")
	assertSentences(t, got, []string{"Pi is 3.14159 roughly.", "Use 2.5 cups."})
}

func TestSplitter_NewlinesSplit(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	got := pushAll(&sp, "First line\nSecond line\n\nThird")
	assertSentences(t, got, []string{"First line", "Second line"})
	if tail := sp.Flush(); tail != "Third" {
		t.Errorf("Flush() = %q, want %q", tail, "Third")
	}
}

func TestSplitter_StripsAsterisks(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	got := pushAll(&sp, "This is *very* important! Done")
	assertSentences(t, got, []string{"This is very important!"})
}

func TestSplitter_DotWithoutSpaceIsNotBoundary(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	got := pushAll(&sp, "Visit example.com for details. More")
	assertSentences(t, got, []string{"Visit example.com for details."})
}

func TestSplitter_ResetDropsPending(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	sp.Push("Half a sent")
	sp.Reset()
	if tail := sp.Flush(); tail != "" {
		t.Errorf("Flush() after Reset = %q, want empty", tail)
	}
}

func TestSplitter_FlushResets(t *testing.T) {
	t.Parallel()

	var sp voice.Splitter
	sp.Push("Leftover text")
	if tail := sp.Flush(); tail != "Leftover text" {
		t.Fatalf("Flush() = %q", tail)
	}
	if tail := sp.Flush(); tail != "" {
		t.Errorf("second Flush() = %q, want empty", tail)
	}
}
