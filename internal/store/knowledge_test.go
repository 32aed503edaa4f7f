package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxhollow/sibyl/internal/store"
)

func TestKnowledge_EnsureDefaultSeedsMissingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "knowledge.txt")
	k := store.NewKnowledgeStore(path)

	if err := k.EnsureDefault(); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if got := k.PromptText(); got != store.DefaultKnowledge {
		t.Errorf("PromptText: got %q, want default", got)
	}
}

func TestKnowledge_EnsureDefaultKeepsExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "knowledge.txt")
	if err := os.WriteFile(path, []byte("operator notes"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	k := store.NewKnowledgeStore(path)
	if err := k.EnsureDefault(); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if got := k.PromptText(); got != "operator notes" {
		t.Errorf("PromptText: got %q, want existing content", got)
	}
}

func TestKnowledge_AbsentFileContributesNothing(t *testing.T) {
	t.Parallel()
	k := store.NewKnowledgeStore(filepath.Join(t.TempDir(), "missing.txt"))
	if got := k.PromptText(); got != "" {
		t.Errorf("PromptText: got %q, want empty", got)
	}
}

func TestKnowledge_ReadErrorYieldsMarker(t *testing.T) {
	t.Parallel()
	// A directory at the path makes ReadFile fail with something other
	// than not-exist.
	dir := t.TempDir()
	k := store.NewKnowledgeStore(dir)
	got := k.PromptText()
	if !strings.HasPrefix(got, "[knowledge unavailable:") {
		t.Errorf("PromptText: got %q, want an unavailable marker", got)
	}
}

func TestKnowledge_WriteAndMessage(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "knowledge.txt")
	k := store.NewKnowledgeStore(path)

	meta, err := k.Write("be terse")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if meta.Bytes != int64(len("be terse")) {
		t.Errorf("meta bytes: got %d, want %d", meta.Bytes, len("be terse"))
	}
	if meta.UpdatedAt.IsZero() {
		t.Error("meta updated_at should be set")
	}

	msg, meta2, err := k.Message()
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if msg != "be terse" {
		t.Errorf("message: got %q", msg)
	}
	if meta2.Bytes != meta.Bytes {
		t.Errorf("meta mismatch: %d vs %d", meta2.Bytes, meta.Bytes)
	}
}

func TestKnowledge_WriteIsWholeFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "knowledge.txt")
	k := store.NewKnowledgeStore(path)

	if _, err := k.Write(strings.Repeat("long original content ", 100)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := k.Write("short"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// The rename-based swap must not leave a tail of the longer version.
	if got := k.PromptText(); got != "short" {
		t.Errorf("PromptText: got %q, want %q", got, "short")
	}
}
