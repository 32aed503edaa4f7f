package store

import (
	"fmt"
	"os"
	"time"
)

// DefaultKnowledge seeds the knowledge file when it does not exist yet, so
// the admin surface always has something to show and edit.
const DefaultKnowledge = "You are a helpful assistant. Keep answers concise."

// KnowledgeStore is the admin-editable text appended to every assembled
// prompt. The same file backs the admin API's system-message resource, so
// writes share the behavior store's atomic-rename discipline.
//
// There is deliberately no cache: prompt assembly reads the file every
// turn, which is what makes admin edits take effect on the next exchange.
type KnowledgeStore struct {
	path string
}

// Meta describes the stored file for the admin API.
type Meta struct {
	// UpdatedAt is the file's modification time.
	UpdatedAt time.Time

	// Bytes is the stored size.
	Bytes int64
}

// NewKnowledgeStore returns a store backed by path.
func NewKnowledgeStore(path string) *KnowledgeStore {
	return &KnowledgeStore{path: path}
}

// EnsureDefault creates the file with DefaultKnowledge when it is absent.
// Called once at startup; an existing file is left alone.
func (k *KnowledgeStore) EnsureDefault() error {
	if _, err := os.Stat(k.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("store: stat knowledge file: %w", err)
	}
	if err := writeAtomic(k.path, []byte(DefaultKnowledge)); err != nil {
		return fmt.Errorf("store: seed knowledge file: %w", err)
	}
	return nil
}

// PromptText returns the knowledge contribution for prompt assembly. An
// absent file contributes nothing; a failing read contributes a visible
// marker so the operator can spot the problem in transcripts instead of
// the knowledge silently vanishing.
func (k *KnowledgeStore) PromptText() string {
	data, err := os.ReadFile(k.path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		return fmt.Sprintf("[knowledge unavailable: %v]", err)
	}
	return string(data)
}

// Message returns the stored text and its metadata for the admin API.
func (k *KnowledgeStore) Message() (string, Meta, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return "", Meta{}, fmt.Errorf("store: read knowledge file: %w", err)
	}
	info, err := os.Stat(k.path)
	if err != nil {
		return "", Meta{}, fmt.Errorf("store: stat knowledge file: %w", err)
	}
	return string(data), Meta{UpdatedAt: info.ModTime(), Bytes: info.Size()}, nil
}

// Write replaces the stored text atomically and returns the new metadata.
func (k *KnowledgeStore) Write(message string) (Meta, error) {
	if err := writeAtomic(k.path, []byte(message)); err != nil {
		return Meta{}, err
	}
	info, err := os.Stat(k.path)
	if err != nil {
		return Meta{}, fmt.Errorf("store: stat knowledge file: %w", err)
	}
	return Meta{UpdatedAt: info.ModTime(), Bytes: info.Size()}, nil
}
