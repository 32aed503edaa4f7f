package store

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxRules bounds the behavior override list.
const MaxRules = 20

// MaxRuleLen bounds a single rule; longer rules are truncated on entry.
const MaxRuleLen = 200

// BehaviorStore is the persistent list of behavior override rules appended
// to every assembled prompt. Rules are short imperative strings ("answer in
// haiku"). The on-disk format is JSON: {"global": ["rule", ...]}.
//
// Reads are gated by the file's mtime so edits made outside the process are
// picked up without polling. Writes go through an atomic rename. An
// in-process mutex serializes access; the store is safe for concurrent use.
type BehaviorStore struct {
	path string

	mu        sync.Mutex
	rules     []string
	lastMtime time.Time
	loaded    bool
}

// behaviorFile is the on-disk JSON shape. Entries are decoded loosely so a
// hand-edited file with a stray non-string entry degrades to skipping that
// entry instead of losing the whole list.
type behaviorFile struct {
	Global []any `json:"global"`
}

// NewBehaviorStore returns a store backed by path. The file does not need
// to exist; an absent file reads as an empty rule list.
func NewBehaviorStore(path string) *BehaviorStore {
	return &BehaviorStore{path: path}
}

// Rules returns the current rule list in stored order.
func (b *BehaviorStore) Rules() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.refresh(); err != nil {
		return nil, err
	}
	out := make([]string, len(b.rules))
	copy(out, b.rules)
	return out, nil
}

// Add appends a trimmed rule and persists. Duplicate rules are a no-op
// with added=false. A full store returns an error.
func (b *BehaviorStore) Add(rule string) (added bool, err error) {
	rule = sanitizeRule(rule)
	if rule == "" {
		return false, fmt.Errorf("store: empty behaviour rule")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.refresh(); err != nil {
		return false, err
	}
	if slices.Contains(b.rules, rule) {
		return false, nil
	}
	if len(b.rules) >= MaxRules {
		return false, fmt.Errorf("store: behaviour list is full (%d rules)", MaxRules)
	}
	b.rules = append(b.rules, rule)
	if err := b.persist(); err != nil {
		b.rules = b.rules[:len(b.rules)-1]
		return false, err
	}
	return true, nil
}

// Remove deletes a rule and persists. Unknown rules are a no-op with
// removed=false.
func (b *BehaviorStore) Remove(rule string) (removed bool, err error) {
	rule = sanitizeRule(rule)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.refresh(); err != nil {
		return false, err
	}
	idx := slices.Index(b.rules, rule)
	if idx < 0 {
		return false, nil
	}
	b.rules = slices.Delete(b.rules, idx, idx+1)
	if err := b.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// refresh reloads the file when its mtime moved. Must be called with the
// lock held. An absent file is an empty list, not an error.
func (b *BehaviorStore) refresh() error {
	info, err := os.Stat(b.path)
	if os.IsNotExist(err) {
		if !b.loaded {
			b.rules = nil
			b.loaded = true
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: stat behaviour file: %w", err)
	}
	if b.loaded && info.ModTime().Equal(b.lastMtime) {
		return nil
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("store: read behaviour file: %w", err)
	}
	var file behaviorFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("store: parse behaviour file: %w", err)
	}

	b.rules = sanitizeRules(file.Global)
	b.lastMtime = info.ModTime()
	b.loaded = true
	return nil
}

// persist writes the current list atomically and refreshes the stored
// mtime so the next read does not reload our own write. Must be called
// with the lock held.
func (b *BehaviorStore) persist() error {
	payload := map[string][]string{"global": b.rules}
	if payload["global"] == nil {
		payload["global"] = []string{}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode behaviour file: %w", err)
	}
	if err := writeAtomic(b.path, data); err != nil {
		return err
	}
	if info, err := os.Stat(b.path); err == nil {
		b.lastMtime = info.ModTime()
	}
	b.loaded = true
	return nil
}

// sanitizeRules keeps string entries, trims them, truncates to MaxRuleLen,
// drops duplicates and caps the list at MaxRules.
func sanitizeRules(entries []any) []string {
	var out []string
	for _, e := range entries {
		s, ok := e.(string)
		if !ok {
			continue
		}
		s = sanitizeRule(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
		if len(out) == MaxRules {
			break
		}
	}
	return out
}

func sanitizeRule(rule string) string {
	rule = strings.TrimSpace(rule)
	if len(rule) > MaxRuleLen {
		// Back off to a rune boundary so truncation never splits a
		// multi-byte character.
		cut := MaxRuleLen
		for cut > 0 && !utf8.RuneStart(rule[cut]) {
			cut--
		}
		rule = rule[:cut]
	}
	return rule
}
