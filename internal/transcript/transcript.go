// Package transcript post-processes ASR output before it reaches the
// conversation engine. Its main job is close-phrase detection: recognizing
// the configured end-of-conversation phrase in an utterance even when the
// recognizer misspells it, because "finnish conversation" from a tired
// speaker still means hang up.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Clean normalizes one utterance for the engine: surrounding whitespace
// dropped and interior runs of whitespace collapsed. ASR segment joins tend
// to leave doubled spaces at segment boundaries.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CloseMatcher detects the close-channel phrase in utterances. The zero
// value matches nothing; build one with NewCloseMatcher.
type CloseMatcher struct {
	phrase string
	words  []string
	codes  []phoneticCode
}

// phoneticCode is the Double Metaphone encoding of one word: a primary code
// and an alternate for ambiguous spellings.
type phoneticCode struct {
	primary   string
	alternate string
}

// NewCloseMatcher builds a matcher for phrase. An empty phrase yields a
// matcher that never matches, which is how operators disable phrase-based
// closing.
func NewCloseMatcher(phrase string) *CloseMatcher {
	words := splitWords(phrase)
	m := &CloseMatcher{
		phrase: strings.ToLower(strings.TrimSpace(phrase)),
		words:  words,
	}
	for _, w := range words {
		m.codes = append(m.codes, encodeWord(w))
	}
	return m
}

// Matches reports whether text contains the close phrase, either verbatim
// (case-insensitive substring) or as a consecutive run of phonetically
// equivalent words. The phonetic pass is what tolerates ASR near-misses.
func (m *CloseMatcher) Matches(text string) bool {
	if m.phrase == "" {
		return false
	}
	if strings.Contains(strings.ToLower(text), m.phrase) {
		return true
	}

	words := splitWords(text)
	if len(words) < len(m.words) {
		return false
	}
	for start := 0; start+len(m.codes) <= len(words); start++ {
		matched := true
		for i, want := range m.codes {
			if !phoneticEqual(encodeWord(words[start+i]), want) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// splitWords lowercases text and splits it on anything that is not a letter
// or digit, dropping empties.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// encodeWord computes the Double Metaphone codes of one word.
func encodeWord(word string) phoneticCode {
	primary, alternate := matchr.DoubleMetaphone(word)
	return phoneticCode{primary: primary, alternate: alternate}
}

// phoneticEqual reports whether any code of a overlaps any code of b.
// Empty codes (numbers, non-Latin input) only match by exact primary text.
func phoneticEqual(a, b phoneticCode) bool {
	if a.primary == "" || b.primary == "" {
		return a.primary == b.primary && a.primary != ""
	}
	if a.primary == b.primary {
		return true
	}
	if a.alternate != "" && (a.alternate == b.primary || a.alternate == b.alternate) {
		return true
	}
	return b.alternate != "" && b.alternate == a.primary
}
