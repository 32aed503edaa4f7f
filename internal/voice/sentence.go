package voice

import "strings"

// Splitter accumulates streamed response text and yields complete sentences
// for synthesis. Boundaries are `!` or `?` followed by whitespace, `.`
// followed by whitespace unless a digit comes right after the dot (decimal
// numbers stay intact), and newlines. Everything else, including commas and
// mid-number dots, stays inside the sentence.
//
// Asterisks are stripped before speaking; models use them for emphasis and
// a TTS voice would read them out loud.
type Splitter struct {
	pending []rune
}

// Push appends chunk and returns the sentences completed by it, cleaned for
// synthesis. Sentences that clean to nothing are dropped.
func (sp *Splitter) Push(chunk string) []string {
	sp.pending = append(sp.pending, []rune(chunk)...)

	var out []string
	start := 0
	for i := 0; i < len(sp.pending); i++ {
		r := sp.pending[i]

		if r == '\n' || r == '\r' {
			if s := cleanSentence(string(sp.pending[start:i])); s != "" {
				out = append(out, s)
			}
			start = i + 1
			continue
		}

		if r != '!' && r != '?' && r != '.' {
			continue
		}
		// A boundary needs a following character to judge; the tail is
		// held until the next chunk or Flush.
		if i+1 >= len(sp.pending) {
			continue
		}
		next := sp.pending[i+1]
		if r == '.' && next >= '0' && next <= '9' {
			continue
		}
		if next != ' ' && next != '\t' {
			continue
		}
		if s := cleanSentence(string(sp.pending[start : i+1])); s != "" {
			out = append(out, s)
		}
		// Swallow the whitespace run after the boundary.
		j := i + 1
		for j < len(sp.pending) && (sp.pending[j] == ' ' || sp.pending[j] == '\t') {
			j++
		}
		start = j
		i = j - 1
	}

	sp.pending = sp.pending[start:]
	return out
}

// Flush returns whatever text remains as a final sentence, cleaned, and
// resets the splitter. Called after the turn's terminal sentinel.
func (sp *Splitter) Flush() string {
	s := cleanSentence(string(sp.pending))
	sp.pending = sp.pending[:0]
	return s
}

// Reset drops buffered text, used on barge-in.
func (sp *Splitter) Reset() {
	sp.pending = sp.pending[:0]
}

func cleanSentence(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "*", ""))
}
