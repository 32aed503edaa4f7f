// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed deterministic PCM to the playback pipeline and to
// verify which sentences reached the synthesizer.
//
// Example:
//
//	p := &mock.Provider{SampleRate: 22050}
//	samples, rate, _ := p.Synthesize(ctx, "Hello.", "")
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/voxhollow/sibyl/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the sentence passed to Synthesize.
	Text string
	// Voice is the voice identifier passed to Synthesize.
	Voice string
}

// Provider is a mock implementation of tts.Provider.
//
// Synthesize returns constant-amplitude PCM whose length scales with the
// input text, so chunk-count assertions stay deterministic.
type Provider struct {
	mu sync.Mutex

	// SampleRate is reported with every synthesis. Zero defaults to 22050.
	SampleRate int

	// SamplesPerChar sets how many samples each input character produces.
	// Zero defaults to 80.
	SamplesPerChar int

	// Amplitude is the constant sample value of the output. Zero defaults
	// to 0.25.
	Amplitude float32

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// FailOn, if non-empty, makes Synthesize fail only for texts containing
	// this substring. Used to exercise the skip-sentence policy.
	FailOn string

	// FailErr is the error returned for FailOn matches. Nil falls back to
	// SynthesizeErr, which must then be set.
	FailErr error

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns deterministic PCM.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]float32, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})

	if p.FailOn != "" && strings.Contains(text, p.FailOn) {
		if p.FailErr != nil {
			return nil, 0, p.FailErr
		}
		return nil, 0, p.SynthesizeErr
	}
	if p.SynthesizeErr != nil {
		return nil, 0, p.SynthesizeErr
	}

	rate := p.SampleRate
	if rate == 0 {
		rate = 22050
	}
	perChar := p.SamplesPerChar
	if perChar == 0 {
		perChar = 80
	}
	amp := p.Amplitude
	if amp == 0 {
		amp = 0.25
	}
	samples := make([]float32, len(text)*perChar)
	for i := range samples {
		samples[i] = amp
	}
	return samples, rate, nil
}

// Texts returns the text of every recorded call, in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
