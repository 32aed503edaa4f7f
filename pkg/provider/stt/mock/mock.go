// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed scripted utterance texts to the capture pipeline and
// to inspect the audio that was submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: [][]types.Segment{{{Text: "what time is it"}}},
//	}
//	segs, _ := p.Transcribe(ctx, samples, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/voxhollow/sibyl/pkg/types"

	"github.com/voxhollow/sibyl/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the PCM passed to Transcribe.
	Samples []float32
	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
//
// Successive Transcribe calls consume Results in order; once the queue is
// exhausted, calls return an empty segment list. Set TranscribeErr to make
// every call fail instead.
type Provider struct {
	mu sync.Mutex

	// Results is the queue of segment lists returned by successive
	// Transcribe calls.
	Results [][]types.Segment

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next queued result.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]types.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pcm := make([]float32, len(samples))
	copy(pcm, samples)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Samples: pcm, SampleRate: sampleRate})
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if p.next >= len(p.Results) {
		return nil, nil
	}
	segs := p.Results[p.next]
	p.next++
	return segs, nil
}

// Reset clears all recorded calls and rewinds the result queue. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.next = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
