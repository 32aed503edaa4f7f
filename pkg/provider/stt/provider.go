// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (local whisper.cpp, a
// whisper-server instance, or a hosted API) behind a uniform batch call. The
// unit of work is the utterance: the capture pipeline buffers audio between
// voice-activity boundaries and hands over one complete utterance at a time.
// There is no partial-result streaming; latency is bounded by utterance
// length, which the silence timeout keeps short.
package stt

import (
	"context"
	"strings"

	"github.com/voxhollow/sibyl/pkg/types"
)

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use: the server transcribes
// for every live connection against a single provider instance. Providers
// wrapping a non-reentrant engine serialize internally.
type Provider interface {
	// Transcribe converts one utterance of mono float32 PCM in [-1, 1] at
	// sampleRate into an ordered list of segments. An utterance with no
	// recognizable speech returns an empty slice and no error. The context
	// bounds the work; cancellation abandons the utterance.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]types.Segment, error)
}

// Text joins segment texts into the utterance text. Interior spacing is
// whatever the provider produced; the joined result is trimmed.
func Text(segments []types.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(seg.Text)
	}
	return strings.TrimSpace(sb.String())
}
