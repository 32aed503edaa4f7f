// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server,
// ElevenLabs, or similar) behind a uniform batch call. The unit of work is
// the sentence: the playback pipeline splits the model's response at
// sentence boundaries and synthesizes each one while later sentences are
// still being generated, so pipelining happens above this interface rather
// than inside it.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as mono float32 PCM in [-1, 1] and reports
	// the sample rate the provider produced it at. Callers resample to the
	// wire rate themselves; providers return their native rate.
	//
	// voice selects the provider-specific voice; an empty string uses the
	// provider's default. Loudness of the returned audio is whatever the
	// backend produced; normalization happens downstream.
	Synthesize(ctx context.Context, text, voice string) (samples []float32, sampleRate int, err error)
}
